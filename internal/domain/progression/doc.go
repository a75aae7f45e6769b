// Package progression содержит ядро прогрессии характера AI-компаньона.
//
// Пакет определяет:
//
//   - ExperienceCalculator: метрики взаимодействия -> ограниченная награда опытом
//   - SkillManager: дерево навыков и проверка условий открытия
//   - AchievementTracker: каталог достижений и проверка их условий
//   - EvolutionSystem: оркестратор одного компаньона, владелец ProgressionState
//
// # Треки и уровни
//
// Опыт начисляется по четырём трекам: conversation, emotional, learning,
// relationship. Переход с уровня L на L+1 стоит 100*L опыта, максимальный
// уровень 10. Стадия эволюции выводится из уровня и никогда не убывает
// (кроме явного Reset):
//
//	1      nascent
//	2-3    developing
//	4-6    maturing
//	7-9    evolved
//	10     transcendent
//
// Для любого состояния выполняется равенство
//
//	sum(ExperienceByType) == CumulativeThreshold(Level) + Experience
//
// поэтому опыт наград за достижения засчитывается треку, который их вызвал.
//
// # Использование
//
//	sys, err := progression.NewEvolutionSystem("luna", cat, companion,
//	    progression.WithClock(clock),
//	)
//	unsubscribe := sys.Subscribe(func(ev progression.Event) {
//	    switch e := ev.(type) {
//	    case progression.LevelUp:
//	        fmt.Println("level", e.NewLevel)
//	    }
//	})
//	defer unsubscribe()
//
//	amount, err := sys.AddExperience(progression.TrackConversation,
//	    progression.ConversationMetrics{MessageLength: 240, Engagement: 0.8})
//
// Пакет не зависит от хранилища: Repository и StatsCache реализуются в
// infrastructure/persistence.
package progression
