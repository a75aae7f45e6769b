package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

const (
	formatTable = "table"
	formatJSON  = "json"
	formatYAML  = "yaml"
)

// table - тонкая обёртка над tabwriter.
type table struct {
	w *tabwriter.Writer
}

func newTable(out io.Writer) *table {
	return &table{w: tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)}
}

func (t *table) header(cols ...string) {
	fmt.Fprintln(t.w, strings.Join(cols, "\t"))
}

func (t *table) row(vals ...any) {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = fmt.Sprint(v)
	}
	fmt.Fprintln(t.w, strings.Join(parts, "\t"))
}

func (t *table) flush() error {
	return t.w.Flush()
}

// render выводит v в выбранном формате. fill заполняет таблицу.
func render(out io.Writer, format string, v any, fill func(t *table)) error {
	switch format {
	case formatJSON:
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case formatYAML:
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	case formatTable, "":
		t := newTable(out)
		fill(t)
		return t.flush()
	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
	}
}

func writeSimulation(out io.Writer, format string, r SimulationReport) error {
	err := render(out, format, r, func(t *table) {
		t.header("ROUND", "TRACK", "XP", "LEVEL", "STAGE", "ACHIEVEMENTS", "SKILLS")
		for _, round := range r.Rounds {
			stage := string(round.Stage)
			if round.Evolved {
				stage += " *"
			}
			t.row(round.Round, round.Track, round.Experience, round.Level, stage,
				joinStrings(round.Achievements), joinStrings(round.Skills))
		}
	})
	if err != nil || (format != formatTable && format != "") {
		return err
	}

	f := r.Final
	fmt.Fprintf(out, "\n%s: level %d (%s), %d/%d XP to next, %d total\n",
		r.CompanionID, f.Level, f.Stage, f.Experience, f.ExperienceToNext, f.TotalExperience)
	fmt.Fprintf(out, "skills %d, achievements %d, skill points %d, seed %d\n",
		f.SkillCount, f.AchievementCount, f.AvailableSkillPoints, r.Seed)
	return nil
}

func joinStrings[T ~string](vals []T) string {
	if len(vals) == 0 {
		return "-"
	}
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = string(v)
	}
	return strings.Join(parts, ",")
}
