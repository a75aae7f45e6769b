// Package catalog loads the skill, achievement and ability catalogs shipped
// with the binary. The YAML documents are embedded and validated by
// progression.NewCatalog before use.
package catalog

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"

	"gopkg.in/yaml.v3"

	"github.com/aicompanion/companion-hub/internal/domain/progression"
)

//go:embed skills.yaml achievements.yaml abilities.yaml
var files embed.FS

// File names inside a catalog directory.
const (
	SkillsFile       = "skills.yaml"
	AchievementsFile = "achievements.yaml"
	AbilitiesFile    = "abilities.yaml"
)

type skillsDoc struct {
	Skills []progression.SkillDefinition `yaml:"skills"`
}

type achievementsDoc struct {
	Achievements []progression.AchievementDefinition `yaml:"achievements"`
}

type abilitiesDoc struct {
	Abilities []progression.AbilityDefinition `yaml:"abilities"`
}

// Default returns the embedded catalog.
func Default() (*progression.Catalog, error) {
	return Load(files)
}

// MustDefault is like Default but panics on error. The embedded catalog is
// covered by tests, so a failure here means a broken build.
func MustDefault() *progression.Catalog {
	c, err := Default()
	if err != nil {
		panic(err)
	}
	return c
}

// Load reads the three catalog documents from fsys.
func Load(fsys fs.FS) (*progression.Catalog, error) {
	skills, err := fs.ReadFile(fsys, SkillsFile)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", SkillsFile, err)
	}
	achievements, err := fs.ReadFile(fsys, AchievementsFile)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", AchievementsFile, err)
	}
	abilities, err := fs.ReadFile(fsys, AbilitiesFile)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", AbilitiesFile, err)
	}
	return Parse(skills, achievements, abilities)
}

// Parse decodes and validates raw catalog documents.
func Parse(skills, achievements, abilities []byte) (*progression.Catalog, error) {
	var sd skillsDoc
	if err := decodeStrict(skills, &sd); err != nil {
		return nil, fmt.Errorf("decode %s: %w", SkillsFile, err)
	}
	var ad achievementsDoc
	if err := decodeStrict(achievements, &ad); err != nil {
		return nil, fmt.Errorf("decode %s: %w", AchievementsFile, err)
	}
	var bd abilitiesDoc
	if err := decodeStrict(abilities, &bd); err != nil {
		return nil, fmt.Errorf("decode %s: %w", AbilitiesFile, err)
	}
	return progression.NewCatalog(sd.Skills, ad.Achievements, bd.Abilities)
}

func decodeStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(out)
}
