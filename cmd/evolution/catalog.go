package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/aicompanion/companion-hub/internal/application/query"
	"github.com/aicompanion/companion-hub/internal/catalog"
)

var catalogFilter query.ListCatalogQuery

var catalogCmd = &cobra.Command{
	Use:   "catalog <skills|achievements|abilities>",
	Short: "Show skills, achievements and abilities",
	Long: `Show the built-in progression catalog.

Examples:
  evolution catalog skills --category memory
  evolution catalog achievements --tier gold -o yaml
  evolution catalog abilities -o json`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"skills", "achievements", "abilities"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cat, err := catalog.Default()
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
		return runCatalog(cmd.OutOrStdout(), query.NewListCatalogHandler(cat), args[0], catalogFilter, outputFormat)
	},
}

func init() {
	catalogCmd.Flags().StringVar(&catalogFilter.Category, "category", "", "Skill branch (personality, communication, memory, relationship)")
	catalogCmd.Flags().StringVar(&catalogFilter.Tier, "tier", "", "Achievement tier (bronze, silver, gold, platinum, master)")
}

func runCatalog(out io.Writer, h *query.ListCatalogHandler, kind string, filter query.ListCatalogQuery, format string) error {
	switch kind {
	case "skills":
		skills, err := h.Skills(filter)
		if err != nil {
			return err
		}
		return render(out, format, skills, func(t *table) {
			t.header("ID", "NAME", "CATEGORY", "MIN LEVEL", "PREREQUISITES")
			for _, s := range skills {
				t.row(s.ID, s.Name, s.Category, s.Requirements.MinLevel, joinStrings(s.Requirements.Prerequisites))
			}
		})

	case "achievements":
		achievements, err := h.Achievements(filter)
		if err != nil {
			return err
		}
		return render(out, format, achievements, func(t *table) {
			t.header("ID", "NAME", "TIER", "XP REWARD")
			for _, a := range achievements {
				t.row(a.ID, a.Name, a.Tier, a.Rewards.Experience)
			}
		})

	case "abilities":
		abilities := h.Abilities()
		return render(out, format, abilities, func(t *table) {
			t.header("ID", "NAME", "COOLDOWN")
			for _, a := range abilities {
				t.row(a.ID, a.Name, a.Cooldown)
			}
		})

	default:
		return fmt.Errorf("unknown catalog section %q (want skills, achievements or abilities)", kind)
	}
}
