// Package main - точка входа сервиса эволюции AI-компаньона.
//
// Компаньон растёт вместе с собеседником: каждое взаимодействие приносит
// опыт, опыт - уровни, уровни - очки навыков и новые стадии развития,
// а достижения отмечают важные моменты общего пути.
//
// Команды:
//   - serve    - REST API над системой эволюции
//   - simulate - прогон серии взаимодействий без внешних зависимостей
//   - catalog  - просмотр каталога навыков, достижений и способностей
package main

import (
	"os"

	"github.com/spf13/cobra"
)

// version задаётся при сборке через -ldflags "-X main.version=...".
var version = "dev"

var outputFormat string

var rootCmd = &cobra.Command{
	Use:   "evolution",
	Short: "AI companion evolution service",
	Long: `evolution tracks how an AI companion grows: experience, levels,
skills, achievements and evolution stages.

Commands:
  serve      Run the REST API
  simulate   Run a series of synthetic interactions
  catalog    Show skills, achievements and abilities`,
	SilenceUsage: true,
	Version:      version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table, json, yaml)")
	rootCmd.AddCommand(serveCmd, simulateCmd, catalogCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
