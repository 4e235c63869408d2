// ModuleTrack CLI — инструмент командной строки для тестирования плат
// через HTTP API.
//
// Использование:
//
//	moduletrack [--api-url URL] [--operator ID] [--groups G1,G2] [--json] <command> <subcommand> [flags]
//
// Команды:
//
//	config   Тестовые процедуры
//	batch    Партии и платы
//	test     Выполнение процедуры на плате
//	session  Сессии, завершение и подпись QA
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/ModuleTrack/internal/cli"
	"github.com/shaiso/ModuleTrack/internal/domain"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var apiURL string
	var jsonOutput bool
	var op domain.Operator

	rootCmd := &cobra.Command{
		Use:           "moduletrack",
		Short:         "ModuleTrack CLI — PCB test workflow tracker",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", envOr("MODULETRACK_API_URL", "http://localhost:8080"), "API server URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&op.ID, "operator", envOr("MODULETRACK_OPERATOR", os.Getenv("USER")), "Operator ID")
	rootCmd.PersistentFlags().StringSliceVar(&op.Groups, "groups", nil, "Operator groups (comma separated)")
	rootCmd.PersistentFlags().BoolVar(&op.Superuser, "superuser", false, "Act as superuser")

	clientFn := func() *cli.Client { return cli.NewClient(apiURL, op) }
	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewConfigCmd(clientFn, outputFn),
		cli.NewBatchCmd(clientFn, outputFn),
		cli.NewTestCmd(clientFn, outputFn),
		cli.NewSessionCmd(clientFn, outputFn),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func envOr(name, fallback string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return fallback
}
