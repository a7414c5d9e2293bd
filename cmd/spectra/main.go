// Spectra — оркестратор пайплайна label-free протеомики.
//
// Использование:
//
//	spectra [--json] <command> [flags]
//
// Команды:
//
//	run       Запуск пайплайна
//	validate  Проверка графа
//	graph     Топология в Mermaid
//	stages    Каталог стадий
//	history   История runs
//	events    События runs
//	schedule  Запуск по расписанию
//	migrate   Миграции схемы истории
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/Spectra/internal/cli"
	"github.com/shaiso/Spectra/internal/telemetry"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	var jsonOutput bool

	telemetry.SetupLogger()

	rootCmd := &cobra.Command{
		Use:           "spectra",
		Short:         "Spectra — label-free proteomics pipeline orchestrator",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	outputFn := func() *cli.Output { return cli.NewOutput(jsonOutput) }

	rootCmd.AddCommand(
		cli.NewRunCmd(outputFn),
		cli.NewValidateCmd(outputFn),
		cli.NewGraphCmd(outputFn),
		cli.NewStagesCmd(outputFn),
		cli.NewHistoryCmd(outputFn),
		cli.NewEventsCmd(outputFn),
		cli.NewScheduleCmd(outputFn),
		cli.NewMigrateCmd(outputFn),
	)

	// graceful shutdown: отмена останавливает run и дожидается экземпляров
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cancel()
		os.Exit(1)
	}
}
