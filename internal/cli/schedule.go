package cli

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/Spectra/internal/domain"
	"github.com/shaiso/Spectra/internal/scheduler"
)

// NewScheduleCmd создаёт группу команд для запуска по расписанию.
func NewScheduleCmd(outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Re-run the pipeline on a cron schedule",
	}

	cmd.AddCommand(
		newScheduleRunCmd(outputFn),
		newScheduleListCmd(outputFn),
		newScheduleEnableCmd(outputFn, true),
		newScheduleEnableCmd(outputFn, false),
	)

	return cmd
}

func newScheduleRunCmd(outputFn func() *Output) *cobra.Command {
	var opts RunOptions
	var name string
	var cronExpr string
	var timezone string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline every time the cron expression fires",
		Example: `  spectra schedule run --cron '0 2 * * *' --timezone Europe/Moscow \
    --spectra '/incoming/*.mzML' --database human.fasta`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()
			logger := slog.Default()

			// Проверяем конфигурацию до первого срока.
			if _, _, _, err := Prepare(&opts); err != nil {
				return err
			}

			infra, err := OpenInfra(ctx, logger)
			if err != nil {
				return err
			}
			defer infra.Close()

			pipeline, err := startPipeline(ctx, infra, &opts, logger)
			if err != nil {
				return err
			}
			runOnce := func(ctx context.Context) (uuid.UUID, error) {
				run, summary, err := pipeline.Execute(ctx, &opts, "schedule")
				printSummary(out, summary)
				if run == nil {
					return uuid.Nil, err
				}
				return run.ID, err
			}

			cfg := scheduler.Config{
				Schedule: domain.NewSchedule(name, cronExpr, timezone),
				Run:      runOnce,
				Logger:   logger,
			}
			if infra.ScheduleRepo != nil {
				cfg.Store = infra.ScheduleRepo
			}

			sched, err := scheduler.New(cfg)
			if err != nil {
				return err
			}
			return sched.Run(ctx)
		},
	}

	opts.addFlags(cmd)
	cmd.Flags().StringVar(&name, "name", "default", "Schedule name")
	cmd.Flags().StringVar(&cronExpr, "cron", "", "Cron expression (e.g. '0 2 * * *', '@hourly')")
	cmd.Flags().StringVar(&timezone, "timezone", "UTC", "Timezone for the cron expression")
	cmd.MarkFlagRequired("cron")
	cmd.MarkFlagRequired("spectra")
	cmd.MarkFlagRequired("database")

	return cmd
}

func newScheduleListCmd(outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored schedules (requires DB_URL)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()

			infra, err := OpenInfra(ctx, slog.Default())
			if err != nil {
				return err
			}
			defer infra.Close()
			if err := infra.RequireHistory(); err != nil {
				return err
			}

			schedules, err := infra.ScheduleRepo.List(ctx)
			if err != nil {
				return err
			}

			headers := []string{"NAME", "CRON", "TIMEZONE", "ENABLED", "RUNS", "NEXT_DUE", "LAST_RUN"}
			rows := make([][]string, len(schedules))
			for i, s := range schedules {
				rows[i] = []string{
					s.Name,
					s.CronExpr,
					s.Timezone,
					strconv.FormatBool(s.Enabled),
					strconv.Itoa(s.Runs),
					formatTime(s.NextDueAt),
					formatTime(s.LastRunAt),
				}
			}

			out.Print(headers, rows, schedules)
			return nil
		},
	}
}

func newScheduleEnableCmd(outputFn func() *Output, enabled bool) *cobra.Command {
	use, short, verb := "enable NAME", "Resume a stored schedule", "enabled"
	if !enabled {
		use, short, verb = "disable NAME", "Pause a stored schedule", "disabled"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()

			infra, err := OpenInfra(ctx, slog.Default())
			if err != nil {
				return err
			}
			defer infra.Close()
			if err := infra.RequireHistory(); err != nil {
				return err
			}

			if err := infra.ScheduleRepo.SetEnabled(ctx, args[0], enabled); err != nil {
				return fmt.Errorf("schedule %s: %w", args[0], err)
			}

			out.Success(fmt.Sprintf("Schedule %s: %s", verb, args[0]))
			return nil
		},
	}
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.RFC3339)
}
