package cli

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/shaiso/Spectra/internal/domain"
	"github.com/shaiso/Spectra/internal/repo"
)

// NewHistoryCmd создаёт группу команд истории runs (требует DB_URL).
func NewHistoryCmd(outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse recorded runs (requires DB_URL)",
	}

	cmd.AddCommand(
		newHistoryListCmd(outputFn),
		newHistoryShowCmd(outputFn),
	)

	return cmd
}

func newHistoryListCmd(outputFn func() *Output) *cobra.Command {
	var pipeline string
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List runs, newest first",
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

			runs, err := infra.RunRepo.List(ctx, repo.RunFilter{
				Pipeline: pipeline,
				Status:   domain.RunStatus(strings.ToUpper(status)),
				Limit:    limit,
			})
			if err != nil {
				return err
			}

			headers := []string{"ID", "PIPELINE", "STATUS", "SAMPLES", "TRIGGER", "DURATION", "CREATED"}
			rows := make([][]string, len(runs))
			for i, r := range runs {
				rows[i] = []string{
					r.ID.String(),
					r.Pipeline,
					string(r.Status),
					strconv.Itoa(len(r.Samples)),
					r.Trigger,
					formatDuration(r.Duration()),
					r.CreatedAt.Format(time.RFC3339),
				}
			}

			out.Print(headers, rows, runs)
			return nil
		},
	}

	cmd.Flags().StringVar(&pipeline, "pipeline", "", "Filter by pipeline name")
	cmd.Flags().StringVar(&status, "status", "", "Filter by status (RUNNING, SUCCEEDED, FAILED, CANCELLED)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of results")

	return cmd
}

func newHistoryShowCmd(outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show RUN_ID",
		Short: "Show a run with its stage instances",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()

			runID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid run id %q: %w", args[0], err)
			}

			infra, err := OpenInfra(ctx, slog.Default())
			if err != nil {
				return err
			}
			defer infra.Close()
			if err := infra.RequireHistory(); err != nil {
				return err
			}

			run, err := infra.RunRepo.GetByID(ctx, runID)
			if err != nil {
				return err
			}
			instances, err := infra.InstanceRepo.ListByRun(ctx, runID)
			if err != nil {
				return err
			}

			if out.IsJSON() {
				out.JSON(map[string]any{"run": run, "instances": instances})
				return nil
			}

			out.Table(
				[]string{"ID", "PIPELINE", "STATUS", "SAMPLES", "OUTDIR", "ERROR"},
				[][]string{{run.ID.String(), run.Pipeline, string(run.Status), strings.Join(run.Samples, ","), run.OutDir, run.Error}},
			)
			out.Text("\n")

			rows := make([][]string, len(instances))
			for i, inst := range instances {
				rows[i] = []string{
					inst.Stage,
					inst.SampleID,
					strconv.Itoa(inst.Seq),
					string(inst.Status),
					strconv.Itoa(inst.ExitCode),
					inst.Error,
				}
			}
			out.Table([]string{"STAGE", "SAMPLE", "SEQ", "STATUS", "EXIT", "ERROR"}, rows)
			return nil
		},
	}
}
