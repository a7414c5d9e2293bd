package cli

import (
	"log/slog"

	"github.com/spf13/cobra"
)

// NewRunCmd создаёт команду запуска пайплайна.
func NewRunCmd(outputFn func() *Output) *cobra.Command {
	var opts RunOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the proteomics pipeline over a set of spectra",
		Example: `  spectra run --spectra 'data/*.mzML' --database human.fasta
  spectra run --spectra 'data/*.mzML' --database human.fasta --param enzyme=Lys-C --outdir results`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := outputFn()
			logger := slog.Default()

			infra, err := OpenInfra(ctx, logger)
			if err != nil {
				return err
			}
			defer infra.Close()

			pipeline, err := startPipeline(ctx, infra, &opts, logger)
			if err != nil {
				return err
			}

			_, summary, err := pipeline.Execute(ctx, &opts, "cli")
			printSummary(out, summary)
			return err
		},
	}

	opts.addFlags(cmd)
	cmd.MarkFlagRequired("spectra")
	cmd.MarkFlagRequired("database")

	return cmd
}
