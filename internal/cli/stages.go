package cli

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaiso/Spectra/internal/domain"
	"github.com/shaiso/Spectra/internal/stages"
)

// NewStagesCmd создаёт команду вывода каталога стадий.
func NewStagesCmd(outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "stages",
		Short: "List pipeline stages with tools and input cardinalities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()
			cat := stages.Catalog()

			headers := []string{"#", "STAGE", "TOOL", "KIND", "INPUTS", "OUTPUTS", "MAX_FORKS"}
			rows := make([][]string, len(cat.Stages))
			for i, s := range cat.Stages {
				maxForks := "-"
				if s.Parallelism.MaxForks > 0 {
					maxForks = strconv.Itoa(s.Parallelism.MaxForks)
				}
				rows[i] = []string{
					strconv.Itoa(i + 1),
					s.Name,
					s.Tool,
					string(s.Kind),
					describeInputs(s.Inputs),
					describeOutputs(s.Outputs),
					maxForks,
				}
			}

			out.Print(headers, rows, cat)
			return nil
		},
	}
}

func describeInputs(inputs []domain.InputDef) string {
	parts := make([]string, len(inputs))
	for i, in := range inputs {
		parts[i] = in.Name + ":" + string(in.Cardinality)
	}
	return strings.Join(parts, " ")
}

func describeOutputs(outputs []domain.OutputDef) string {
	parts := make([]string, len(outputs))
	for i, o := range outputs {
		parts[i] = o.Name + ":" + string(o.Kind)
	}
	return strings.Join(parts, " ")
}
