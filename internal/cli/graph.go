package cli

import (
	"github.com/spf13/cobra"

	"github.com/shaiso/Spectra/internal/engine"
	"github.com/shaiso/Spectra/internal/stages"
)

// NewGraphCmd создаёт команду вывода топологии в Mermaid.
func NewGraphCmd(outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "graph",
		Short: "Print the pipeline topology as a Mermaid flowchart",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dag, err := engine.BuildDAG(stages.Catalog())
			if err != nil {
				return err
			}
			outputFn().Text(engine.RenderMermaid(dag))
			return nil
		},
	}
}
