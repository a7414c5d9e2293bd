package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaiso/Spectra/internal/engine"
	"github.com/shaiso/Spectra/internal/stages"
)

// NewValidateCmd создаёт команду проверки графа пайплайна.
//
// Без --spectra выводятся символьные ширины (1 или N),
// с --spectra и --database — число экземпляров для найденных образцов.
func NewValidateCmd(outputFn func() *Output) *cobra.Command {
	var opts RunOptions

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Assemble the pipeline graph and check its wiring",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := outputFn()

			samples := -1
			var dag *engine.DAG
			if opts.Spectra != "" || opts.Database != "" {
				run, _, d, err := Prepare(&opts)
				if err != nil {
					return err
				}
				dag = d
				samples = len(run.Samples)
			} else {
				d, err := engine.BuildDAG(stages.Catalog())
				if err != nil {
					return err
				}
				dag = d
			}

			printGraph(out, dag, samples)
			out.Success(fmt.Sprintf("Pipeline %s is valid: %d stages, %d channels", dag.Catalog.Name, dag.Size(), len(dag.Channels)))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.Spectra, "spectra", "", "Glob pattern of raw spectra files")
	f.StringVar(&opts.Database, "database", "", "Protein database (FASTA)")
	f.StringVar(&opts.ParamsFile, "params-file", "", "YAML file with pipeline parameters")
	f.StringArrayVar(&opts.Params, "param", nil, "Parameter override as KEY=VALUE (repeatable)")

	return cmd
}

// graphStage — строка JSON вывода validate.
type graphStage struct {
	Stage     string `json:"stage"`
	Tool      string `json:"tool"`
	Width     string `json:"width"`
	Instances int    `json:"instances,omitempty"`
	DependsOn string `json:"depends_on,omitempty"`
}

type graphChannel struct {
	Channel   string `json:"channel"`
	Kind      string `json:"kind"`
	Width     string `json:"width"`
	Producer  string `json:"producer"`
	Consumers string `json:"consumers,omitempty"`
}

func printGraph(out *Output, dag *engine.DAG, samples int) {
	stageRows := make([]graphStage, 0, dag.Size())
	for _, node := range dag.Order {
		deps := make([]string, len(node.DependsOn))
		for i, d := range node.DependsOn {
			deps[i] = d.ID
		}
		row := graphStage{
			Stage:     node.ID,
			Tool:      node.Stage.Tool,
			Width:     node.Width.String(),
			DependsOn: strings.Join(deps, ","),
		}
		if samples >= 0 {
			row.Instances = node.Width.Resolve(samples)
		}
		stageRows = append(stageRows, row)
	}

	names := make([]string, 0, len(dag.Channels))
	for name := range dag.Channels {
		names = append(names, name)
	}
	sort.Strings(names)

	channelRows := make([]graphChannel, 0, len(names))
	for _, name := range names {
		ch := dag.Channels[name]
		consumers := make([]string, len(ch.Consumers))
		for i, c := range ch.Consumers {
			consumers[i] = c.Stage + "." + c.Input
		}
		channelRows = append(channelRows, graphChannel{
			Channel:   name,
			Kind:      string(ch.Kind),
			Width:     ch.Width.String(),
			Producer:  ch.Producer,
			Consumers: strings.Join(consumers, ","),
		})
	}

	if out.IsJSON() {
		out.JSON(map[string]any{"stages": stageRows, "channels": channelRows})
		return
	}

	headers := []string{"STAGE", "TOOL", "WIDTH", "DEPENDS_ON"}
	if samples >= 0 {
		headers = []string{"STAGE", "TOOL", "WIDTH", "INSTANCES", "DEPENDS_ON"}
	}
	rows := make([][]string, len(stageRows))
	for i, s := range stageRows {
		if samples >= 0 {
			rows[i] = []string{s.Stage, s.Tool, s.Width, strconv.Itoa(s.Instances), s.DependsOn}
		} else {
			rows[i] = []string{s.Stage, s.Tool, s.Width, s.DependsOn}
		}
	}
	out.Table(headers, rows)
	out.Text("\n")

	rows = make([][]string, len(channelRows))
	for i, c := range channelRows {
		rows[i] = []string{c.Channel, c.Kind, c.Width, c.Producer, c.Consumers}
	}
	out.Table([]string{"CHANNEL", "KIND", "WIDTH", "PRODUCER", "CONSUMERS"}, rows)
}
