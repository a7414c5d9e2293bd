package stages

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Spectra/internal/domain"
	"github.com/shaiso/Spectra/internal/engine"
)

func TestCatalog_Assembles(t *testing.T) {
	dag, err := engine.BuildDAG(Catalog())
	require.NoError(t, err)

	assert.Equal(t, 18, dag.Size())
	require.Len(t, dag.RootNodes, 1)
	assert.Equal(t, "decoy_database", dag.RootNodes[0].ID)
}

func TestCatalog_Widths(t *testing.T) {
	dag, err := engine.BuildDAG(Catalog())
	require.NoError(t, err)

	perSample := map[string]bool{
		"search_engine":      true,
		"index_peptides":     true,
		"extract_pep":        true,
		"filter_psms":        true,
		"rt_transform_mzml":  true,
		"rt_transform_idxml": true,
		"quantify_features":  true,
	}

	for _, samples := range []int{1, 2, 5, 12} {
		for _, st := range Catalog().Stages {
			want := 1
			if perSample[st.Name] {
				want = samples
			}
			assert.Equal(t, want, dag.ExpectedInstances(st.Name, samples),
				"stage %s with %d samples", st.Name, samples)
		}
	}
}

func TestCatalog_Channels(t *testing.T) {
	dag, err := engine.BuildDAG(Catalog())
	require.NoError(t, err)

	searchdb, ok := dag.Channel("searchdb")
	require.True(t, ok)
	assert.Equal(t, domain.ChannelBroadcast, searchdb.Kind)
	assert.Len(t, searchdb.Consumers, 2)

	trafo, ok := dag.Channel("trafo")
	require.True(t, ok)
	assert.True(t, trafo.Aggregate)
	assert.Equal(t, engine.WidthSamples, trafo.ElementWidth)

	spectra, ok := dag.Channel("spectra")
	require.True(t, ok)
	assert.Equal(t, domain.ChannelFork, spectra.Kind)
	assert.Len(t, spectra.Consumers, 2)

	idPep, ok := dag.Channel("id_pep")
	require.True(t, ok)
	assert.Equal(t, domain.ChannelFork, idPep.Kind)

	final := make([]string, 0)
	for _, ch := range dag.FinalChannels() {
		final = append(final, ch.Name)
	}
	assert.Equal(t, []string{"consensus_table", "report_html", "report_json"}, final)
}

func TestCatalog_TopologicalOrder(t *testing.T) {
	dag, err := engine.BuildDAG(Catalog())
	require.NoError(t, err)

	pos := make(map[string]int)
	for i, n := range dag.Order {
		pos[n.ID] = i
	}

	edges := [][2]string{
		{"decoy_database", "search_engine"},
		{"filter_psms", "align_maps"},
		{"align_maps", "rt_transform_mzml"},
		{"align_maps", "rt_transform_idxml"},
		{"rt_transform_idxml", "merge_ids"},
		{"filter_ids", "quantify_features"},
		{"rt_transform_mzml", "quantify_features"},
		{"quantify_features", "link_features"},
		{"resolve_conflicts", "export_consensus"},
		{"export_mztab", "report"},
	}
	for _, e := range edges {
		assert.Less(t, pos[e[0]], pos[e[1]], "%s before %s", e[0], e[1])
	}
}

func TestCatalog_CommandsRender(t *testing.T) {
	cat := Catalog()
	params := domain.DefaultParams()

	for i := range cat.Stages {
		st := &cat.Stages[i]
		if st.Kind != domain.StageKindTool {
			continue
		}

		b := engine.Binding{
			Inputs:  make(map[string]domain.Token),
			Outputs: make(map[string][]string),
			Params:  params,
			Threads: 2,
		}
		for _, in := range st.Inputs {
			b.Inputs[in.Name] = domain.Token{Path: "/in/" + in.Name, SampleID: "a"}
		}
		for _, out := range st.Outputs {
			b.Outputs[out.Name] = []string{"a" + out.Suffix}
		}

		argv, err := engine.RenderCommand(st, b)
		require.NoError(t, err, st.Name)
		assert.Equal(t, st.Tool, argv[0])
		assert.Contains(t, argv, "-threads", st.Name)
	}
}

func TestCatalog_IndependentCopies(t *testing.T) {
	a := Catalog()
	a.Stages[0].Name = "changed"

	b := Catalog()
	assert.Equal(t, "decoy_database", b.Stages[0].Name)
}
