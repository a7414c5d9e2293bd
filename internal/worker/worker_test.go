package worker

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Spectra/internal/domain"
)

// fakeExecutor записывает заданное содержимое во все выходы.
type fakeExecutor struct {
	content  string
	exitCode int
	skip     bool
	err      error
	got      *Request
}

func (f *fakeExecutor) Execute(_ context.Context, req *Request) (*ExecutionResult, error) {
	f.got = req
	if f.err != nil {
		return nil, f.err
	}
	if !f.skip {
		for _, paths := range req.OutputPaths {
			for _, p := range paths {
				if err := os.WriteFile(p, []byte(f.content), 0o644); err != nil {
					return nil, err
				}
			}
		}
	}
	return &ExecutionResult{ExitCode: f.exitCode, Stderr: "tool said no"}, nil
}

func newTestWorker(t *testing.T, exec Executor) (*Worker, string, string) {
	t.Helper()
	root := t.TempDir()
	workDir := filepath.Join(root, "work")
	outDir := filepath.Join(root, "results")

	reg := NewRegistry()
	reg.SetTool(exec)
	reg.Register("report", exec)

	w := New(Config{
		Registry: reg,
		Params:   domain.DefaultParams(),
		WorkDir:  workDir,
		OutDir:   outDir,
	})
	return w, workDir, outDir
}

func searchStage() *domain.StageDef {
	return &domain.StageDef{
		Name: "search_engine", Tool: "CometAdapter", Kind: domain.StageKindTool,
		Inputs: []domain.InputDef{{Name: "mzml", Channel: "spectra", Cardinality: domain.CardinalityPerItem}},
		Outputs: []domain.OutputDef{
			{Name: "ids", Channel: "id_raw", Kind: domain.ChannelQueue, Suffix: "_comet.idXML"},
		},
		Command: domain.CommandSpec{Args: []domain.Arg{
			{Flag: "-in", Source: domain.ArgInput, Ref: "mzml"},
			{Flag: "-out", Source: domain.ArgOutput, Ref: "ids"},
			{Flag: "-threads", Source: domain.ArgThreads},
		}},
	}
}

func newInstance(stage, sample string, inputs map[string]domain.Token) *domain.Instance {
	inst := domain.NewInstance(uuid.New(), stage, sample, 0)
	inst.Inputs = inputs
	return inst
}

func TestWorker_RunPublishesOutputs(t *testing.T) {
	exec := &fakeExecutor{content: "<idXML/>"}
	w, workDir, outDir := newTestWorker(t, exec)

	inst := newInstance("search_engine", "a", map[string]domain.Token{
		"mzml": {Path: "/data/a.mzML", SampleID: "a", Stage: "spectra"},
	})

	res, err := w.Run(context.Background(), inst, searchStage())
	require.NoError(t, err)

	tok := res.Outputs["ids"]
	assert.Equal(t, "a", tok.SampleID)
	assert.Equal(t, "search_engine", tok.Stage)
	assert.Equal(t, filepath.Join(outDir, "search_engine", "a_comet.idXML"), tok.Path)
	assert.Equal(t, []string{tok.Path}, res.Published)

	data, err := os.ReadFile(tok.Path)
	require.NoError(t, err)
	assert.Equal(t, "<idXML/>", string(data))

	// Команда получила пути внутри рабочей директории экземпляра
	dir := w.InstanceDir(inst)
	assert.True(t, filepath.IsAbs(dir))
	assert.Contains(t, dir, filepath.Join(workDir, "search_engine", "a-"))
	assert.Equal(t, []string{"CometAdapter", "-in", "/data/a.mzML", "-out", filepath.Join(dir, "a_comet.idXML"), "-threads", "1"},
		exec.got.Argv)
}

func TestWorker_RunPerElementAggregate(t *testing.T) {
	exec := &fakeExecutor{content: "<trafo/>"}
	w, _, _ := newTestWorker(t, exec)

	stage := &domain.StageDef{
		Name: "align_maps", Tool: "MapAlignerIdentification", Kind: domain.StageKindTool, MergedSample: "merged",
		Inputs: []domain.InputDef{{Name: "ids", Channel: "id_filtered", Cardinality: domain.CardinalityCollected}},
		Outputs: []domain.OutputDef{
			{Name: "trafo", Channel: "trafo", Kind: domain.ChannelBroadcast, Suffix: ".trafoXML", PerElement: true},
		},
		Command: domain.CommandSpec{Args: []domain.Arg{
			{Flag: "-in", Source: domain.ArgInput, Ref: "ids"},
			{Flag: "-trafo_out", Source: domain.ArgOutput, Ref: "trafo"},
		}},
	}
	agg := domain.NewAggregate("align_maps", "merged", []domain.Token{
		{Path: "/w/b.idXML", SampleID: "b"},
		{Path: "/w/a.idXML", SampleID: "a"},
	})

	res, err := w.Run(context.Background(), newInstance("align_maps", "merged", map[string]domain.Token{"ids": agg}), stage)
	require.NoError(t, err)

	trafo := res.Outputs["trafo"]
	require.True(t, trafo.IsAggregate())
	assert.Equal(t, "merged", trafo.SampleID)
	assert.Equal(t, []string{"b", "a"}, trafo.SampleIDs())
	assert.Len(t, res.Published, 2)
	assert.Len(t, exec.got.Argv, 7)
}

func TestWorker_RunToolFailure(t *testing.T) {
	w, _, _ := newTestWorker(t, &fakeExecutor{content: "x", exitCode: 3})

	inst := newInstance("search_engine", "a", map[string]domain.Token{"mzml": {Path: "/a.mzML", SampleID: "a"}})
	_, err := w.Run(context.Background(), inst, searchStage())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrToolFailed)

	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "search_engine", se.Stage)
	assert.Equal(t, "a", se.SampleID)
	assert.Equal(t, 3, se.ExitCode)
	assert.Contains(t, err.Error(), "tool said no")
	assert.Contains(t, err.Error(), "stage search_engine (sample a) failed")
}

func TestWorker_RunMissingOutput(t *testing.T) {
	w, _, outDir := newTestWorker(t, &fakeExecutor{skip: true})

	inst := newInstance("search_engine", "a", map[string]domain.Token{"mzml": {Path: "/a.mzML", SampleID: "a"}})
	_, err := w.Run(context.Background(), inst, searchStage())
	assert.ErrorIs(t, err, ErrMissingOutput)
	assert.True(t, IsStageError(err))

	// Ничего не опубликовано
	_, statErr := os.Stat(filepath.Join(outDir, "search_engine", "a_comet.idXML"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestWorker_RunEmptyOutput(t *testing.T) {
	w, _, _ := newTestWorker(t, &fakeExecutor{content: ""})

	inst := newInstance("search_engine", "a", map[string]domain.Token{"mzml": {Path: "/a.mzML", SampleID: "a"}})
	_, err := w.Run(context.Background(), inst, searchStage())
	assert.ErrorIs(t, err, ErrEmptyOutput)
}

func TestWorker_RunExecutorError(t *testing.T) {
	w, _, _ := newTestWorker(t, &fakeExecutor{err: ErrToolNotFound})

	inst := newInstance("search_engine", "a", map[string]domain.Token{"mzml": {Path: "/a.mzML", SampleID: "a"}})
	_, err := w.Run(context.Background(), inst, searchStage())
	assert.ErrorIs(t, err, ErrToolNotFound)

	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, -1, se.ExitCode)
}

func TestWorker_RunBuiltin(t *testing.T) {
	exec := &fakeExecutor{content: "{}"}
	w, _, _ := newTestWorker(t, exec)

	stage := &domain.StageDef{
		Name: "report", Kind: domain.StageKindBuiltin, MergedSample: "merged",
		Inputs: []domain.InputDef{{Name: "mztab", Channel: "mztab", Cardinality: domain.CardinalityPerItem}},
		Outputs: []domain.OutputDef{
			{Name: "json", Channel: "report_json", Kind: domain.ChannelQueue, Suffix: "_report.json"},
		},
	}

	inst := newInstance("report", "merged", map[string]domain.Token{"mztab": {Path: "/m.mzTab", SampleID: "merged"}})
	res, err := w.Run(context.Background(), inst, stage)
	require.NoError(t, err)
	assert.Empty(t, exec.got.Argv)
	assert.Equal(t, "merged", res.Outputs["json"].SampleID)

	stage.Name = "unknown"
	_, err = w.Run(context.Background(), inst, stage)
	assert.ErrorIs(t, err, ErrUnknownBuiltin)
}

// --- ProcessExecutor Tests ---

func shellStage(script string) *domain.StageDef {
	return &domain.StageDef{
		Name: "shell", Tool: "sh", Kind: domain.StageKindTool,
		Inputs: []domain.InputDef{{Name: "in", Channel: "c", Cardinality: domain.CardinalityPerItem}},
		Outputs: []domain.OutputDef{
			{Name: "out", Channel: "d", Kind: domain.ChannelQueue, Suffix: ".txt"},
		},
		Command: domain.CommandSpec{Args: []domain.Arg{
			{Flag: "-c", Source: domain.ArgLiteral, Value: script},
			{Source: domain.ArgLiteral, Value: "sh"},
			{Source: domain.ArgOutput, Ref: "out"},
		}},
	}
}

func TestProcessExecutor_Success(t *testing.T) {
	w, _, _ := newTestWorker(t, &ProcessExecutor{})

	inst := newInstance("shell", "a", map[string]domain.Token{"in": {Path: "/a", SampleID: "a"}})
	res, err := w.Run(context.Background(), inst, shellStage(`echo hello; printf result > "$1"`))
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)

	dir := w.InstanceDir(inst)
	out, err := os.ReadFile(filepath.Join(dir, CommandOut))
	require.NoError(t, err)
	assert.Equal(t, "hello\n", string(out))

	script, err := os.ReadFile(filepath.Join(dir, CommandScript))
	require.NoError(t, err)
	assert.Contains(t, string(script), "sh -c")

	published, err := os.ReadFile(res.Outputs["out"].Path)
	require.NoError(t, err)
	assert.Equal(t, "result", string(published))
}

func TestProcessExecutor_NonZeroExit(t *testing.T) {
	w, _, _ := newTestWorker(t, &ProcessExecutor{})

	inst := newInstance("shell", "b", map[string]domain.Token{"in": {Path: "/b", SampleID: "b"}})
	_, err := w.Run(context.Background(), inst, shellStage(`echo boom >&2; exit 3`))

	var se *StageError
	require.True(t, errors.As(err, &se))
	assert.ErrorIs(t, err, ErrToolFailed)
	assert.Equal(t, 3, se.ExitCode)
	assert.Equal(t, "boom", se.Stderr)

	code, err := os.ReadFile(filepath.Join(w.InstanceDir(inst), ExitCodeFile))
	require.NoError(t, err)
	assert.Equal(t, "3\n", string(code))
}

func TestProcessExecutor_ToolNotFound(t *testing.T) {
	w, _, _ := newTestWorker(t, &ProcessExecutor{})

	stage := shellStage("true")
	stage.Tool = "spectra-no-such-tool"

	inst := newInstance("shell", "c", map[string]domain.Token{"in": {Path: "/c", SampleID: "c"}})
	_, err := w.Run(context.Background(), inst, stage)
	assert.ErrorIs(t, err, ErrToolNotFound)
}

func TestProcessExecutor_Cancelled(t *testing.T) {
	w, _, _ := newTestWorker(t, &ProcessExecutor{})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	inst := newInstance("shell", "d", map[string]domain.Token{"in": {Path: "/d", SampleID: "d"}})
	start := time.Now()
	_, err := w.Run(ctx, inst, shellStage(`sleep 10`))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, IsStageError(err))
	assert.Less(t, time.Since(start), 5*time.Second)
}
