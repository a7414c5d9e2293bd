package orchestrator

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Spectra/internal/dataflow"
	"github.com/shaiso/Spectra/internal/domain"
	"github.com/shaiso/Spectra/internal/engine"
	"github.com/shaiso/Spectra/internal/stages"
	"github.com/shaiso/Spectra/internal/telemetry"
	"github.com/shaiso/Spectra/internal/worker"
)

// fakeRunner строит выходы по плану стадии, не запуская инструменты.
type fakeRunner struct {
	// delay — задержка выполнения (случайная в пределах jitter).
	delay  time.Duration
	jitter time.Duration

	// failStage/failSample — экземпляр, который завершится ошибкой.
	failStage  string
	failSample string

	// blockStage/blockSample — экземпляры, которые ждут отмены ctx.
	// Пустой blockSample блокирует все экземпляры стадии.
	blockStage  string
	blockSample string
	blocked     chan struct{}

	// logRuns — писать запись в логгер из ctx экземпляра.
	logRuns bool

	mu        sync.Mutex
	instances []*domain.Instance
	running   map[string]int
	total     int
	maxTotal  int
	maxStage  map[string]int
	succeeded map[string]int
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{
		running:  make(map[string]int),
		maxStage:  make(map[string]int),
		succeeded: make(map[string]int),
		blocked:   make(chan struct{}, 64),
	}
}

func (f *fakeRunner) InstanceDir(inst *domain.Instance) string {
	return filepath.Join("/work", inst.Stage, inst.SampleID)
}

func (f *fakeRunner) Run(ctx context.Context, inst *domain.Instance, stage *domain.StageDef) (*worker.Result, error) {
	f.enter(inst)
	defer f.leave(inst)

	if f.logRuns {
		telemetry.FromContext(ctx, nil).Info("tool invoked")
	}

	if stage.Name == f.blockStage && (f.blockSample == "" || inst.SampleID == f.blockSample) {
		f.blocked <- struct{}{}
		<-ctx.Done()
		return nil, ctx.Err()
	}

	d := f.delay
	if f.jitter > 0 {
		d += time.Duration(rand.Int63n(int64(f.jitter)))
	}
	if d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if stage.Name == f.failStage && (f.failSample == "" || inst.SampleID == f.failSample) {
		return nil, &worker.StageError{
			Stage:    stage.Name,
			SampleID: inst.SampleID,
			ExitCode: 3,
			Stderr:   "segmentation fault",
			WorkDir:  f.InstanceDir(inst),
			Err:      worker.ErrToolFailed,
		}
	}

	plans, err := engine.PlanOutputs(stage, inst.SampleID, inst.Inputs)
	if err != nil {
		return nil, err
	}

	res := &worker.Result{Outputs: make(map[string]domain.Token)}
	for _, plan := range plans {
		tokens := make([]domain.Token, len(plan.Files))
		for i, file := range plan.Files {
			p := filepath.Join("/results", stage.Name, file)
			tokens[i] = domain.Token{Path: p, SampleID: plan.SampleIDs[i], Stage: stage.Name}
			res.Published = append(res.Published, p)
		}
		if plan.Aggregate {
			res.Outputs[plan.Name] = domain.NewAggregate(stage.Name, inst.SampleID, tokens)
		} else {
			res.Outputs[plan.Name] = tokens[0]
		}
	}

	f.mu.Lock()
	f.succeeded[stage.Name]++
	f.mu.Unlock()
	return res, nil
}

func (f *fakeRunner) enter(inst *domain.Instance) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.instances = append(f.instances, inst)
	f.running[inst.Stage]++
	f.total++
	if f.total > f.maxTotal {
		f.maxTotal = f.total
	}
	if f.running[inst.Stage] > f.maxStage[inst.Stage] {
		f.maxStage[inst.Stage] = f.running[inst.Stage]
	}
}

func (f *fakeRunner) leave(inst *domain.Instance) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running[inst.Stage]--
	f.total--
}

func (f *fakeRunner) ran(stage string) []*domain.Instance {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.Instance, 0)
	for _, inst := range f.instances {
		if inst.Stage == stage {
			out = append(out, inst)
		}
	}
	return out
}

func (f *fakeRunner) done(stage string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.succeeded[stage]
}

func testDAG(t *testing.T) *engine.DAG {
	t.Helper()
	d, err := engine.BuildDAG(stages.Catalog())
	require.NoError(t, err)
	return d
}

func testRun(samples ...string) *domain.Run {
	params := domain.DefaultParams()
	params.OutDir = ""
	return domain.NewRun(stages.PipelineName, samples, params)
}

func testSources(samples ...string) map[string][]domain.Token {
	spectra := make([]domain.Token, len(samples))
	for i, s := range samples {
		spectra[i] = domain.Token{Path: "/data/" + s + ".mzML", SampleID: s, Stage: stages.SourceSpectra}
	}
	return map[string][]domain.Token{
		stages.SourceSpectra:  spectra,
		stages.SourceDatabase: {{Path: "/data/human.fasta", SampleID: "human", Stage: stages.SourceDatabase}},
	}
}

func TestExecute_FullPipeline(t *testing.T) {
	d := testDAG(t)
	runner := newFakeRunner()
	o := New(Config{DAG: d, Runner: runner, MaxParallel: 4})

	samples := []string{"a", "b", "c"}
	run := testRun(samples...)

	summary, err := o.Execute(context.Background(), run, testSources(samples...))
	require.NoError(t, err)
	require.NotNil(t, summary)

	assert.Equal(t, domain.RunStatusSucceeded, run.Status)
	assert.Equal(t, domain.RunStatusSucceeded, summary.Status)
	assert.Empty(t, summary.ErrorKind)
	assert.Len(t, summary.Stages, 18)

	for _, st := range summary.Stages {
		want := d.ExpectedInstances(st.Name, len(samples))
		assert.Equal(t, want, st.Instances, "stage %s", st.Name)
		assert.Equal(t, want, st.Succeeded, "stage %s", st.Name)
		assert.Len(t, runner.ran(st.Name), want, "stage %s", st.Name)
	}

	reports := runner.ran(stages.ReportStage)
	require.Len(t, reports, 1)
	assert.Equal(t, stages.MergedSample, reports[0].SampleID)
	assert.NotEmpty(t, summary.Published)
	assert.Equal(t, 0, o.ActiveRunsCount())
}

func TestExecute_KeyedPairingIgnoresCompletionOrder(t *testing.T) {
	d := testDAG(t)
	runner := newFakeRunner()
	runner.jitter = 5 * time.Millisecond
	o := New(Config{DAG: d, Runner: runner, MaxParallel: 8})

	samples := []string{"s1", "s2", "s3", "s4", "s5"}
	_, err := o.Execute(context.Background(), testRun(samples...), testSources(samples...))
	require.NoError(t, err)

	cat := stages.Catalog()
	checked := 0
	for _, stage := range cat.Stages {
		perItem := stage.PerItemInputs()
		if len(perItem) < 2 {
			continue
		}
		for _, inst := range runner.ran(stage.Name) {
			for _, in := range perItem {
				tok := inst.Inputs[in.Name]
				assert.Equal(t, inst.SampleID, tok.SampleID,
					"stage %s input %s bound to another sample", stage.Name, in.Name)
			}
			checked++
		}
	}
	assert.Positive(t, checked)
}

func TestExecute_InstanceLoggerCarriesRunAndStage(t *testing.T) {
	d := testDAG(t)
	runner := newFakeRunner()
	runner.logRuns = true

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	o := New(Config{DAG: d, Runner: runner, MaxParallel: 4, Logger: logger})

	samples := []string{"a", "b"}
	run := testRun(samples...)
	_, err := o.Execute(context.Background(), run, testSources(samples...))
	require.NoError(t, err)

	invoked := 0
	scanner := bufio.NewScanner(&buf)
	for scanner.Scan() {
		var rec map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		if rec["msg"] != "tool invoked" {
			continue
		}
		invoked++
		assert.Equal(t, run.ID.String(), rec["run_id"])
		assert.NotEmpty(t, rec["stage"])
		assert.NotEmpty(t, rec["sample"])
	}
	require.NoError(t, scanner.Err())
	assert.Len(t, runner.instances, invoked)
}

func TestExecute_ParallelismLimits(t *testing.T) {
	d := testDAG(t)
	runner := newFakeRunner()
	runner.delay = 2 * time.Millisecond
	o := New(Config{DAG: d, Runner: runner, MaxParallel: 6})

	samples := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	_, err := o.Execute(context.Background(), testRun(samples...), testSources(samples...))
	require.NoError(t, err)

	runner.mu.Lock()
	defer runner.mu.Unlock()
	assert.LessOrEqual(t, runner.maxTotal, 6)

	for _, stage := range stages.Catalog().Stages {
		if stage.Parallelism.MaxForks > 0 {
			assert.LessOrEqual(t, runner.maxStage[stage.Name], stage.Parallelism.MaxForks, "stage %s", stage.Name)
		}
	}
}

func TestExecute_StageFailureStopsRun(t *testing.T) {
	d := testDAG(t)
	runner := newFakeRunner()
	runner.failStage = "search_engine"
	runner.failSample = "b"
	o := New(Config{DAG: d, Runner: runner, MaxParallel: 1})

	samples := []string{"a", "b", "c"}
	run := testRun(samples...)

	summary, err := o.Execute(context.Background(), run, testSources(samples...))
	require.Error(t, err)

	var se *worker.StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 3, se.ExitCode)
	assert.ErrorIs(t, err, worker.ErrToolFailed)

	assert.Equal(t, domain.RunStatusFailed, run.Status)
	assert.Equal(t, ErrorKindStage, summary.ErrorKind)
	assert.Equal(t, "search_engine", summary.FailedStage)
	assert.Equal(t, "b", summary.FailedSample)
	assert.Contains(t, summary.Error, "segmentation fault")

	st, ok := summary.Stage("search_engine")
	require.True(t, ok)
	assert.Equal(t, 1, st.Failed)

	assert.Empty(t, runner.ran(stages.ReportStage))
	assert.Empty(t, runner.ran("link_features"))
}

func TestExecute_ContextCancel(t *testing.T) {
	d := testDAG(t)
	runner := newFakeRunner()
	runner.blockStage = "search_engine"
	o := New(Config{DAG: d, Runner: runner, MaxParallel: 4})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-runner.blocked
		cancel()
	}()

	samples := []string{"a", "b"}
	run := testRun(samples...)

	summary, err := o.Execute(ctx, run, testSources(samples...))
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, domain.RunStatusCancelled, run.Status)
	assert.Equal(t, ErrorKindCancelled, summary.ErrorKind)
	assert.Empty(t, runner.ran("index_peptides"))

	st, ok := summary.Stage("search_engine")
	require.True(t, ok)
	assert.Zero(t, st.Succeeded)
}

func TestExecute_BarrierHoldsUntilEverySampleArrives(t *testing.T) {
	d := testDAG(t)
	runner := newFakeRunner()
	runner.blockStage = "quantify_features"
	runner.blockSample = "c"
	o := New(Config{DAG: d, Runner: runner, MaxParallel: 4})

	samples := []string{"a", "b", "c"}
	run := testRun(samples...)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type outcome struct {
		summary *domain.RunSummary
		err     error
	}
	result := make(chan outcome, 1)
	go func() {
		summary, err := o.Execute(ctx, run, testSources(samples...))
		result <- outcome{summary, err}
	}()

	// Координатор затих: два образца квантифицированы, третий удерживается.
	require.Eventually(t, func() bool {
		stats, ok := o.GetActiveRunStats(run.ID)
		return ok && runner.done("quantify_features") == 2 && stats.Running == 1 && stats.Pending == 0
	}, 5*time.Second, 10*time.Millisecond)

	assert.Len(t, runner.ran("quantify_features"), 3)
	assert.Empty(t, runner.ran("link_features"), "collect barrier released with 2 of 3 samples")

	cancel()

	var got outcome
	select {
	case got = <-result:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
	require.ErrorIs(t, got.err, context.Canceled)
	assert.Equal(t, domain.RunStatusCancelled, run.Status)
	assert.Empty(t, runner.ran("link_features"))

	linked, ok := got.summary.Stage("link_features")
	require.True(t, ok)
	assert.Zero(t, linked.Instances)
}

func TestExecute_MissingSource(t *testing.T) {
	d := testDAG(t)
	o := New(Config{DAG: d, Runner: newFakeRunner()})

	sources := testSources("a", "b")
	delete(sources, stages.SourceDatabase)

	run := testRun("a", "b")
	summary, err := o.Execute(context.Background(), run, sources)
	require.ErrorIs(t, err, ErrMissingSource)
	assert.Equal(t, domain.RunStatusFailed, run.Status)
	assert.Equal(t, ErrorKindInternal, summary.ErrorKind)
}

func TestExecute_SourceCountMismatch(t *testing.T) {
	d := testDAG(t)
	o := New(Config{DAG: d, Runner: newFakeRunner()})

	_, err := o.Execute(context.Background(), testRun("a", "b", "c"), testSources("a", "b"))
	assert.ErrorIs(t, err, ErrMissingSource)
}

func TestExecute_NoSamples(t *testing.T) {
	o := New(Config{DAG: testDAG(t), Runner: newFakeRunner()})

	summary, err := o.Execute(context.Background(), testRun(), testSources())
	assert.ErrorIs(t, err, ErrNoSamples)
	assert.Nil(t, summary)
}

func TestExecute_DuplicateSampleIsProtocolError(t *testing.T) {
	d := testDAG(t)
	o := New(Config{DAG: d, Runner: newFakeRunner()})

	sources := testSources("a", "a")
	run := testRun("a", "b")

	summary, err := o.Execute(context.Background(), run, sources)
	require.Error(t, err)
	assert.True(t, dataflow.IsProtocolError(err), "got %v", err)
	assert.Equal(t, ErrorKindProtocol, summary.ErrorKind)
	assert.Equal(t, domain.RunStatusFailed, run.Status)
}

func TestExecute_WritesSummary(t *testing.T) {
	dir := t.TempDir()
	o := New(Config{DAG: testDAG(t), Runner: newFakeRunner(), SummaryDir: dir})

	samples := []string{"a"}
	run := testRun(samples...)
	_, err := o.Execute(context.Background(), run, testSources(samples...))
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, SummaryFile))
	require.NoError(t, err)

	var got domain.RunSummary
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, run.ID, got.RunID)
	assert.Equal(t, domain.RunStatusSucceeded, got.Status)
	assert.Equal(t, []string{"a"}, got.Samples)
}

func TestExecute_AlreadyActive(t *testing.T) {
	d := testDAG(t)
	o := New(Config{DAG: d, Runner: newFakeRunner()})

	run := testRun("a")
	state, err := NewRunState(run, d)
	require.NoError(t, err)
	require.NoError(t, o.addActiveRun(state))

	_, err = o.Execute(context.Background(), run, testSources("a"))
	assert.ErrorIs(t, err, ErrRunAlreadyActive)

	stats, ok := o.GetActiveRunStats(run.ID)
	require.True(t, ok)
	assert.Zero(t, stats.Total)

	active := o.ActiveRuns()
	require.Len(t, active, 1)
	assert.Equal(t, run.ID, active[0].RunID)
	assert.Equal(t, 1, active[0].Samples)
	assert.Equal(t, 1, o.ActiveRunsCount())
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"stage", &worker.StageError{Stage: "x", Err: worker.ErrToolFailed}, ErrorKindStage},
		{"protocol", protocolError("x", "stalled", ErrStalled), ErrorKindProtocol},
		{"cancelled", context.Canceled, ErrorKindCancelled},
		{"deadline", context.DeadlineExceeded, ErrorKindCancelled},
		{"internal", errors.New("boom"), ErrorKindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errorKind(tt.err))
		})
	}
}
