package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/Spectra/internal/domain"
	"github.com/shaiso/Spectra/internal/lock"
	"github.com/shaiso/Spectra/internal/mq"
	"github.com/shaiso/Spectra/internal/stages"
	"github.com/shaiso/Spectra/internal/worker"
)

// fileExecutor пишет непустой файл по каждому объявленному выходу.
type fileExecutor struct{}

func (fileExecutor) Execute(_ context.Context, req *worker.Request) (*worker.ExecutionResult, error) {
	for _, paths := range req.OutputPaths {
		for _, p := range paths {
			if err := os.WriteFile(p, []byte(req.Stage.Name+"\n"), 0o644); err != nil {
				return nil, err
			}
		}
	}
	return &worker.ExecutionResult{}, nil
}

// blockingExecutor сообщает о старте и ждёт отмены ctx.
type blockingExecutor struct {
	started chan struct{}
	once    sync.Once
}

func (b *blockingExecutor) Execute(ctx context.Context, _ *worker.Request) (*worker.ExecutionResult, error) {
	b.once.Do(func() { close(b.started) })
	<-ctx.Done()
	return nil, ctx.Err()
}

func testOutputFn(stdout, stderr *bytes.Buffer, jsonMode bool) func() *Output {
	return func() *Output { return NewOutputTo(stdout, stderr, jsonMode) }
}

func execute(t *testing.T, factory func(func() *Output) *cobra.Command, jsonMode bool, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := &cobra.Command{Use: "spectra", SilenceUsage: true, SilenceErrors: true}
	root.AddCommand(factory(testOutputFn(&stdout, &stderr, jsonMode)))
	root.SetArgs(args)
	root.SetOut(&stderr)
	root.SetErr(&stderr)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func writeInputs(t *testing.T, samples ...string) (string, string) {
	t.Helper()
	dir := t.TempDir()
	for _, s := range samples {
		require.NoError(t, os.WriteFile(filepath.Join(dir, s+".mzML"), []byte("spectra"), 0o644))
	}
	db := filepath.Join(dir, "human.fasta")
	require.NoError(t, os.WriteFile(db, []byte(">P1\nMK\n"), 0o644))
	return filepath.Join(dir, "*.mzML"), db
}

func TestStagesCmd(t *testing.T) {
	stdout, _, err := execute(t, NewStagesCmd, false, "stages")
	require.NoError(t, err)

	assert.Contains(t, stdout, "search_engine")
	assert.Contains(t, stdout, stages.ReportStage)
	assert.Contains(t, stdout, "per_item")
	assert.Contains(t, stdout, "collected")
}

func TestStagesCmd_JSON(t *testing.T) {
	stdout, _, err := execute(t, NewStagesCmd, true, "stages")
	require.NoError(t, err)

	var cat domain.Catalog
	require.NoError(t, json.Unmarshal([]byte(stdout), &cat))
	assert.Equal(t, stages.PipelineName, cat.Name)
	assert.Len(t, cat.Stages, len(stages.Catalog().Stages))
}

func TestGraphCmd(t *testing.T) {
	stdout, _, err := execute(t, NewGraphCmd, false, "graph")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stdout, "graph TD\n"))
	assert.Contains(t, stdout, "search_engine")
}

func TestValidateCmd_Symbolic(t *testing.T) {
	stdout, stderr, err := execute(t, NewValidateCmd, false, "validate")
	require.NoError(t, err)

	assert.Contains(t, stdout, "DEPENDS_ON")
	assert.NotContains(t, stdout, "INSTANCES")
	assert.Contains(t, stdout, "CHANNEL")
	assert.Contains(t, stderr, "is valid")
}

func TestValidateCmd_WithInputs(t *testing.T) {
	pattern, db := writeInputs(t, "s1", "s2", "s3")

	stdout, _, err := execute(t, NewValidateCmd, true, "validate", "--spectra", pattern, "--database", db)
	require.NoError(t, err)

	var got struct {
		Stages []graphStage `json:"stages"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &got))

	instances := make(map[string]int)
	for _, s := range got.Stages {
		instances[s.Stage] = s.Instances
	}
	assert.Equal(t, 3, instances["search_engine"])
	assert.Equal(t, 1, instances[stages.ReportStage])
}

func TestValidateCmd_BadInputs(t *testing.T) {
	pattern, _ := writeInputs(t, "s1")

	_, _, err := execute(t, NewValidateCmd, false, "validate", "--spectra", pattern)
	assert.Error(t, err)

	_, _, err = execute(t, NewValidateCmd, false, "validate", "--spectra", pattern, "--database", "absent.fasta", "--param", "nope=1")
	assert.Error(t, err)
}

func TestRunCmd_RequiresInputs(t *testing.T) {
	_, _, err := execute(t, NewRunCmd, false, "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestRunOptions_Overrides(t *testing.T) {
	opts := RunOptions{Params: []string{"enzyme=Lys-C"}, OutDir: "out", WorkDir: "work"}
	assert.Equal(t, []string{"enzyme=Lys-C", "outdir=out", "workdir=work"}, opts.overrides())
	assert.Equal(t, []string{"enzyme=Lys-C"}, opts.Params, "flags must not be mutated")
}

func TestPipeline_Execute(t *testing.T) {
	pattern, db := writeInputs(t, "s1", "s2")
	dir := t.TempDir()

	registry := worker.NewRegistry()
	registry.SetTool(fileExecutor{})
	registry.Register(stages.ReportStage, fileExecutor{})

	opts := &RunOptions{
		Spectra:     pattern,
		Database:    db,
		OutDir:      filepath.Join(dir, "results"),
		WorkDir:     filepath.Join(dir, "work"),
		MaxParallel: 4,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	run, summary, err := NewPipeline(nil, nil, registry, nil).Execute(ctx, opts, "cli")
	require.NoError(t, err)
	require.NotNil(t, summary)

	assert.Equal(t, "cli", run.Trigger)
	assert.Equal(t, domain.RunStatusSucceeded, summary.Status)
	assert.Equal(t, []string{"s1", "s2"}, summary.Samples)
	assert.NotEmpty(t, summary.Published)

	se, ok := summary.Stage("search_engine")
	require.True(t, ok)
	assert.Equal(t, 2, se.Succeeded)

	var stdout, stderr bytes.Buffer
	printSummary(NewOutputTo(&stdout, &stderr, false), summary)
	assert.Contains(t, stdout.String(), "search_engine")
	assert.Contains(t, stderr.String(), "SUCCEEDED")
}

func TestPipeline_ExecuteStopsWhenOutdirLockLost(t *testing.T) {
	pattern, db := writeInputs(t, "s1", "s2")
	dir := t.TempDir()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	infra := &Infra{Locker: lock.New(lock.Config{Client: client, TTL: 300 * time.Millisecond})}

	blocking := &blockingExecutor{started: make(chan struct{})}
	registry := worker.NewRegistry()
	registry.SetTool(fileExecutor{})
	registry.Register("search_engine", blocking)

	opts := &RunOptions{
		Spectra:     pattern,
		Database:    db,
		OutDir:      filepath.Join(dir, "results"),
		WorkDir:     filepath.Join(dir, "work"),
		MaxParallel: 4,
	}

	go func() {
		<-blocking.started
		for _, key := range mr.Keys() {
			mr.Set(key, "another-run")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, summary, err := NewPipeline(infra, nil, registry, nil).Execute(ctx, opts, "cli")
	require.Error(t, err)
	assert.ErrorIs(t, err, lock.ErrLost)
	require.NotNil(t, summary)
	assert.NotEqual(t, domain.RunStatusSucceeded, summary.Status)
	indexed, ok := summary.Stage("index_peptides")
	require.True(t, ok)
	assert.Zero(t, indexed.Succeeded, "nothing downstream of the held stage may run")
}

func TestPipeline_ExecuteInvalidParams(t *testing.T) {
	pattern, db := writeInputs(t, "s1")
	opts := &RunOptions{Spectra: pattern, Database: db, Params: []string{"max_cpus=0"}}

	run, summary, err := NewPipeline(nil, nil, worker.NewRegistry(), nil).Execute(context.Background(), opts, "cli")
	assert.ErrorIs(t, err, domain.ErrInvalidParam)
	assert.Nil(t, run)
	assert.Nil(t, summary)
}

func TestFormatEvent(t *testing.T) {
	runID := uuid.New()

	msg := mq.NewMessage(mq.MessageTypeRunFinished, mq.RunEventPayload{
		RunID:    runID,
		Pipeline: stages.PipelineName,
		Status:   "FAILED",
		Samples:  3,
		Error:    "stage failed",
	})
	line := formatEvent(msg)
	assert.Contains(t, line, "run.finished")
	assert.Contains(t, line, "run="+runID.String())
	assert.Contains(t, line, "samples=3")
	assert.Contains(t, line, `error="stage failed"`)

	msg = mq.NewMessage(mq.MessageTypeInstanceCompleted, mq.InstanceEventPayload{
		RunID:    runID,
		Stage:    "search_engine",
		SampleID: "s1",
		Status:   "SUCCEEDED",
	})
	line = formatEvent(msg)
	assert.Contains(t, line, "stage=search_engine")
	assert.Contains(t, line, "sample=s1")
	assert.Contains(t, line, "exit=0")
}

func TestOutput_Table(t *testing.T) {
	var stdout, stderr bytes.Buffer
	out := NewOutputTo(&stdout, &stderr, false)

	out.Print([]string{"NAME", "STATUS"}, [][]string{{"a", "ok"}}, nil)
	out.Success("done")

	lines := strings.Split(strings.TrimSpace(stdout.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "NAME  STATUS", lines[0])
	assert.Equal(t, "----  ------", lines[1])
	assert.Equal(t, "a     ok", lines[2])
	assert.Equal(t, "done\n", stderr.String())
}

func TestInfra_RequireHistory(t *testing.T) {
	assert.ErrorIs(t, (&Infra{}).RequireHistory(), ErrNoDatabase)
}

func TestPipeline_ActiveRunsBeforeExecute(t *testing.T) {
	assert.Empty(t, NewPipeline(nil, nil, nil, nil).ActiveRuns())
}
