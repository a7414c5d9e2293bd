package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/shaiso/Spectra/internal/engine"
)

// Имена служебных файлов в рабочей директории экземпляра.
const (
	CommandScript = ".command.sh"
	CommandOut    = ".command.out"
	CommandErr    = ".command.err"
	ExitCodeFile  = ".exitcode"
)

// stderrTailLines — сколько последних строк stderr попадает в StageError.
const stderrTailLines = 20

// ProcessExecutor запускает внешний инструмент как subprocess.
//
// Процесс выполняется в рабочей директории экземпляра, stdout и stderr
// пишутся в .command.out и .command.err. Отмена ctx убивает процесс.
type ProcessExecutor struct {
	// ToolDir — каталог с исполняемыми файлами (пусто = поиск в PATH).
	ToolDir string

	// Env — дополнительные переменные окружения.
	Env []string
}

// Execute выполняет req.Argv.
func (e *ProcessExecutor) Execute(ctx context.Context, req *Request) (*ExecutionResult, error) {
	if len(req.Argv) == 0 {
		return nil, fmt.Errorf("%w: empty command", ErrToolNotFound)
	}

	name := req.Argv[0]
	if e.ToolDir != "" {
		name = filepath.Join(e.ToolDir, name)
	}

	script := "#!/bin/sh\n" + engine.FormatCommand(req.Argv) + "\n"
	if err := os.WriteFile(filepath.Join(req.WorkDir, CommandScript), []byte(script), 0o755); err != nil {
		return nil, fmt.Errorf("write command script: %w", err)
	}

	stdout, err := os.Create(filepath.Join(req.WorkDir, CommandOut))
	if err != nil {
		return nil, fmt.Errorf("create stdout file: %w", err)
	}
	defer stdout.Close()

	errPath := filepath.Join(req.WorkDir, CommandErr)
	stderr, err := os.Create(errPath)
	if err != nil {
		return nil, fmt.Errorf("create stderr file: %w", err)
	}
	defer stderr.Close()

	cmd := exec.CommandContext(ctx, name, req.Argv[1:]...)
	cmd.Dir = req.WorkDir
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	if len(e.Env) > 0 {
		cmd.Env = append(os.Environ(), e.Env...)
	}

	runErr := cmd.Run()

	// Отмена run важнее кода выхода убитого процесса
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			code := exitErr.ExitCode()
			writeExitCode(req.WorkDir, code)
			return &ExecutionResult{ExitCode: code, Stderr: tail(errPath, stderrTailLines)}, nil
		}
		if errors.Is(runErr, exec.ErrNotFound) || errors.Is(runErr, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrToolNotFound, req.Argv[0])
		}
		return nil, fmt.Errorf("run %s: %w", req.Argv[0], runErr)
	}

	writeExitCode(req.WorkDir, 0)
	return &ExecutionResult{ExitCode: 0, Stderr: tail(errPath, stderrTailLines)}, nil
}

func writeExitCode(dir string, code int) {
	_ = os.WriteFile(filepath.Join(dir, ExitCodeFile), []byte(fmt.Sprintf("%d\n", code)), 0o644)
}

// tail возвращает последние n строк файла.
func tail(path string, n int) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	lines := make([]string, 0, n)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if len(lines) == n {
			lines = lines[1:]
		}
		lines = append(lines, scanner.Text())
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
