package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/sandevgo/tuskmem/internal/service/dispatch"
)

const (
	maxOutputLines     = 200
	defaultExecTimeout = 5 * time.Minute
)

type ShellInput struct {
	Command string `json:"command" jsonschema:"the shell command to run"`
}

type ShellOutput struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	TimedOut bool   `json:"timed_out,omitempty"`
}

// Shell runs commands in the working directory. A non-zero exit is a
// result, not an error, so the model can read what went wrong.
type Shell struct {
	workDir string
	timeout time.Duration
}

func NewShell(workDir string, timeout time.Duration) *Shell {
	if timeout <= 0 {
		timeout = defaultExecTimeout
	}
	return &Shell{workDir: workDir, timeout: timeout}
}

func (s *Shell) Tool() dispatch.Tool {
	return dispatch.MustFunc("execute_command", "Run a shell command in the working directory", s.ExecuteCommand)
}

func (s *Shell) ExecuteCommand(ctx context.Context, in ShellInput) (ShellOutput, error) {
	if strings.TrimSpace(in.Command) == "" {
		return ShellOutput{}, errors.New("command must not be empty")
	}

	runCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(runCtx, "cmd", "/C", in.Command)
	} else {
		cmd = exec.CommandContext(runCtx, "sh", "-c", in.Command)
	}
	cmd.Dir = s.workDir
	// children holding the pipes open must not outlive the timeout
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := ShellOutput{
		Stdout: truncateLines(stdout.String()),
		Stderr: truncateLines(stderr.String()),
	}
	if err == nil {
		return out, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ShellOutput{}, ctxErr
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		out.ExitCode = -1
		out.TimedOut = true
		return out, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		out.ExitCode = exitErr.ExitCode()
		return out, nil
	}
	return ShellOutput{}, fmt.Errorf("failed to run command: %w", err)
}

// truncateLines keeps the tail, where errors usually are.
func truncateLines(output string) string {
	output = strings.TrimSpace(output)
	lines := strings.Split(output, "\n")
	if len(lines) <= maxOutputLines {
		return output
	}

	tail := lines[len(lines)-maxOutputLines:]
	return fmt.Sprintf("... (output truncated, showing last %d lines)\n%s", maxOutputLines, strings.Join(tail, "\n"))
}
