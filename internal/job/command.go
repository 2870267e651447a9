package job

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// CommandAction runs an external program and captures its combined output.
// A non-zero exit status is a failed outcome.
type CommandAction struct {
	Name    string
	Args    []string
	Dir     string
	Env     []string // KEY=VALUE, appended to the process environment
	Timeout time.Duration
}

func (a *CommandAction) Run(ctx context.Context) Outcome {
	if a.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(ctx, a.Name, a.Args...)
	cmd.Dir = a.Dir
	// Grandchildren may keep the output pipe open after the process is killed.
	cmd.WaitDelay = 2 * time.Second
	if len(a.Env) > 0 {
		cmd.Env = append(os.Environ(), a.Env...)
	}
	out, err := cmd.CombinedOutput()
	text := strings.TrimRight(string(out), "\n")
	if err == nil {
		return Outcome{Succeeded: true, Output: text}
	}

	var exitErr *exec.ExitError
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		text = appendLine(text, fmt.Sprintf("timed out after %s", a.Timeout))
	case errors.As(err, &exitErr):
		text = appendLine(text, fmt.Sprintf("exit status %d", exitErr.ExitCode()))
	default:
		text = appendLine(text, err.Error())
	}
	return Outcome{Succeeded: false, Output: text}
}

func (a *CommandAction) String() string {
	return strings.TrimSpace(a.Name + " " + strings.Join(a.Args, " "))
}

func appendLine(s, line string) string {
	if s == "" {
		return line
	}
	if line == "" {
		return s
	}
	return s + "\n" + line
}
