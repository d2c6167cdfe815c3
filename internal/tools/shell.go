package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	shellTimeout   = 60 * time.Second
	shellOutputCap = 1 << 20
)

// Shell runs commands with sh -c inside a set of allowed directories.
type Shell struct {
	workspace string
	allowed   []string
	timeout   time.Duration
}

// NewShell allows workspace plus every entry of allowed.
func NewShell(workspace string, allowed []string) *Shell {
	s := &Shell{workspace: workspace, timeout: shellTimeout}
	for _, p := range append([]string{workspace}, allowed...) {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			s.allowed = append(s.allowed, abs)
		}
	}
	return s
}

func (s *Shell) isAllowed(dir string) bool {
	for _, root := range s.allowed {
		rel, err := filepath.Rel(root, dir)
		if err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// Run executes command in cwd (workspace when empty).
func (s *Shell) Run(ctx context.Context, command, cwd string) (string, error) {
	if strings.TrimSpace(command) == "" {
		return "", errors.New("command is empty")
	}
	dir := s.workspace
	if strings.TrimSpace(cwd) != "" {
		dir = resolveIn(s.workspace, cwd)
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	if !s.isAllowed(dir) {
		return "", fmt.Errorf("working directory %s is not allowed; allowed: %s", dir, strings.Join(s.allowed, ", "))
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	cmd.WaitDelay = time.Second
	var out cappedBuffer
	out.limit = shellOutputCap
	cmd.Stdout = &out
	cmd.Stderr = &out

	runErr := cmd.Run()
	text := strings.TrimSpace(out.String())
	if out.truncated {
		text += "\n[output truncated]"
	}
	if runErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			runErr = fmt.Errorf("timed out after %s", s.timeout)
		}
		if text != "" {
			return fmt.Sprintf("command failed: %v\n%s", runErr, text), nil
		}
		return fmt.Sprintf("command failed: %v", runErr), nil
	}
	if text == "" {
		return "(command finished with no output)", nil
	}
	return text, nil
}

// cappedBuffer keeps at most limit bytes and silently discards the rest.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	room := c.limit - c.buf.Len()
	if room <= 0 {
		c.truncated = true
		return len(p), nil
	}
	if len(p) > room {
		c.buf.Write(p[:room])
		c.truncated = true
		return len(p), nil
	}
	return c.buf.Write(p)
}

func (c *cappedBuffer) String() string { return c.buf.String() }

func shellTools(s *Shell) []Tool {
	return []Tool{{
		Name:        "shell_exec",
		Description: "Run a shell command in a controlled environment. Only directories on the allow list may be used as the working directory.",
		Params: []Param{
			{Name: "command", Type: String, Description: "Command to run, e.g. ls -la", Required: true},
			{Name: "cwd", Type: String, Description: "Working directory (must be allowed); defaults to the workspace"},
		},
		Handler: func(ctx context.Context, _ Caller, args Args) (string, error) {
			return s.Run(ctx, args.String("command"), args.String("cwd"))
		},
	}}
}
