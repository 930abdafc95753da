package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"github.com/banshee-data/ilut/internal/lut"
)

// CommandRunner runs an external program with stdin and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error)
}

// ExecRunner implements CommandRunner with os/exec. The process is killed
// when ctx is done.
type ExecRunner struct{}

// Run executes name with args. On failure the error includes stderr.
func (ExecRunner) Run(ctx context.Context, name string, args []string, stdin []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = bytes.NewReader(stdin)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("%s: %w: %s", name, err, msg)
		}
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return stdout.Bytes(), nil
}

// Command evaluates each request by running an external program, for
// example a wrapper around a 6S executable. The request is written to the
// program's stdin as JSON and a JSON object with edir, edif, tau2 and lp
// (or error) is read from its stdout.
type Command struct {
	Name   string
	Args   []string
	Runner CommandRunner
}

// NewCommand returns a Command oracle that runs name with args.
func NewCommand(name string, args ...string) *Command {
	return &Command{Name: name, Args: args, Runner: ExecRunner{}}
}

// Evaluate runs the program once for req.
func (c *Command) Evaluate(ctx context.Context, req Request) (lut.Outputs, error) {
	in, err := json.Marshal(req)
	if err != nil {
		return lut.Outputs{}, fmt.Errorf("encode oracle request: %w", err)
	}
	runner := c.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	out, err := runner.Run(ctx, c.Name, c.Args, in)
	if err != nil {
		return lut.Outputs{}, err
	}
	var resp response
	if err := json.Unmarshal(bytes.TrimSpace(out), &resp); err != nil {
		return lut.Outputs{}, fmt.Errorf("decode oracle output %q: %w", truncate(out, 120), err)
	}
	return resp.result()
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
