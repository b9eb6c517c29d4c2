// Package process runs allow-listed local commands as task handlers.
//
// Context variables reach the command as ESPALIER_VAR_<NAME> environment
// variables, never as arguments. A JSON object printed on stdout is merged
// into the context; any other output is stored under the variable named by
// the node's "output" meta key, when present.
package process

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strings"

	"github.com/aretw0/espalier/internal/logging"
	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/flow"
	"github.com/aretw0/espalier/pkg/registry"
)

// OutputKey is the node meta key naming the variable that receives plain
// (non-JSON) output.
const OutputKey = "output"

// Runner executes registered commands.
type Runner struct {
	commands map[string]Command
	baseDir  string
	logger   *slog.Logger
}

// Option configures the runner.
type Option func(*Runner)

// WithCommands populates the allow-list from a loaded commands file.
func WithCommands(commands map[string]Command) Option {
	return func(r *Runner) {
		for name, c := range commands {
			c.Name = name
			r.commands[name] = c
		}
	}
}

// WithBaseDir sets the working directory for executed processes.
func WithBaseDir(dir string) Option {
	return func(r *Runner) {
		r.baseDir = dir
	}
}

// WithLogger sets the runner logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a Runner.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		commands: make(map[string]Command),
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a trusted command to the allow-list.
func (r *Runner) Register(name, command string, args ...string) {
	r.commands[name] = Command{Name: name, Command: command, Args: args}
}

// Names lists the registered commands, sorted.
func (r *Runner) Names() []string {
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Handler returns the task handler running the named command.
func (r *Runner) Handler(name string) registry.Handler {
	return func(ctx context.Context, fc *flow.Context, node *domain.Node) error {
		return r.Run(ctx, name, fc, node)
	}
}

// RegisterAll binds every command to reg under its own name.
func (r *Runner) RegisterAll(reg *registry.Registry) {
	for _, name := range r.Names() {
		reg.Register(name, r.Handler(name))
	}
}

// Run executes the named command for node and stores its output in fc.
func (r *Runner) Run(ctx context.Context, name string, fc *flow.Context, node *domain.Node) error {
	c, ok := r.commands[name]
	if !ok {
		return fmt.Errorf("command not registered: %s", name)
	}

	cmd := exec.CommandContext(ctx, c.Command, c.Args...)
	cmd.Dir = r.baseDir
	cmd.Env = append(cmd.Environ(), environment(c, fc, node)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	r.logger.Debug("Running command", "command", name, "instance_id", fc.InstanceID(), "node_id", node.ID)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("command %s failed: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}

	output := strings.TrimSpace(stdout.String())
	if strings.HasPrefix(output, "{") && strings.HasSuffix(output, "}") {
		var vars map[string]any
		if err := json.Unmarshal([]byte(output), &vars); err == nil {
			fc.PutAll(vars)
			return nil
		}
	}

	if key, ok := node.Meta[OutputKey].(string); ok && key != "" {
		fc.Put(key, output)
	}
	return nil
}

func environment(c Command, fc *flow.Context, node *domain.Node) []string {
	env := []string{
		"ESPALIER_INSTANCE_ID=" + fc.InstanceID(),
		"ESPALIER_GRAPH_ID=" + node.GraphID(),
		"ESPALIER_NODE_ID=" + node.ID,
	}
	for k, v := range c.Environment {
		env = append(env, k+"="+v)
	}

	for k, v := range fc.Vars() {
		var val string
		switch v.(type) {
		case string, int, int64, float64, bool:
			val = fmt.Sprintf("%v", v)
		case nil:
		default:
			if data, err := json.Marshal(v); err == nil {
				val = string(data)
			} else {
				val = fmt.Sprintf("%v", v)
			}
		}
		env = append(env, "ESPALIER_VAR_"+strings.ToUpper(k)+"="+val)
	}
	return env
}
