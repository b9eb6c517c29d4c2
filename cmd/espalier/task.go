package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/aretw0/espalier/pkg/domain"
	"github.com/aretw0/espalier/pkg/flow"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Query and submit tasks against the configured state store",
	Long: `Runs one workflow operation and prints the result as JSON. With the memory
store the state lives only for the duration of the command; configure redis,
sqlite or postgres to drive an instance across invocations.`,
}

type taskOutput struct {
	InstanceID string     `json:"instance_id"`
	Tasks      []taskView `json:"tasks"`
	Ended      bool       `json:"ended,omitempty"`
}

type taskView struct {
	GraphID string           `json:"graph_id"`
	NodeID  string           `json:"node_id"`
	Title   string           `json:"title,omitempty"`
	State   domain.TaskState `json:"state"`
}

func newTaskView(t *domain.Task) taskView {
	return taskView{GraphID: t.Node.GraphID(), NodeID: t.Node.ID, Title: t.Node.Title, State: t.State}
}

var findCmd = &cobra.Command{
	Use:   "find <graph> [instance]",
	Short: "Claim the first task of the actor",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, args, "find")
	},
}

var nextCmd = &cobra.Command{
	Use:   "next <graph> <instance>",
	Short: "List every task reachable now",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, args, "next")
	},
}

var locateCmd = &cobra.Command{
	Use:   "locate <graph> <instance>",
	Short: "Report where the instance stands",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(cmd, args, "locate")
	},
}

var submitCmd = &cobra.Command{
	Use:   "submit <graph> <instance> <node> <action>",
	Short: "Submit FORWARD, BACK, FORWARD_JUMP, BACK_JUMP, TERMINATE or RESTART",
	Args:  cobra.ExactArgs(4),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		action, err := domain.ParseTaskAction(args[3])
		if err != nil {
			return err
		}
		fc, err := contextFromFlags(cmd, args[1])
		if err != nil {
			return err
		}

		eng, err := newEngine(ctx)
		if err != nil {
			return err
		}
		defer eng.Close()

		node, err := eng.Node(args[0], args[2])
		if err != nil {
			return err
		}

		applied := true
		exec := eng.Executor()
		if ifWaiting, _ := cmd.Flags().GetBool("if-waiting"); ifWaiting {
			state, err := exec.GetState(ctx, node, fc)
			if err != nil {
				return err
			}
			applied, err = exec.SubmitIfWaiting(ctx, &domain.Task{Node: node, State: state}, action, fc)
			if err != nil {
				return err
			}
		} else if err := exec.Submit(ctx, node, action, fc); err != nil {
			return err
		}

		state, err := exec.GetState(ctx, node, fc)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"applied": applied,
			"node_id": node.ID,
			"state":   state,
		})
	},
}

var stateCmd = &cobra.Command{
	Use:   "state <instance>",
	Short: "Print the persisted task states of an instance",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, err := newEngine(cmd.Context())
		if err != nil {
			return err
		}
		defer eng.Close()

		snap, err := eng.Executor().Snapshot(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), snap)
	},
}

func init() {
	for _, c := range []*cobra.Command{findCmd, nextCmd, locateCmd, submitCmd} {
		c.Flags().StringArray("var", nil, "Actor variable key=value (repeatable)")
		taskCmd.AddCommand(c)
	}
	submitCmd.Flags().Bool("if-waiting", false, "Only apply when the task is WAITING and owned by the actor")
	taskCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(taskCmd)
}

func runQuery(cmd *cobra.Command, args []string, mode string) error {
	ctx := cmd.Context()
	instanceID := uuid.NewString()
	if len(args) > 1 {
		instanceID = args[1]
	}
	fc, err := contextFromFlags(cmd, instanceID)
	if err != nil {
		return err
	}

	eng, err := newEngine(ctx)
	if err != nil {
		return err
	}
	defer eng.Close()

	g, err := eng.Graph(args[0])
	if err != nil {
		return err
	}

	out := taskOutput{InstanceID: instanceID, Tasks: []taskView{}}
	exec := eng.Executor()
	switch mode {
	case "next":
		tasks, err := exec.FindNextTasks(ctx, g, fc)
		if err != nil {
			return err
		}
		for i := range tasks {
			out.Tasks = append(out.Tasks, newTaskView(&tasks[i]))
		}
	default:
		var task *domain.Task
		if mode == "locate" {
			task, err = exec.LocateTask(ctx, g, fc)
		} else {
			task, err = exec.FindTask(ctx, g, fc)
		}
		if err != nil {
			return err
		}
		if task != nil {
			out.Tasks = append(out.Tasks, newTaskView(task))
		}
	}
	out.Ended = len(out.Tasks) == 0 && fc.Trace().Ended(g.ID)
	return printJSON(cmd.OutOrStdout(), out)
}

// contextFromFlags builds the flow context from the repeated --var flags.
// Values that parse as numbers or booleans keep that type.
func contextFromFlags(cmd *cobra.Command, instanceID string) (*flow.Context, error) {
	pairs, _ := cmd.Flags().GetStringArray("var")
	fc := flow.NewContext(instanceID)
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --var %q, want key=value", p)
		}
		fc.Put(k, parseScalar(v))
	}
	return fc, nil
}

func parseScalar(s string) any {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	if s == "true" || s == "false" {
		return s == "true"
	}
	return s
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
