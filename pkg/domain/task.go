package domain

import (
	"fmt"
	"strings"
)

// TaskState is the persisted progress of an activity for one instance.
// The integer codes are part of the storage format.
type TaskState int

const (
	TaskStateUnknown    TaskState = 0
	TaskStateWaiting    TaskState = 1001
	TaskStateCompleted  TaskState = 1002
	TaskStateTerminated TaskState = 1003
)

func (s TaskState) String() string {
	switch s {
	case TaskStateUnknown:
		return "UNKNOWN"
	case TaskStateWaiting:
		return "WAITING"
	case TaskStateCompleted:
		return "COMPLETED"
	case TaskStateTerminated:
		return "TERMINATED"
	default:
		return fmt.Sprintf("TaskState(%d)", int(s))
	}
}

// TaskStateOf maps a stored code back to a state. Unknown codes map to
// TaskStateUnknown.
func TaskStateOf(code int) TaskState {
	switch s := TaskState(code); s {
	case TaskStateWaiting, TaskStateCompleted, TaskStateTerminated:
		return s
	default:
		return TaskStateUnknown
	}
}

func (s TaskState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *TaskState) UnmarshalText(text []byte) error {
	switch strings.ToUpper(string(text)) {
	case "UNKNOWN", "":
		*s = TaskStateUnknown
	case "WAITING":
		*s = TaskStateWaiting
	case "COMPLETED":
		*s = TaskStateCompleted
	case "TERMINATED":
		*s = TaskStateTerminated
	default:
		return fmt.Errorf("unknown task state %q", text)
	}
	return nil
}

// TaskAction is an operation an actor submits against a node.
type TaskAction int

const (
	TaskActionUnknown     TaskAction = 0
	TaskActionBack        TaskAction = 1010
	TaskActionBackJump    TaskAction = 1011
	TaskActionForward     TaskAction = 1020
	TaskActionForwardJump TaskAction = 1021
	TaskActionTerminate   TaskAction = 1030
	TaskActionRestart     TaskAction = 1040
)

var taskActionNames = map[TaskAction]string{
	TaskActionUnknown:     "UNKNOWN",
	TaskActionBack:        "BACK",
	TaskActionBackJump:    "BACK_JUMP",
	TaskActionForward:     "FORWARD",
	TaskActionForwardJump: "FORWARD_JUMP",
	TaskActionTerminate:   "TERMINATE",
	TaskActionRestart:     "RESTART",
}

func (a TaskAction) String() string {
	if name, ok := taskActionNames[a]; ok {
		return name
	}
	return fmt.Sprintf("TaskAction(%d)", int(a))
}

// TargetState returns the resting state an action leads to.
func (a TaskAction) TargetState() TaskState {
	switch a {
	case TaskActionBack, TaskActionBackJump:
		return TaskStateWaiting
	case TaskActionForward, TaskActionForwardJump:
		return TaskStateCompleted
	case TaskActionTerminate:
		return TaskStateTerminated
	default:
		return TaskStateUnknown
	}
}

// ParseTaskAction resolves an action from its name (case-insensitive,
// "-" accepted for "_").
func ParseTaskAction(s string) (TaskAction, error) {
	name := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_"))
	for a, n := range taskActionNames {
		if n == name && a != TaskActionUnknown {
			return a, nil
		}
	}
	return TaskActionUnknown, fmt.Errorf("%w: %q", ErrInvalidAction, s)
}

func (a TaskAction) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *TaskAction) UnmarshalText(text []byte) error {
	parsed, err := ParseTaskAction(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Task is a point-in-time view of a node and its state for one instance.
// It is advisory: the state may change as soon as it is returned.
type Task struct {
	Node  *Node     `json:"-"`
	State TaskState `json:"state"`
}

// NodeID returns the id of the task node, or "" for a nil task.
func (t *Task) NodeID() string {
	if t == nil || t.Node == nil {
		return ""
	}
	return t.Node.ID
}

func (t *Task) String() string {
	if t == nil {
		return "Task(nil)"
	}
	return fmt.Sprintf("Task{node=%s, state=%s}", t.NodeID(), t.State)
}
