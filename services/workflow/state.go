package workflow

import (
	"fmt"
	"time"
)

// RunStatus is the lifecycle state of a workflow instance.
type RunStatus string

const (
	StatusNotStarted RunStatus = "not-started"
	StatusRunning    RunStatus = "running"
	StatusPaused     RunStatus = "paused"
	StatusStopped    RunStatus = "stopped"
	StatusCompleted  RunStatus = "completed"
)

// NodeStatus is the lifecycle state of a single node within a run.
type NodeStatus uint8

const (
	NodePending NodeStatus = iota
	NodeActive
	NodeCompleted
	NodeError
)

var nodeStatusNames = [...]string{"pending", "active", "completed", "error"}

func (s NodeStatus) String() string {
	if int(s) < len(nodeStatusNames) {
		return nodeStatusNames[s]
	}
	return fmt.Sprintf("NodeStatus(%d)", s)
}

func (s NodeStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *NodeStatus) UnmarshalText(b []byte) error {
	for i, name := range nodeStatusNames {
		if name == string(b) {
			*s = NodeStatus(i)
			return nil
		}
	}
	return fmt.Errorf("unknown node status %q", b)
}

// Snapshot is a deep copy of an engine's state. It shares nothing with the engine.
type Snapshot struct {
	WorkflowID     string                `json:"workflowId"`
	Status         RunStatus             `json:"status"`
	Errored        bool                  `json:"errored"`
	CurrentNodeID  string                `json:"currentNodeId,omitempty"`
	ActiveNodes    []string              `json:"activeNodes"`
	CompletedNodes []string              `json:"completedNodes"`
	ErrorNodes     []string              `json:"errorNodes"`
	NodeStatuses   map[string]NodeStatus `json:"nodeStatuses"`
	Progress       float64               `json:"progress"`
	NodeData       map[string]any        `json:"nodeData"`
	NodeErrors     map[string]string     `json:"nodeErrors,omitempty"`
	QualityMetrics QualityMetrics        `json:"qualityMetrics"`
	StartedAt      *time.Time            `json:"startedAt,omitempty"`
	Generation     uint64                `json:"generation"`
}

// cloneValue deep-copies the JSON-like containers used for payloads.
func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}
