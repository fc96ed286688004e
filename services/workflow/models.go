package workflow

import "time"

// NodeKind classifies a node in a workflow graph.
type NodeKind string

const (
	NodeStart    NodeKind = "start"
	NodeProcess  NodeKind = "process"
	NodeDecision NodeKind = "decision"
	NodeData     NodeKind = "data"
	NodeEnd      NodeKind = "end"
)

// EdgeKind classifies a transition between two nodes.
type EdgeKind string

const (
	EdgeDefault     EdgeKind = "default"
	EdgeConditional EdgeKind = "conditional"
	EdgeDataflow    EdgeKind = "dataflow"
	EdgeFeedback    EdgeKind = "feedback"
)

// Priority tags a node's importance. Critical nodes drive the compliance score.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// ComplianceLevel is the regulatory tier a workflow is run under.
type ComplianceLevel string

const (
	ComplianceStandard ComplianceLevel = "standard"
	ComplianceEnhanced ComplianceLevel = "enhanced"
)

// Definition is a workflow graph of nodes and edges. It is never mutated after loading.
type Definition struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Category        string          `json:"category,omitempty"`
	ComplianceLevel ComplianceLevel `json:"complianceLevel"`
	Nodes           []Node          `json:"nodes"`
	Edges           []Edge          `json:"edges"`
	CreatedAt       time.Time       `json:"createdAt,omitempty"`
	UpdatedAt       time.Time       `json:"updatedAt,omitempty"`
}

// Node represents a single step in a workflow graph.
type Node struct {
	ID                       string   `json:"id"`
	Kind                     NodeKind `json:"type"`
	Label                    string   `json:"label"`
	Description              string   `json:"description,omitempty"`
	Category                 string   `json:"category,omitempty"`
	Priority                 Priority `json:"priority,omitempty"`
	EstimatedDurationSeconds int      `json:"estimatedDurationSeconds,omitempty"`
	Position                 Position `json:"position"`
}

// Position holds x/y coordinates for rendering the node on the canvas.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Edge represents a directed connection between two nodes.
type Edge struct {
	ID                 string   `json:"id"`
	Source             string   `json:"source"`
	Target             string   `json:"target"`
	Kind               EdgeKind `json:"type,omitempty"`
	Label              string   `json:"label,omitempty"`
	Condition          string   `json:"condition,omitempty"`
	RequiresValidation bool     `json:"requiresValidation,omitempty"`
	ValidationCriteria []string `json:"validationCriteria,omitempty"`
}

// IsCritical reports whether the node counts towards the compliance score.
func (n Node) IsCritical() bool {
	return n.Priority == PriorityCritical
}
