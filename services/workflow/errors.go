package workflow

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidGraph is returned when a definition fails the load-time structural check.
	ErrInvalidGraph = errors.New("invalid workflow graph")
	// ErrNoStartNode is returned by Start when the graph has no start node.
	ErrNoStartNode = errors.New("workflow has no start node")
	// ErrNodeNotFound is returned for lookups of an unknown node id.
	ErrNodeNotFound = errors.New("node not found")
	// ErrNotRunning is returned for control operations outside a running workflow.
	ErrNotRunning = errors.New("workflow is not running")
	// ErrNodeNotActive is returned when completing or failing a node that is not active.
	ErrNodeNotActive = errors.New("node is not active")
	// ErrTransitionValidationFailed is returned by NavigateToNode when the edge's
	// validation criteria reject the transition. The source node is left in error.
	ErrTransitionValidationFailed = errors.New("transition validation failed")
)

func invalidGraph(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidGraph, fmt.Sprintf(format, args...))
}

func nodeNotFound(id string) error {
	return fmt.Errorf("%w: %q", ErrNodeNotFound, id)
}

// NodeExecutionError records a failure reported against a single node.
type NodeExecutionError struct {
	NodeID string
	Err    error
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node %q: %v", e.NodeID, e.Err)
}

func (e *NodeExecutionError) Unwrap() error { return e.Err }
