package workflow

import (
	"time"

	"github.com/google/uuid"
)

// auditLog is an append-only, ordered record of events for one run.
// It is guarded by the owning engine's state lock.
type auditLog struct {
	events []Event
}

// append stamps the event with an ID and the next sequence number and records it.
func (l *auditLog) append(ev Event) Event {
	ev.ID = uuid.New().String()
	ev.Sequence = int64(len(l.events)) + 1
	l.events = append(l.events, ev)
	return ev
}

func (l *auditLog) snapshot() []Event {
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// ComplianceStatus summarises completion of critical-priority nodes.
type ComplianceStatus struct {
	Level                  ComplianceLevel `json:"level"`
	CriticalStepsCompleted int             `json:"criticalStepsCompleted"`
	TotalCriticalSteps     int             `json:"totalCriticalSteps"`
	ComplianceScore        float64         `json:"complianceScore"`
	AuditTrailEnabled      bool            `json:"auditTrailEnabled"`
	LastValidated          *time.Time      `json:"lastValidated,omitempty"`
}

// AuditReport is a point-in-time export of a run.
type AuditReport struct {
	WorkflowID          string            `json:"workflowId"`
	WorkflowName        string            `json:"workflowName"`
	ExecutionTimeMillis int64             `json:"executionTimeMillis"`
	Events              []Event           `json:"events"`
	State               Snapshot          `json:"state"`
	Compliance          *ComplianceStatus `json:"compliance"`
	GeneratedAt         time.Time         `json:"generatedAt"`
}

// complianceScore returns completed/total as a percentage; with no critical nodes
// the requirement is vacuously met.
func complianceScore(completed, total int) float64 {
	if total == 0 {
		return 100
	}
	score := float64(completed) / float64(total) * 100
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	}
	return score
}
