package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultAutoExecuteDelay is how long an unattended process node stays active
// before it completes on its own.
const DefaultAutoExecuteDelay = 2 * time.Second

// Options configures an Engine. The zero value is usable.
type Options struct {
	// AutoExecute schedules completion of process nodes after AutoExecuteDelay.
	AutoExecute      bool
	AutoExecuteDelay time.Duration
	// PauseBlocksManual rejects NavigateToNode, CompleteNode and SetNodeError while
	// paused. By default pause only holds back auto-execute.
	PauseBlocksManual bool
	// DisableAuditTrail stops events from being recorded; they are still dispatched.
	DisableAuditTrail bool

	Clock      Clock
	Logger     *slog.Logger
	Validator  *Validator
	Dispatcher *Dispatcher
}

// Engine executes one workflow instance over a shared Graph.
//
// Control operations are serialized; the state lock is only held while a
// transition is applied, so readers never observe a half-applied transition and
// are not blocked by slow criterion checks. Events are delivered after the state
// lock is released; handlers may read from the engine but must not call control
// operations synchronously.
type Engine struct {
	graph      *Graph
	validator  *Validator
	dispatcher *Dispatcher
	clock      Clock
	logger     *slog.Logger
	opts       Options

	op sync.Mutex   // serializes control operations and timer firings
	mu sync.RWMutex // guards the fields below

	status         RunStatus
	statuses       []NodeStatus
	current        int
	completedCount int
	nodeData       map[string]any
	nodeErrors     map[string]string
	quality        QualityMetrics
	startedAt      time.Time
	finishedAt     time.Time
	lastValidated  *time.Time
	generation     uint64
	log            auditLog
	timer          *autoTimer
}

// autoTimer is a scheduled completion of node, valid only while the engine is
// still at generation.
type autoTimer struct {
	node       int
	generation uint64
	timer      Timer
}

// NewEngine creates an engine in the NotStarted state.
func NewEngine(graph *Graph, opts Options) *Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock
	}
	if opts.AutoExecuteDelay <= 0 {
		opts.AutoExecuteDelay = DefaultAutoExecuteDelay
	}
	if opts.Validator == nil {
		opts.Validator = NewValidator(NewRegistry(nil), opts.Logger)
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = NewDispatcher(opts.Logger)
	}

	e := &Engine{
		graph:      graph,
		validator:  opts.Validator,
		dispatcher: opts.Dispatcher,
		clock:      opts.Clock,
		logger:     opts.Logger.With("workflow", graph.Definition().ID),
		opts:       opts,
	}
	e.resetLocked()
	return e
}

// Graph returns the graph the engine executes.
func (e *Engine) Graph() *Graph { return e.graph }

// Dispatcher returns the dispatcher events are delivered through.
func (e *Engine) Dispatcher() *Dispatcher { return e.dispatcher }

// On registers a handler for an event kind.
func (e *Engine) On(kind EventKind, fn Handler) Subscription {
	return e.dispatcher.On(kind, fn)
}

// Start begins a fresh run: state and audit log are discarded, the workflow is
// Running and the start node is entered.
func (e *Engine) Start(ctx context.Context) error {
	e.op.Lock()
	defer e.op.Unlock()

	start, ok := e.graph.Start()
	if !ok {
		return ErrNoStartNode
	}

	e.mu.Lock()
	e.resetLocked()
	e.status = StatusRunning
	e.startedAt = e.clock.Now()
	e.mu.Unlock()

	e.logger.Info("Workflow started", "start", start.ID)
	return e.navigate(ctx, start.ID)
}

// NavigateToNode makes targetID the active node. When an edge leads from the
// current node to the target, its validation criteria must pass first; if they do
// not, the current node is put in error, the target is not entered, and
// ErrTransitionValidationFailed is returned. If ctx ends before validation
// finishes, ctx.Err() is returned and nothing changes.
func (e *Engine) NavigateToNode(ctx context.Context, targetID string) error {
	e.op.Lock()
	defer e.op.Unlock()
	return e.navigate(ctx, targetID)
}

func (e *Engine) navigate(ctx context.Context, targetID string) error {
	target, ok := e.graph.indexOf(targetID)
	if !ok {
		return nodeNotFound(targetID)
	}

	e.mu.RLock()
	if err := e.checkControlLocked(); err != nil {
		e.mu.RUnlock()
		return err
	}
	source := e.current
	var (
		edge    Edge
		hasEdge bool
	)
	if source >= 0 {
		edge, hasEdge = e.graph.EdgeBetween(e.graph.node(source).ID, targetID)
	}
	data := cloneMap(e.nodeData)
	e.mu.RUnlock()

	// Nothing else can mutate state while e.op is held, so the view taken above
	// is still current once validation returns.
	var failed []string
	if hasEdge {
		failed = e.validator.Check(ctx, edge, data)
		// An abandoned call is not a verdict; leave state and log untouched.
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("navigate to %q: %w", targetID, err)
		}
	}

	e.mu.Lock()
	var events []Event
	if len(failed) > 0 {
		src := e.graph.node(source)
		if e.statuses[source] == NodeActive {
			events = append(events, e.recordLocked(Event{NodeID: src.ID, Payload: NodeExitPayload{Reason: ExitError}}))
		}
		msg := fmt.Sprintf("transition to %q rejected by criteria %v", targetID, failed)
		e.setStatusLocked(source, NodeError)
		e.nodeErrors[src.ID] = msg
		events = append(events, e.recordLocked(Event{
			NodeID: src.ID,
			EdgeID: edge.ID,
			Payload: ErrorPayload{
				Message:        msg,
				Cause:          CauseValidation,
				Target:         targetID,
				FailedCriteria: failed,
			},
		}))
		e.bumpLocked()
		e.mu.Unlock()

		e.dispatcher.Emit(events...)
		e.logger.Warn("Transition rejected", "edge", edge.ID, "source", src.ID, "target", targetID, "failed", failed)
		return fmt.Errorf("%w: edge %q from %q to %q", ErrTransitionValidationFailed, edge.ID, src.ID, targetID)
	}

	from := ""
	if source >= 0 {
		from = e.graph.node(source).ID
		if e.statuses[source] == NodeActive {
			events = append(events, e.recordLocked(Event{NodeID: from, Payload: NodeExitPayload{Reason: ExitNavigated}}))
			e.setStatusLocked(source, NodePending)
		}
	}
	if hasEdge {
		events = append(events, e.recordLocked(Event{
			NodeID:  targetID,
			EdgeID:  edge.ID,
			Payload: EdgeTraversePayload{Source: edge.Source, Target: edge.Target, EdgeKind: edge.Kind},
		}))
	}
	node := e.graph.node(target)
	events = append(events, e.recordLocked(Event{NodeID: targetID, Payload: NodeEnterPayload{NodeKind: node.Kind, From: from}}))
	e.setStatusLocked(target, NodeActive)
	delete(e.nodeErrors, targetID)
	e.current = target
	e.bumpLocked()
	if e.opts.AutoExecute && e.status == StatusRunning && node.Kind == NodeProcess {
		e.scheduleLocked(target)
	}
	e.mu.Unlock()

	e.dispatcher.Emit(events...)
	e.logger.Debug("Node entered", "node", targetID, "from", from)
	return nil
}

// CompleteNode records data for the active node and marks it completed. The
// workflow completes once every end node has completed.
func (e *Engine) CompleteNode(nodeID string, data map[string]any) error {
	e.op.Lock()
	defer e.op.Unlock()

	i, ok := e.graph.indexOf(nodeID)
	if !ok {
		return nodeNotFound(nodeID)
	}

	e.mu.Lock()
	if err := e.checkControlLocked(); err != nil {
		e.mu.Unlock()
		return err
	}
	if e.statuses[i] != NodeActive {
		e.mu.Unlock()
		return fmt.Errorf("%w: %q is %s", ErrNodeNotActive, nodeID, e.statuses[i])
	}
	events := e.completeLocked(i, data)
	e.mu.Unlock()

	e.dispatcher.Emit(events...)
	return nil
}

func (e *Engine) completeLocked(i int, data map[string]any) []Event {
	node := e.graph.node(i)
	e.setStatusLocked(i, NodeCompleted)
	if data != nil {
		e.nodeData[node.ID] = cloneMap(data)
	}
	e.quality.fold(data)

	events := []Event{e.recordLocked(Event{NodeID: node.ID, Payload: NodeExitPayload{Reason: ExitCompleted, Data: cloneMap(data)}})}
	e.logger.Debug("Node completed", "node", node.ID, "progress", e.progressLocked())

	if e.allEndsCompletedLocked() {
		e.status = StatusCompleted
		e.finishedAt = e.clock.Now()
		events = append(events, e.recordLocked(Event{
			NodeID: node.ID,
			Payload: CompletionPayload{
				Progress:            e.progressLocked(),
				ExecutionTimeMillis: e.finishedAt.Sub(e.startedAt).Milliseconds(),
			},
		}))
		e.logger.Info("Workflow completed", "progress", e.progressLocked())
	}
	e.bumpLocked()
	return events
}

// SetNodeError puts the active node in error. The workflow keeps its state; the
// node can be re-entered with NavigateToNode.
func (e *Engine) SetNodeError(nodeID string, cause error) (*NodeExecutionError, error) {
	e.op.Lock()
	defer e.op.Unlock()

	i, ok := e.graph.indexOf(nodeID)
	if !ok {
		return nil, nodeNotFound(nodeID)
	}
	if cause == nil {
		cause = errors.New("unspecified error")
	}

	e.mu.Lock()
	if err := e.checkControlLocked(); err != nil {
		e.mu.Unlock()
		return nil, err
	}
	if e.statuses[i] != NodeActive {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: %q is %s", ErrNodeNotActive, nodeID, e.statuses[i])
	}
	execErr := &NodeExecutionError{NodeID: nodeID, Err: cause}
	events := []Event{e.recordLocked(Event{NodeID: nodeID, Payload: NodeExitPayload{Reason: ExitError}})}
	e.setStatusLocked(i, NodeError)
	e.nodeErrors[nodeID] = cause.Error()
	events = append(events, e.recordLocked(Event{
		NodeID:  nodeID,
		Payload: ErrorPayload{Message: cause.Error(), Cause: CauseExecution},
	}))
	e.bumpLocked()
	e.mu.Unlock()

	e.dispatcher.Emit(events...)
	e.logger.Warn("Node failed", "node", nodeID, "error", cause)
	return execErr, nil
}

// Pause holds back auto-execute. It only applies to a running workflow.
func (e *Engine) Pause() {
	e.op.Lock()
	defer e.op.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != StatusRunning {
		return
	}
	e.status = StatusPaused
	e.bumpLocked()
	e.logger.Info("Workflow paused")
}

// Resume returns a paused workflow to Running and re-arms auto-execute for an
// active process node.
func (e *Engine) Resume() {
	e.op.Lock()
	defer e.op.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status != StatusPaused {
		return
	}
	e.status = StatusRunning
	e.bumpLocked()
	if e.opts.AutoExecute && e.current >= 0 && e.statuses[e.current] == NodeActive &&
		e.graph.node(e.current).Kind == NodeProcess {
		e.scheduleLocked(e.current)
	}
	e.logger.Info("Workflow resumed")
}

// Stop halts the run. Recorded state stays inspectable; control operations are
// rejected until Start or Reset.
func (e *Engine) Stop() {
	e.op.Lock()
	defer e.op.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status == StatusRunning || e.status == StatusPaused {
		e.status = StatusStopped
		e.logger.Info("Workflow stopped")
	}
	e.bumpLocked()
}

// Reset discards state and audit log and returns to NotStarted.
func (e *Engine) Reset() {
	e.op.Lock()
	defer e.op.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()

	e.resetLocked()
	e.logger.Debug("Workflow reset")
}

// ValidateCurrentStep reports whether the workflow can advance from the current
// node: true when it has no outgoing edges or at least one of them validates.
func (e *Engine) ValidateCurrentStep(ctx context.Context) bool {
	e.mu.RLock()
	current := e.current
	data := cloneMap(e.nodeData)
	e.mu.RUnlock()

	if current < 0 {
		return false
	}
	edges := e.graph.EdgesFrom(e.graph.node(current).ID)
	ok := len(edges) == 0
	for _, edge := range edges {
		if e.validator.Validate(ctx, edge, data) {
			ok = true
			break
		}
	}

	now := e.clock.Now()
	e.mu.Lock()
	e.lastValidated = &now
	e.mu.Unlock()
	return ok
}

// Status returns the workflow lifecycle state.
func (e *Engine) Status() RunStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// NodeStatus returns the status of a single node.
func (e *Engine) NodeStatus(nodeID string) (NodeStatus, error) {
	i, ok := e.graph.indexOf(nodeID)
	if !ok {
		return NodePending, nodeNotFound(nodeID)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.statuses[i], nil
}

// Snapshot returns a deep copy of the current state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshotLocked()
}

// ComplianceStatus reports completion of critical nodes, or nil before Start.
func (e *Engine) ComplianceStatus() *ComplianceStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.complianceLocked()
}

// AuditReport exports the event log together with a consistent state snapshot.
func (e *Engine) AuditReport() AuditReport {
	e.mu.RLock()
	defer e.mu.RUnlock()

	now := e.clock.Now()
	var elapsed time.Duration
	if !e.startedAt.IsZero() {
		end := now
		if e.status == StatusCompleted {
			end = e.finishedAt
		}
		elapsed = end.Sub(e.startedAt)
	}
	def := e.graph.Definition()
	return AuditReport{
		WorkflowID:          def.ID,
		WorkflowName:        def.Name,
		ExecutionTimeMillis: elapsed.Milliseconds(),
		Events:              e.log.snapshot(),
		State:               e.snapshotLocked(),
		Compliance:          e.complianceLocked(),
		GeneratedAt:         now,
	}
}

// Events returns a copy of the audit log.
func (e *Engine) Events() []Event {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.log.snapshot()
}

func (e *Engine) checkControlLocked() error {
	switch e.status {
	case StatusRunning:
		return nil
	case StatusPaused:
		if e.opts.PauseBlocksManual {
			return fmt.Errorf("%w: paused", ErrNotRunning)
		}
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrNotRunning, e.status)
	}
}

func (e *Engine) setStatusLocked(i int, s NodeStatus) {
	if e.statuses[i] == NodeCompleted {
		e.completedCount--
	}
	if s == NodeCompleted {
		e.completedCount++
	}
	e.statuses[i] = s
}

func (e *Engine) allEndsCompletedLocked() bool {
	for i := range e.statuses {
		if e.graph.node(i).Kind == NodeEnd && e.statuses[i] != NodeCompleted {
			return false
		}
	}
	return true
}

func (e *Engine) progressLocked() float64 {
	return float64(e.completedCount) / float64(e.graph.Len()) * 100
}

// bumpLocked invalidates any pending auto-execute timer.
func (e *Engine) bumpLocked() {
	if e.timer != nil {
		e.timer.timer.Stop()
		e.timer = nil
	}
	e.generation++
}

func (e *Engine) resetLocked() {
	e.bumpLocked()
	e.status = StatusNotStarted
	e.statuses = make([]NodeStatus, e.graph.Len())
	e.current = -1
	e.completedCount = 0
	e.nodeData = make(map[string]any)
	e.nodeErrors = make(map[string]string)
	e.quality = QualityMetrics{}
	e.startedAt = time.Time{}
	e.finishedAt = time.Time{}
	e.lastValidated = nil
	e.log = auditLog{}
}

func (e *Engine) scheduleLocked(node int) {
	gen := e.generation
	t := e.clock.AfterFunc(e.opts.AutoExecuteDelay, func() { e.autoComplete(node, gen) })
	e.timer = &autoTimer{node: node, generation: gen, timer: t}
}

// autoComplete is the auto-execute timer callback. It does nothing if anything
// has changed since it was scheduled.
func (e *Engine) autoComplete(node int, gen uint64) {
	e.op.Lock()
	defer e.op.Unlock()

	e.mu.Lock()
	if gen != e.generation || e.status != StatusRunning || e.statuses[node] != NodeActive {
		e.mu.Unlock()
		e.logger.Debug("Discarding stale auto-execute", "node", e.graph.node(node).ID)
		return
	}
	e.timer = nil
	events := e.completeLocked(node, map[string]any{"autoExecuted": true})
	e.mu.Unlock()

	e.dispatcher.Emit(events...)
}

func (e *Engine) recordLocked(ev Event) Event {
	now := e.clock.Now()
	ev.Kind = ev.Payload.Kind()
	ev.Timestamp = now
	ev.TimestampMillis = now.UnixMilli()
	if e.opts.DisableAuditTrail {
		return ev
	}
	return e.log.append(ev)
}

func (e *Engine) snapshotLocked() Snapshot {
	def := e.graph.Definition()
	s := Snapshot{
		WorkflowID:     def.ID,
		Status:         e.status,
		ActiveNodes:    []string{},
		CompletedNodes: []string{},
		ErrorNodes:     []string{},
		NodeStatuses:   make(map[string]NodeStatus, len(e.statuses)),
		Progress:       e.progressLocked(),
		NodeData:       cloneMap(e.nodeData),
		QualityMetrics: e.quality,
		Generation:     e.generation,
	}
	if e.current >= 0 {
		s.CurrentNodeID = e.graph.node(e.current).ID
	}
	for i, st := range e.statuses {
		id := def.Nodes[i].ID
		s.NodeStatuses[id] = st
		switch st {
		case NodeActive:
			s.ActiveNodes = append(s.ActiveNodes, id)
		case NodeCompleted:
			s.CompletedNodes = append(s.CompletedNodes, id)
		case NodeError:
			s.ErrorNodes = append(s.ErrorNodes, id)
		}
	}
	s.Errored = len(s.ErrorNodes) > 0
	if len(e.nodeErrors) > 0 {
		s.NodeErrors = make(map[string]string, len(e.nodeErrors))
		for k, v := range e.nodeErrors {
			s.NodeErrors[k] = v
		}
	}
	if !e.startedAt.IsZero() {
		t := e.startedAt
		s.StartedAt = &t
	}
	return s
}

func (e *Engine) complianceLocked() *ComplianceStatus {
	if e.status == StatusNotStarted {
		return nil
	}
	total, done := 0, 0
	for i, st := range e.statuses {
		if !e.graph.node(i).IsCritical() {
			continue
		}
		total++
		if st == NodeCompleted {
			done++
		}
	}
	level := e.graph.Definition().ComplianceLevel
	if level == "" {
		level = ComplianceStandard
	}
	cs := &ComplianceStatus{
		Level:                  level,
		CriticalStepsCompleted: done,
		TotalCriticalSteps:     total,
		ComplianceScore:        complianceScore(done, total),
		AuditTrailEnabled:      !e.opts.DisableAuditTrail,
	}
	if e.lastValidated != nil {
		t := *e.lastValidated
		cs.LastValidated = &t
	}
	return cs
}
