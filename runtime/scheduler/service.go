// Package scheduler implements the controller: a single serialized event
// loop owning the dependency graph, the ready queue, the worker table and
// (through the data manager) the chunk location table. Serializing every
// graph mutation in one loop is what rules out races on graph structure
// without fine-grained locking; workers interact with the loop only through
// asynchronous report and heartbeat events.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/chunkgrid/chunkgrid/fault"
	"github.com/chunkgrid/chunkgrid/internal/clock"
	"github.com/chunkgrid/chunkgrid/model/chunk"
	"github.com/chunkgrid/chunkgrid/model/task"
	"github.com/chunkgrid/chunkgrid/policy"
	"github.com/chunkgrid/chunkgrid/progress"
	"github.com/chunkgrid/chunkgrid/scope"
	"github.com/chunkgrid/chunkgrid/service/checkpoint"
	"github.com/chunkgrid/chunkgrid/service/dao"
	"github.com/chunkgrid/chunkgrid/service/data"
	"github.com/chunkgrid/chunkgrid/service/worker"
	"github.com/chunkgrid/chunkgrid/tracing"
)

// Config represents controller configuration.
type Config struct {
	// EventBuffer sizes the controller's inbound event channel.
	EventBuffer int `json:"eventBuffer" yaml:"eventBuffer"`

	// HeartbeatTimeout is the silence after which a worker is declared
	// unreachable.
	HeartbeatTimeout time.Duration `json:"heartbeatTimeout" yaml:"heartbeatTimeout"`

	// LivenessInterval is how often worker liveness is evaluated.
	LivenessInterval time.Duration `json:"livenessInterval" yaml:"livenessInterval"`
}

// DefaultConfig returns the default controller configuration.
func DefaultConfig() Config {
	return Config{
		EventBuffer:      256,
		HeartbeatTimeout: time.Second,
		LivenessInterval: 200 * time.Millisecond,
	}
}

// Dispatcher sends work to workers. Implemented by the worker pool.
type Dispatcher interface {
	Submit(ctx context.Context, d *worker.Dispatch) error
	Cancel(taskID string)
	Processors() []scope.Processor
}

type workerState struct {
	processor scope.Processor
	inflight  int
	lastSeen  time.Time
	lost      bool
}

// Service is the scheduler controller.
type Service struct {
	config       Config
	data         *data.Manager
	pool         Dispatcher
	checkpointer checkpoint.Service
	notifier     Notifier
	progress     *progress.Progress
	records      dao.Service[string, Record]

	events     chan event
	shutdownCh chan struct{}

	// loop-owned state; touched only by run().
	ctx         context.Context
	nodes       map[string]*node
	ready       *readyQueue
	workers     map[int]*workerState
	spawnSeq    int64
	terminalSeq int
}

// Option customises the controller.
type Option func(*Service)

// WithConfig overrides the controller configuration.
func WithConfig(config Config) Option {
	return func(s *Service) { s.config = config }
}

// WithCheckpointer installs the checkpoint collaborator.
func WithCheckpointer(ck checkpoint.Service) Option {
	return func(s *Service) { s.checkpointer = ck }
}

// WithNotifier installs the lifecycle event sink.
func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// WithRecordStore installs the task record store used for introspection.
func WithRecordStore(records dao.Service[string, Record]) Option {
	return func(s *Service) { s.records = records }
}

// WithProgress installs the progress tracker.
func WithProgress(p *progress.Progress) Option {
	return func(s *Service) { s.progress = p }
}

// WithDataManager overrides the data manager.
func WithDataManager(m *data.Manager) Option {
	return func(s *Service) { s.data = m }
}

// New creates a controller. The dispatcher is attached afterwards via
// SetDispatcher because the worker pool needs the controller as its sink.
func New(options ...Option) *Service {
	s := &Service{
		config:     DefaultConfig(),
		data:       data.New(),
		events:     make(chan event, DefaultConfig().EventBuffer),
		shutdownCh: make(chan struct{}),
		nodes:      make(map[string]*node),
		ready:      newReadyQueue(),
		workers:    make(map[int]*workerState),
	}
	for _, opt := range options {
		opt(s)
	}
	if s.config.EventBuffer > 0 && s.config.EventBuffer != DefaultConfig().EventBuffer {
		s.events = make(chan event, s.config.EventBuffer)
	}
	if s.progress == nil {
		s.progress = progress.New()
	}
	return s
}

// SetDispatcher attaches the worker pool.
func (s *Service) SetDispatcher(pool Dispatcher) { s.pool = pool }

// Data exposes the data manager for composition-time wiring (file store).
func (s *Service) Data() *data.Manager { return s.data }

// Progress exposes the live progress counters.
func (s *Service) Progress() *progress.Progress { return s.progress }

// Start runs the controller loop until the context is cancelled or Shutdown
// is called.
func (s *Service) Start(ctx context.Context) error {
	if s.pool == nil {
		return fmt.Errorf("dispatcher is required")
	}
	s.ctx = ctx
	now := clock.Now()
	for _, p := range s.pool.Processors() {
		s.workers[p.Worker] = &workerState{processor: p, lastSeen: now}
	}

	ticker := time.NewTicker(s.config.LivenessInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.shutdownCh:
			return nil
		case e := <-s.events:
			s.handle(e)
		case <-ticker.C:
			s.checkLiveness(clock.Now())
		}
	}
}

// Shutdown stops the controller loop.
func (s *Service) Shutdown() {
	select {
	case <-s.shutdownCh:
	default:
		close(s.shutdownCh)
	}
}

// post delivers an event unless the controller has shut down.
func (s *Service) post(e event) {
	select {
	case s.events <- e:
	case <-s.shutdownCh:
	}
}

// Report implements worker.Sink.
func (s *Service) Report(report *worker.Report) {
	s.post(reportEvent{report: report})
}

// Heartbeat implements worker.Sink.
func (s *Service) Heartbeat(id int) {
	s.post(heartbeatEvent{worker: id})
}

// ---------------------------------------------------------------------------
// Public API (request/reply over the event loop)
// ---------------------------------------------------------------------------

// Spawn submits a task eagerly: the task enters Waiting immediately and is
// tracked by the controller. Arguments are tagged; task refs add read edges
// and mutable chunks listed in the mutates options add write edges chained
// after the chunk's last recorded mutator.
func (s *Service) Spawn(ctx context.Context, callable task.Callable, args []task.Argument, options ...task.Option) (handle *Handle, err error) {
	t := task.New(callable, args, options...)
	ctx, span := tracing.StartSpan(ctx, fmt.Sprintf("scheduler.Spawn %s", t.Name))
	defer func() { tracing.EndSpan(span, err) }()
	if p := policy.FromContext(ctx); p != nil {
		t.Deadline = p.Deadline(t.Deadline)
		t.Priority = p.Priority(t.Priority)
	}
	req := spawnRequest{task: t, reply: make(chan spawnReply, 1)}

	// Checkpoint consult happens before the task enters Waiting; a valid
	// record short-circuits recomputation.
	if t.CheckpointKey != "" && s.checkpointer != nil {
		value, ok, err := s.checkpointer.Restore(ctx, t.CheckpointKey)
		if err != nil {
			log.Printf("checkpoint restore %s: %v (recomputing)", t.CheckpointKey, err)
		} else if ok {
			req.restored = value
			req.hasValue = true
		}
	}

	select {
	case s.events <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.shutdownCh:
		return nil, fmt.Errorf("scheduler is shut down")
	}
	select {
	case reply := <-req.reply:
		return reply.handle, reply.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cancel requests best-effort cancellation. Waiting/Ready tasks are removed
// from the queue and fail with a cancellation error; for a Dispatched task
// the request only takes effect if the worker cooperates.
func (s *Service) Cancel(ctx context.Context, taskID string) bool {
	req := cancelRequest{taskID: taskID, reply: make(chan bool, 1)}
	select {
	case s.events <- req:
	case <-ctx.Done():
		return false
	}
	select {
	case ok := <-req.reply:
		return ok
	case <-ctx.Done():
		return false
	}
}

// Reprioritize adjusts the priority of a queued (Waiting/Ready) task.
func (s *Service) Reprioritize(ctx context.Context, taskID string, priority int) bool {
	req := reprioritizeRequest{taskID: taskID, priority: priority, reply: make(chan bool, 1)}
	select {
	case s.events <- req:
	case <-ctx.Done():
		return false
	}
	select {
	case ok := <-req.reply:
		return ok
	case <-ctx.Done():
		return false
	}
}

// Snapshot returns a read-only view of the task graph for external
// introspection; the controller does not implement visualization itself.
func (s *Service) Snapshot(ctx context.Context) []TaskSnapshot {
	req := snapshotRequest{reply: make(chan []TaskSnapshot, 1)}
	select {
	case s.events <- req:
	case <-ctx.Done():
		return nil
	}
	select {
	case snap := <-req.reply:
		return snap
	case <-ctx.Done():
		return nil
	}
}

// NewMutable creates a pinned mutable chunk holding value. worker selects
// the owner; pass data.DriverWorker to let the controller pick the
// least-loaded live worker.
func (s *Service) NewMutable(ctx context.Context, value interface{}, workerID int) (*chunk.Handle, error) {
	req := mutableRequest{value: value, worker: workerID, reply: make(chan mutableReply, 1)}
	select {
	case s.events <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case reply := <-req.reply:
		return reply.handle, reply.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// NewShard builds a shard by independently invoking init on every live
// worker; each resulting member chunk is mutable and owned by its worker.
func (s *Service) NewShard(ctx context.Context, init task.Callable) (*chunk.Shard, error) {
	processors := s.liveProcessors(ctx)
	if len(processors) == 0 {
		return nil, fmt.Errorf("no live workers")
	}
	shard := chunk.NewShard()
	handles := make(map[int]*Handle, len(processors))
	for _, p := range processors {
		h, err := s.Spawn(ctx, init, Args(p.Worker),
			task.WithScope(scope.Worker(p.Worker)), task.WithName("shard-init"))
		if err != nil {
			return nil, err
		}
		handles[p.Worker] = h
	}
	for workerID, h := range handles {
		if err := h.Wait(ctx); err != nil {
			return nil, fmt.Errorf("shard init on worker %d: %w", workerID, err)
		}
		member, err := s.adoptMutable(ctx, h.ID(), workerID)
		if err != nil {
			return nil, err
		}
		shard.Members[workerID] = member
	}
	return shard, nil
}

// adoptMutable promotes a completed task's result into a mutable chunk owned
// by the worker it ran on.
func (s *Service) adoptMutable(ctx context.Context, taskID string, workerID int) (*chunk.Handle, error) {
	req := adoptMutableRequest{taskID: taskID, worker: workerID, reply: make(chan mutableReply, 1)}
	select {
	case s.events <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case reply := <-req.reply:
		return reply.handle, reply.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type workersRequest struct {
	reply chan []scope.Processor
}

func (s *Service) liveProcessors(ctx context.Context) []scope.Processor {
	req := workersRequest{reply: make(chan []scope.Processor, 1)}
	select {
	case s.events <- req:
	case <-ctx.Done():
		return nil
	}
	select {
	case out := <-req.reply:
		return out
	case <-ctx.Done():
		return nil
	}
}

// FetchChunk blocks until the chunk's last recorded mutator settled, then
// materializes the value locally and returns it.
func (s *Service) FetchChunk(ctx context.Context, h *chunk.Handle) (value interface{}, err error) {
	ctx, span := tracing.StartSpan(ctx, fmt.Sprintf("scheduler.FetchChunk %s", h.ID))
	defer func() { tracing.EndSpan(span, err) }()
	for {
		status, err := s.chunkStatus(ctx, h)
		if err != nil {
			return nil, err
		}
		if status.lost {
			return nil, &fault.LostDataError{ChunkID: h.ID, Worker: status.lostWorker}
		}
		if status.pendingMutator == nil {
			break
		}
		if err := status.pendingMutator.Wait(ctx); err != nil {
			return nil, err
		}
	}
	req := chunkValueRequest{handle: h, reply: make(chan chunkValueReply, 1)}
	select {
	case s.events <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case reply := <-req.reply:
		return reply.value, reply.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Service) chunkStatus(ctx context.Context, h *chunk.Handle) (*chunkStatus, error) {
	req := chunkStatusRequest{handle: h, reply: make(chan chunkStatus, 1)}
	select {
	case s.events <- req:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case status := <-req.reply:
		return &status, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Task returns the record for a task id, or nil.
func (s *Service) Task(ctx context.Context, id string) (*Record, error) {
	if s.records == nil {
		return nil, fmt.Errorf("record store not configured")
	}
	return s.records.Load(ctx, id)
}

// ---------------------------------------------------------------------------
// Event loop
// ---------------------------------------------------------------------------

func (s *Service) handle(e event) {
	switch actual := e.(type) {
	case spawnRequest:
		s.handleSpawn(actual)
	case reportEvent:
		s.handleReport(actual.report)
	case heartbeatEvent:
		s.handleHeartbeat(actual.worker)
	case workerLostEvent:
		s.markWorkerLost(actual.worker)
	case cancelRequest:
		actual.reply <- s.handleCancel(actual.taskID)
	case reprioritizeRequest:
		actual.reply <- s.handleReprioritize(actual.taskID, actual.priority)
	case timeoutEvent:
		s.handleTimeout(actual)
	case snapshotRequest:
		actual.reply <- s.buildSnapshot()
	case mutableRequest:
		actual.reply <- s.handleMutable(actual)
	case adoptMutableRequest:
		actual.reply <- s.handleAdoptMutable(actual)
	case chunkStatusRequest:
		actual.reply <- s.handleChunkStatus(actual)
	case chunkValueRequest:
		actual.reply <- s.handleChunkValue(actual)
	case workersRequest:
		var out []scope.Processor
		for _, ws := range s.workers {
			if !ws.lost {
				out = append(out, ws.processor)
			}
		}
		actual.reply <- out
	}
}

func (s *Service) handleSpawn(req spawnRequest) {
	t := req.task
	if _, exists := s.nodes[t.ID]; exists {
		req.reply <- spawnReply{err: fmt.Errorf("task %s already exists", t.ID)}
		return
	}

	deps, err := s.collectDependencies(t)
	if err != nil {
		req.reply <- spawnReply{err: err}
		return
	}

	s.spawnSeq++
	rec := newRecord(t)
	n := &node{
		task:      t,
		record:    rec,
		state:     task.StateWaiting,
		dependsOn: deps,
		priority:  t.Priority,
		deadline:  t.Deadline,
		spawnSeq:  s.spawnSeq,
		worker:    -1,
	}
	s.nodes[t.ID] = n
	if s.records != nil {
		_ = s.records.Save(s.ctx, rec)
	}
	s.progress.Update(progress.Delta{Spawned: 1, Waiting: 1})
	s.notify(n)

	handle := &Handle{s: s, rec: rec}

	if req.hasValue {
		// Valid checkpoint: mark Completed directly, skipping recomputation.
		rc := chunk.NewHandle()
		s.data.Register(rc, data.DriverWorker, req.restored)
		n.resultChunk = rc
		s.completeNode(n, req.restored)
		req.reply <- spawnReply{handle: handle}
		s.dispatchReady()
		return
	}

	var failedDep *node
	for _, depID := range deps {
		dep := s.nodes[depID]
		switch dep.state {
		case task.StateCompleted:
		case task.StateFailed:
			if failedDep == nil {
				failedDep = dep
			}
		default:
			n.pending++
			dep.dependents = append(dep.dependents, t.ID)
		}
	}
	if failedDep != nil {
		s.failNode(n, s.dependencyFailure(n, failedDep))
		req.reply <- spawnReply{handle: handle}
		return
	}
	if n.pending == 0 {
		s.markReady(n)
	}
	req.reply <- spawnReply{handle: handle}
	s.dispatchReady()
}

// collectDependencies derives the dependency edge set of a task: read edges
// from task-ref arguments, explicit ordering edges, read-after-write edges on
// mutable chunk reads, and write edges chaining each declared mutation after
// the chunk's (or shard's) last recorded mutator.
func (s *Service) collectDependencies(t *task.Task) ([]string, error) {
	seen := make(map[string]bool)
	var deps []string
	add := func(id string) error {
		if id == "" || seen[id] {
			return nil
		}
		if id == t.ID {
			return &fault.CycleError{Path: []string{t.ID, t.ID}}
		}
		if _, ok := s.nodes[id]; !ok {
			return fmt.Errorf("task %s depends on unknown task %s", t.ID, id)
		}
		seen[id] = true
		deps = append(deps, id)
		return nil
	}

	for _, arg := range t.Args {
		switch arg.Kind {
		case task.ArgTask:
			if err := add(arg.TaskID); err != nil {
				return nil, err
			}
		case task.ArgData:
			// Reads of a mutable chunk order after its last recorded mutator.
			if arg.Data != nil && arg.Data.Mutable {
				if err := add(s.data.LastMutator(arg.Data.ID)); err != nil {
					return nil, err
				}
			}
		}
	}
	for _, id := range t.After {
		if err := add(id); err != nil {
			return nil, err
		}
	}
	// Write edges: only one task may consume a given generation, so each
	// mutating spawn chains after the prior mutator. Mutation order is a
	// graph property, not a runtime lock.
	for _, h := range t.Mutates {
		prev := s.data.ChainMutator(h.ID, t.ID)
		if prev != t.ID {
			if err := add(prev); err != nil {
				return nil, err
			}
		}
	}
	for _, sh := range t.MutatesShards {
		prev := s.data.ChainMutator(sh.ID, t.ID)
		if prev != t.ID {
			if err := add(prev); err != nil {
				return nil, err
			}
		}
	}
	if path := s.findCycle(t.ID, deps); path != nil {
		return nil, &fault.CycleError{Path: path}
	}
	return deps, nil
}

// findCycle walks the dependency edges from the candidate's deps looking for
// the candidate itself. Edges always point at already-spawned tasks, so this
// is a defensive check; it proves the graph stays acyclic by construction.
func (s *Service) findCycle(id string, deps []string) []string {
	visited := make(map[string]bool)
	var walk func(current string, path []string) []string
	walk = func(current string, path []string) []string {
		if current == id {
			return append(path, id)
		}
		if visited[current] {
			return nil
		}
		visited[current] = true
		n := s.nodes[current]
		if n == nil {
			return nil
		}
		for _, dep := range n.dependsOn {
			if found := walk(dep, append(path, current)); found != nil {
				return found
			}
		}
		return nil
	}
	for _, dep := range deps {
		if found := walk(dep, []string{id}); found != nil {
			return found
		}
	}
	return nil
}

func (s *Service) markReady(n *node) {
	n.state = task.StateReady
	n.record.setState(task.StateReady)
	s.ready.push(n)
	s.progress.Update(progress.Delta{Waiting: -1, Ready: 1})
	s.notify(n)
}

// dispatchReady drains the ready queue, resolving placement and shipping
// each task to its chosen worker.
func (s *Service) dispatchReady() {
	for {
		n := s.ready.pop()
		if n == nil {
			return
		}
		s.dispatch(n)
	}
}

func (s *Service) dispatch(n *node) {
	t := n.task

	// Placement resolution: intersect the task's scope with the scope every
	// mutable chunk argument implies (its owning worker only).
	eff := t.Scope
	var weightIDs []string
	lost := ""
	lostWorker := -1
	forEachChunk(n, func(h *chunk.Handle) {
		if s.data.Lost(h.ID) && lost == "" {
			lost = h.ID
			if owner, ok := s.data.Owner(h.ID); ok {
				lostWorker = owner
			}
		}
		if h.Mutable {
			eff = scope.Intersect(eff, s.data.ImpliedScope(h))
		}
		weightIDs = append(weightIDs, h.ID)
	})
	if lost != "" {
		s.failNode(n, &fault.LostDataError{ChunkID: lost, Worker: lostWorker})
		return
	}

	var live []scope.Processor
	for _, ws := range s.workers {
		if !ws.lost {
			live = append(live, ws.processor)
		}
	}
	candidates := eff.Candidates(live)
	if len(candidates) == 0 {
		s.failNode(n, &fault.SchedulingError{TaskID: t.ID,
			Reason: fmt.Sprintf("scope %q admits none of %d live workers", eff, len(live))})
		return
	}

	target := s.pickWorker(n, candidates, weightIDs)

	values, err := s.materializeArgs(n, target)
	if err != nil {
		s.failNode(n, err)
		return
	}

	// Shard mutations resolve to the target worker's member exactly once per
	// dispatch; record the member ids so generations commit on completion.
	n.shardMembers = n.shardMembers[:0]
	for _, sh := range t.MutatesShards {
		member, err := s.data.ResolveShard(sh, target)
		if err != nil {
			s.failNode(n, err)
			return
		}
		n.shardMembers = append(n.shardMembers, member.ID)
		s.data.ChainMutator(member.ID, t.ID)
	}

	n.state = task.StateDispatched
	n.record.setState(task.StateDispatched)
	n.worker = target
	n.record.worker = target
	n.dispatchSeq++
	s.workers[target].inflight++
	s.progress.Update(progress.Delta{Ready: -1, Dispatched: 1})
	s.notify(n)

	if err := s.pool.Submit(s.ctx, &worker.Dispatch{
		TaskID:   t.ID,
		Name:     t.Name,
		Callable: t.Callable,
		Args:     values,
		Worker:   target,
	}); err != nil {
		s.workers[target].inflight--
		s.failNode(n, fmt.Errorf("failed to submit task %s to worker %d: %w", t.ID, target, err))
		return
	}

	if n.deadline > 0 {
		taskID, seq := t.ID, n.dispatchSeq
		time.AfterFunc(n.deadline, func() {
			s.post(timeoutEvent{taskID: taskID, dispatchSeq: seq})
		})
	}
}

// forEachChunk visits every chunk the task reads or mutates.
func forEachChunk(n *node, fn func(h *chunk.Handle)) {
	for _, arg := range n.task.Args {
		switch arg.Kind {
		case task.ArgData:
			fn(arg.Data)
		case task.ArgTask:
			// result chunks are looked up by the caller where needed
		}
	}
	for _, h := range n.task.Mutates {
		fn(h)
	}
}

// pickWorker applies the candidate selection policy: prefer the worker
// already holding the largest byte-weight of required inputs, tie-break by
// lowest queue depth, then by lowest worker id for determinism.
func (s *Service) pickWorker(n *node, candidates []scope.Processor, weightIDs []string) int {
	// task-ref results also weigh in
	ids := append([]string(nil), weightIDs...)
	for _, arg := range n.task.Args {
		if arg.Kind == task.ArgTask {
			if dep := s.nodes[arg.TaskID]; dep != nil && dep.resultChunk != nil {
				ids = append(ids, dep.resultChunk.ID)
			}
		}
	}
	best := -1
	bestBytes := -1
	bestDepth := 0
	for _, p := range candidates {
		perWorker := ids
		for _, arg := range n.task.Args {
			if arg.Kind == task.ArgShard {
				if member := arg.Shard.Member(p.Worker); member != nil {
					perWorker = append(perWorker, member.ID)
				}
			}
		}
		bytes := s.data.ResidentBytes(perWorker, p.Worker)
		depth := s.workers[p.Worker].inflight
		switch {
		case best == -1,
			bytes > bestBytes,
			bytes == bestBytes && depth < bestDepth,
			bytes == bestBytes && depth == bestDepth && p.Worker < best:
			best, bestBytes, bestDepth = p.Worker, bytes, depth
		}
	}
	return best
}

// materializeArgs moves or copies every argument onto the target worker and
// returns the concrete values in declaration order.
func (s *Service) materializeArgs(n *node, target int) ([]interface{}, error) {
	values := make([]interface{}, len(n.task.Args))
	for i, arg := range n.task.Args {
		switch arg.Kind {
		case task.ArgLiteral:
			values[i] = arg.Literal
		case task.ArgTask:
			dep := s.nodes[arg.TaskID]
			if dep == nil || dep.resultChunk == nil {
				return nil, fmt.Errorf("task %s: result of %s unavailable", n.task.ID, arg.TaskID)
			}
			value, err := s.data.Materialize(s.ctx, dep.resultChunk, target)
			if err != nil {
				return nil, err
			}
			values[i] = value
		case task.ArgData:
			value, err := s.data.Materialize(s.ctx, arg.Data, target)
			if err != nil {
				return nil, err
			}
			values[i] = value
		case task.ArgShard:
			member, err := s.data.ResolveShard(arg.Shard, target)
			if err != nil {
				return nil, err
			}
			value, err := s.data.Materialize(s.ctx, member, target)
			if err != nil {
				return nil, err
			}
			values[i] = value
		}
	}
	return values, nil
}

func (s *Service) handleReport(report *worker.Report) {
	n := s.nodes[report.TaskID]
	if n == nil || n.state != task.StateDispatched || n.worker != report.Worker {
		// stale report (timeout or worker-lost already settled the task)
		return
	}
	if ws := s.workers[n.worker]; ws != nil {
		ws.inflight--
	}
	if report.Err != nil {
		s.failNode(n, report.Err)
		s.dispatchReady()
		return
	}

	// Commit declared mutations: each produces generation g+1 at the owner,
	// which stays the sole resident.
	for _, h := range n.task.Mutates {
		if value, ok := s.data.Value(h.ID, n.worker); ok {
			s.data.CommitMutation(h.ID, n.worker, value)
		}
	}
	for _, memberID := range n.shardMembers {
		if value, ok := s.data.Value(memberID, n.worker); ok {
			s.data.CommitMutation(memberID, n.worker, value)
		}
	}

	rc := chunk.NewHandle()
	s.data.Register(rc, n.worker, report.Output)
	n.resultChunk = rc

	s.completeNode(n, report.Output)

	if key := n.task.CheckpointKey; key != "" && s.checkpointer != nil {
		output := report.Output
		go func() {
			if _, err := s.checkpointer.Persist(context.Background(), key, output); err != nil {
				log.Printf("checkpoint persist %s: %v", key, err)
			}
		}()
	}
	s.dispatchReady()
}

func (s *Service) completeNode(n *node, result interface{}) {
	delta := progress.Delta{Completed: 1}
	switch n.state {
	case task.StateWaiting:
		delta.Waiting = -1
	case task.StateReady:
		delta.Ready = -1
	case task.StateDispatched:
		delta.Dispatched = -1
	}
	n.state = task.StateCompleted
	s.terminalSeq++
	now := clock.Now()
	n.record.result = result
	n.record.terminalSeq = s.terminalSeq
	n.record.CompletedAt = &now
	n.record.setState(task.StateCompleted)
	s.progress.Update(delta)
	s.notify(n)
	close(n.record.done)

	for _, depID := range n.dependents {
		dep := s.nodes[depID]
		if dep == nil || dep.state != task.StateWaiting {
			continue
		}
		dep.pending--
		if dep.pending == 0 {
			s.markReady(dep)
		}
	}
}

// dependencyFailure builds the terminal error for a task downstream of a
// failure, preserving the identity of the originally-failed task.
func (s *Service) dependencyFailure(n *node, failed *node) error {
	origin := failed.task.ID
	if prior := fault.Origin(failed.record.err); prior != "" {
		origin = prior
	}
	return &fault.DependencyFailure{TaskID: n.task.ID, Origin: origin, Cause: failed.record.err}
}

func (s *Service) failNode(n *node, err error) {
	if n.state.IsTerminal() {
		return
	}
	delta := progress.Delta{Failed: 1}
	switch n.state {
	case task.StateWaiting:
		delta.Waiting = -1
	case task.StateReady:
		delta.Ready = -1
	case task.StateDispatched:
		delta.Dispatched = -1
	}
	if errors.Is(err, fault.ErrCancelled) {
		delta.Cancelled = 1
	}
	n.state = task.StateFailed
	s.terminalSeq++
	now := clock.Now()
	n.record.err = err
	n.record.terminalSeq = s.terminalSeq
	n.record.CompletedAt = &now
	n.record.setState(task.StateFailed)
	s.progress.Update(delta)
	s.notify(n)
	close(n.record.done)

	// Failure propagates transitively and immediately; downstream of a
	// failure is never executed, unrelated branches are unaffected.
	for _, depID := range n.dependents {
		dep := s.nodes[depID]
		if dep == nil || dep.state.IsTerminal() {
			continue
		}
		s.failNode(dep, s.dependencyFailure(dep, n))
	}
}

func (s *Service) handleCancel(taskID string) bool {
	n := s.nodes[taskID]
	if n == nil || n.state.IsTerminal() {
		return false
	}
	switch n.state {
	case task.StateWaiting, task.StateReady:
		n.cancelled = true
		s.failNode(n, fmt.Errorf("task %s: %w", taskID, fault.ErrCancelled))
		return true
	case task.StateDispatched:
		// Best effort: takes effect only if the callable observes its context.
		s.pool.Cancel(taskID)
		return true
	}
	return false
}

func (s *Service) handleReprioritize(taskID string, priority int) bool {
	n := s.nodes[taskID]
	if n == nil || n.state.IsTerminal() || n.state == task.StateDispatched {
		return false
	}
	n.priority = priority
	s.ready.reorder()
	return true
}

func (s *Service) handleTimeout(e timeoutEvent) {
	n := s.nodes[e.taskID]
	if n == nil || n.state != task.StateDispatched || n.dispatchSeq != e.dispatchSeq {
		return
	}
	if ws := s.workers[n.worker]; ws != nil {
		ws.inflight--
	}
	// The worker may still be running; the deadline only settles the task.
	s.failNode(n, &fault.TimeoutError{TaskID: e.taskID, Worker: n.worker})
	s.dispatchReady()
}

func (s *Service) handleHeartbeat(id int) {
	ws := s.workers[id]
	if ws == nil || ws.lost {
		return
	}
	ws.lastSeen = clock.Now()
}

func (s *Service) checkLiveness(now time.Time) {
	for id, ws := range s.workers {
		if !ws.lost && now.Sub(ws.lastSeen) > s.config.HeartbeatTimeout {
			s.markWorkerLost(id)
		}
	}
}

// FailWorker declares a worker unreachable. Exposed for tests and external
// supervisors; the liveness monitor calls the same path on missed
// heartbeats.
func (s *Service) FailWorker(id int) {
	s.post(workerLostEvent{worker: id})
}

func (s *Service) markWorkerLost(id int) {
	ws := s.workers[id]
	if ws == nil || ws.lost {
		return
	}
	ws.lost = true
	log.Printf("worker %d unreachable; failing its dispatched tasks", id)

	lostChunks := s.data.MarkWorkerLost(id)
	if len(lostChunks) > 0 {
		log.Printf("worker %d owned %d mutable chunk(s) now lost", id, len(lostChunks))
	}
	for _, n := range s.nodes {
		if n.state == task.StateDispatched && n.worker == id {
			s.failNode(n, &fault.ExecutionError{TaskID: n.task.ID, Worker: id,
				Err: errors.New("worker unreachable")})
		}
	}
	s.dispatchReady()
}

func (s *Service) handleMutable(req mutableRequest) mutableReply {
	target := req.worker
	if target == data.DriverWorker {
		best := -1
		bestDepth := 0
		for id, ws := range s.workers {
			if ws.lost {
				continue
			}
			if best == -1 || ws.inflight < bestDepth || (ws.inflight == bestDepth && id < best) {
				best, bestDepth = id, ws.inflight
			}
		}
		target = best
	} else if ws := s.workers[target]; ws == nil || ws.lost {
		return mutableReply{err: fmt.Errorf("worker %d is not available", target)}
	}
	if target < 0 {
		return mutableReply{err: fmt.Errorf("no live workers")}
	}
	h := chunk.NewMutable()
	s.data.Register(h, target, req.value)
	return mutableReply{handle: h}
}

func (s *Service) handleAdoptMutable(req adoptMutableRequest) mutableReply {
	n := s.nodes[req.taskID]
	if n == nil || n.resultChunk == nil {
		return mutableReply{err: fmt.Errorf("task %s has no result", req.taskID)}
	}
	value, ok := s.data.Value(n.resultChunk.ID, req.worker)
	if !ok {
		return mutableReply{err: fmt.Errorf("result of %s not resident on worker %d", req.taskID, req.worker)}
	}
	h := chunk.NewMutable()
	s.data.Register(h, req.worker, value)
	return mutableReply{handle: h}
}

func (s *Service) handleChunkStatus(req chunkStatusRequest) chunkStatus {
	var status chunkStatus
	id := req.handle.ID
	if s.data.Lost(id) {
		status.lost = true
		if owner, ok := s.data.Owner(id); ok {
			status.lostWorker = owner
		}
		return status
	}
	if mutator := s.data.LastMutator(id); mutator != "" {
		if n := s.nodes[mutator]; n != nil && !n.state.IsTerminal() {
			status.pendingMutator = &Handle{s: s, rec: n.record}
		} else if n != nil && n.state == task.StateFailed {
			status.pendingMutator = &Handle{s: s, rec: n.record}
		}
	}
	return status
}

// handleChunkValue reads a chunk's current value for the caller. Mutable
// chunks stay pinned to their owner, so the driver gets a value snapshot
// rather than a replica.
func (s *Service) handleChunkValue(req chunkValueRequest) chunkValueReply {
	if req.handle.Mutable {
		value, ok := s.data.AnyValue(req.handle.ID)
		if !ok {
			return chunkValueReply{err: &fault.DataTransferError{ChunkID: req.handle.ID,
				Worker: data.DriverWorker, Err: errors.New("no resident copy")}}
		}
		return chunkValueReply{value: value}
	}
	value, err := s.data.Materialize(s.ctx, req.handle, data.DriverWorker)
	return chunkValueReply{value: value, err: err}
}

func (s *Service) buildSnapshot() []TaskSnapshot {
	out := make([]TaskSnapshot, 0, len(s.nodes))
	for _, n := range s.nodes {
		snap := TaskSnapshot{
			ID:          n.task.ID,
			Name:        n.task.Name,
			State:       n.state,
			Priority:    n.priority,
			Worker:      n.worker,
			DependsOn:   append([]string(nil), n.dependsOn...),
			Dependents:  append([]string(nil), n.dependents...),
			CreatedAt:   n.task.CreatedAt,
			CompletedAt: n.record.CompletedAt,
		}
		if n.record.err != nil {
			snap.Error = n.record.err.Error()
		}
		out = append(out, snap)
	}
	return out
}

func (s *Service) notify(n *node) {
	if s.notifier == nil {
		return
	}
	lifecycle := &Lifecycle{
		TaskID:    n.task.ID,
		Name:      n.task.Name,
		State:     n.state,
		Worker:    n.worker,
		Timestamp: clock.Now(),
	}
	if n.record.err != nil {
		lifecycle.Error = n.record.err.Error()
	}
	s.notifier.Notify(lifecycle)
}
