// Package data implements the data manager: the chunk location table, the
// replicate-on-read path for read-only chunks and the single-writer mutation
// protocol for mutable ones.
//
// The manager is owned by the scheduler controller and mutated exclusively
// from its serialized event loop; it therefore carries no locking of its own.
package data

import (
	"context"
	"fmt"
	"reflect"

	"github.com/chunkgrid/chunkgrid/fault"
	"github.com/chunkgrid/chunkgrid/model/chunk"
	"github.com/chunkgrid/chunkgrid/scope"
)

// DriverWorker is the pseudo worker id for values resident on the driver
// (checkpoint restores, locally supplied inputs).
const DriverWorker = -1

// FileStore loads and saves chunk values addressed by URL. It is the
// file-backed handle collaborator; the manager calls it exactly as it calls
// its own materialize path.
type FileStore interface {
	Materialize(ctx context.Context, url string) (interface{}, error)
	Persist(ctx context.Context, value interface{}, url string) error
}

// location is the per-chunk entry of the location table.
type location struct {
	handle      *chunk.Handle
	values      map[int]interface{}
	owner       int // mutable chunks: the single resident worker
	size        int
	generation  int
	lastMutator string
	lost        bool
}

// Manager owns the chunk id -> resident worker(s) mapping.
type Manager struct {
	locations map[string]*location
	fileStore FileStore

	// transfers counts completed replications, exposed for tests and
	// movement-cost introspection.
	transfers int
}

// New creates an empty data manager.
func New() *Manager {
	return &Manager{locations: make(map[string]*location)}
}

// SetFileStore installs the file-backed handle collaborator.
func (m *Manager) SetFileStore(fs FileStore) { m.fileStore = fs }

// Transfers returns the number of chunk replications performed so far.
func (m *Manager) Transfers() int { return m.transfers }

func (m *Manager) location(id string) *location {
	loc, ok := m.locations[id]
	if !ok {
		loc = &location{owner: DriverWorker, values: make(map[int]interface{})}
		m.locations[id] = loc
	}
	return loc
}

// Register records a chunk value as resident on the given worker. For
// mutable chunks the worker becomes the sole owner.
func (m *Manager) Register(h *chunk.Handle, worker int, value interface{}) {
	loc := m.location(h.ID)
	loc.handle = h
	loc.size = sizeOf(value)
	if h.Mutable {
		loc.owner = worker
		loc.values = map[int]interface{}{worker: value}
		return
	}
	loc.values[worker] = value
}

// Exists reports whether the chunk has a location entry.
func (m *Manager) Exists(id string) bool {
	_, ok := m.locations[id]
	return ok
}

// Value returns the chunk value resident on the worker, if any.
func (m *Manager) Value(id string, worker int) (interface{}, bool) {
	loc, ok := m.locations[id]
	if !ok {
		return nil, false
	}
	v, ok := loc.values[worker]
	return v, ok
}

// AnyValue returns any resident copy of the chunk.
func (m *Manager) AnyValue(id string) (interface{}, bool) {
	loc, ok := m.locations[id]
	if !ok {
		return nil, false
	}
	for _, v := range loc.values {
		return v, true
	}
	return nil, false
}

// Lost reports whether the chunk's exclusively-owned copy became unreachable.
func (m *Manager) Lost(id string) bool {
	loc, ok := m.locations[id]
	return ok && loc.lost
}

// Owner returns the owning worker of a mutable chunk.
func (m *Manager) Owner(id string) (int, bool) {
	loc, ok := m.locations[id]
	if !ok || loc.handle == nil || !loc.handle.Mutable {
		return 0, false
	}
	return loc.owner, true
}

// ImpliedScope returns the placement scope a chunk argument implies: mutable
// chunks pin the task to their owning worker, read-only chunks imply nothing.
func (m *Manager) ImpliedScope(h *chunk.Handle) scope.Scope {
	if h == nil || !h.Mutable {
		return scope.Any()
	}
	if owner, ok := m.Owner(h.ID); ok {
		return scope.Worker(owner)
	}
	return scope.Any()
}

// Materialize makes the chunk value available on the target worker and
// returns it. A no-op when already resident. Read-only chunks are copied
// from any resident worker (or the file store) and the target joins the
// replica set; replicas may be cached indefinitely. Mutable chunks are never
// replicated - materializing one anywhere but its owner is illegal.
func (m *Manager) Materialize(ctx context.Context, h *chunk.Handle, target int) (interface{}, error) {
	loc := m.location(h.ID)
	if loc.handle == nil {
		loc.handle = h
	}
	if loc.lost {
		return nil, &fault.LostDataError{ChunkID: h.ID, Worker: loc.owner}
	}
	if v, ok := loc.values[target]; ok {
		return v, nil
	}
	if h.Mutable {
		return nil, &fault.DataTransferError{ChunkID: h.ID, Worker: target,
			Err: fmt.Errorf("mutable chunk owned by worker %d cannot be replicated", loc.owner)}
	}
	for _, v := range loc.values {
		loc.values[target] = v
		m.transfers++
		return v, nil
	}
	if h.URL != "" && m.fileStore != nil {
		v, err := m.fileStore.Materialize(ctx, h.URL)
		if err != nil {
			return nil, &fault.DataTransferError{ChunkID: h.ID, Worker: target, Err: err}
		}
		loc.values[target] = v
		loc.size = sizeOf(v)
		m.transfers++
		return v, nil
	}
	return nil, &fault.DataTransferError{ChunkID: h.ID, Worker: target,
		Err: fmt.Errorf("no resident copy")}
}

// Persist writes a resident copy of the chunk out through the file store.
func (m *Manager) Persist(ctx context.Context, h *chunk.Handle) error {
	if h.URL == "" || m.fileStore == nil {
		return fmt.Errorf("chunk %s has no file backing", h.ID)
	}
	v, ok := m.AnyValue(h.ID)
	if !ok {
		return &fault.DataTransferError{ChunkID: h.ID, Worker: DriverWorker,
			Err: fmt.Errorf("no resident copy")}
	}
	return m.fileStore.Persist(ctx, v, h.URL)
}

// Generation returns the current generation counter of a mutable chunk.
func (m *Manager) Generation(id string) int {
	if loc, ok := m.locations[id]; ok {
		return loc.generation
	}
	return 0
}

// LastMutator returns the task id of the last declared mutator of the chunk.
func (m *Manager) LastMutator(id string) string {
	if loc, ok := m.locations[id]; ok {
		return loc.lastMutator
	}
	return ""
}

// ChainMutator records taskID as the sole declared consumer of the chunk's
// next generation and returns the task id it must be chained after ("" when
// the chunk has no prior mutator). Enforcing one consumer per generation at
// graph-construction time is what makes mutation order a graph property
// rather than a runtime lock.
func (m *Manager) ChainMutator(id string, taskID string) (prev string) {
	loc := m.location(id)
	prev = loc.lastMutator
	loc.lastMutator = taskID
	return prev
}

// CommitMutation installs the post-mutation value at the owner and advances
// the generation counter; the owner remains the sole resident.
func (m *Manager) CommitMutation(id string, worker int, value interface{}) {
	loc := m.location(id)
	loc.owner = worker
	loc.values = map[int]interface{}{worker: value}
	loc.size = sizeOf(value)
	loc.generation++
}

// ResolveShard substitutes a shard for the single member chunk owned by the
// worker the task is dispatched to. The substitution is per-dispatch and
// never global.
func (m *Manager) ResolveShard(s *chunk.Shard, worker int) (*chunk.Handle, error) {
	member := s.Member(worker)
	if member == nil {
		return nil, fmt.Errorf("shard %s has no member on worker %d", s.ID, worker)
	}
	return member, nil
}

// MarkWorkerLost drops every replica the worker held and marks mutable
// chunks it exclusively owned as lost. Returns the ids of lost chunks.
func (m *Manager) MarkWorkerLost(worker int) []string {
	var lost []string
	for id, loc := range m.locations {
		if loc.handle != nil && loc.handle.Mutable {
			if loc.owner == worker && !loc.lost {
				loc.lost = true
				delete(loc.values, worker)
				lost = append(lost, id)
			}
			continue
		}
		delete(loc.values, worker)
	}
	return lost
}

// ResidentBytes sums the byte-weight of the listed chunks already resident
// on the worker; the placement policy uses it to minimize data movement.
func (m *Manager) ResidentBytes(ids []string, worker int) int {
	total := 0
	for _, id := range ids {
		loc, ok := m.locations[id]
		if !ok {
			continue
		}
		if _, resident := loc.values[worker]; resident {
			total += loc.size
		}
	}
	return total
}

// sizeOf estimates the byte weight of a value. The estimate only has to be
// consistent, not exact - it feeds a relative comparison between workers.
func sizeOf(v interface{}) int {
	if v == nil {
		return 0
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return 0
		}
		return sizeOf(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		if rv.Len() == 0 {
			return 0
		}
		return rv.Len() * sizeOf(rv.Index(0).Interface())
	case reflect.Map:
		size := 0
		for _, key := range rv.MapKeys() {
			size += sizeOf(key.Interface()) + sizeOf(rv.MapIndex(key).Interface())
		}
		return size
	case reflect.String:
		return rv.Len()
	default:
		size := int(rv.Type().Size())
		if size == 0 {
			size = 1
		}
		return size
	}
}
