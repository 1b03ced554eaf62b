// Package chunk defines references to data resident on workers. A Handle is a
// lightweight reference; where the value actually lives (owner, replicas,
// generation) is tracked by the data manager, never on the handle itself.
package chunk

import (
	"github.com/chunkgrid/chunkgrid/internal/idgen"
)

// Metadata carries optional type/shape information for a chunk.
type Metadata struct {
	Type  string `json:"type,omitempty"`
	Shape []int  `json:"shape,omitempty"`
}

// Handle references a concrete value resident on one or more workers.
// Read-only handles may be replicated freely; mutable handles have exactly
// one resident copy at any instant.
type Handle struct {
	ID      string   `json:"id"`
	Mutable bool     `json:"mutable"`
	Meta    Metadata `json:"meta,omitempty"`
	// URL backs the chunk by an external file store; the data manager falls
	// back to it when no worker holds a resident copy.
	URL string `json:"url,omitempty"`
}

// NewHandle creates a read-only chunk reference.
func NewHandle() *Handle {
	return &Handle{ID: idgen.New()}
}

// NewMutable creates a mutable chunk reference.
func NewMutable() *Handle {
	return &Handle{ID: idgen.New(), Mutable: true}
}

// Shard is a logical object composed of one independently-initialized member
// chunk per worker. A task dispatched to worker W observes exactly W's
// member; the substitution happens once per dispatch.
type Shard struct {
	ID      string          `json:"id"`
	Members map[int]*Handle `json:"members"`
}

// NewShard creates an empty shard.
func NewShard() *Shard {
	return &Shard{ID: idgen.New(), Members: make(map[int]*Handle)}
}

// Member returns the chunk owned by the given worker, or nil.
func (s *Shard) Member(worker int) *Handle {
	if s == nil {
		return nil
	}
	return s.Members[worker]
}
