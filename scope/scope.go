// Package scope provides placement predicates. A Scope is an immutable value
// deciding which processors may run a task or hold a chunk; scopes compose by
// intersection and union and are evaluated against the currently known
// processor set.
package scope

import (
	"fmt"
	"strings"
)

// AnyWorker matches every worker id.
const AnyWorker = -1

// Processor describes a single execution slot: a worker id plus its
// processor kind (e.g. "cpu", "gpu") and free-form capability tags.
type Processor struct {
	Worker int
	Kind   string
	Tags   []string
}

func (p Processor) hasTag(tag string) bool {
	for _, candidate := range p.Tags {
		if candidate == tag {
			return true
		}
	}
	return false
}

type kind int

const (
	kindAny kind = iota
	kindMatch
	kindIntersect
	kindUnion
)

// Scope is an immutable placement predicate. The zero value admits every
// processor.
type Scope struct {
	kind   kind
	worker int
	proc   string
	tags   []string
	parts  []Scope
}

// Any returns the scope admitting every processor.
func Any() Scope { return Scope{kind: kindAny, worker: AnyWorker} }

// New builds a matching scope. worker restricts placement to one worker id
// (AnyWorker for no restriction), procKind to one processor kind ("" for no
// restriction) and tags require every listed tag to be present.
func New(worker int, procKind string, tags ...string) Scope {
	return Scope{kind: kindMatch, worker: worker, proc: procKind, tags: append([]string(nil), tags...)}
}

// Worker returns a scope admitting only the given worker.
func Worker(id int) Scope { return New(id, "") }

// Kind returns a scope admitting only processors of the given kind.
func Kind(procKind string) Scope { return New(AnyWorker, procKind) }

// Tagged returns a scope admitting only processors carrying all tags.
func Tagged(tags ...string) Scope { return New(AnyWorker, "", tags...) }

// Intersect yields the tightest scope admitting only processors both admit.
func Intersect(a, b Scope) Scope {
	if a.kind == kindAny {
		return b
	}
	if b.kind == kindAny {
		return a
	}
	return Scope{kind: kindIntersect, worker: AnyWorker, parts: []Scope{a, b}}
}

// Union yields the loosest scope admitting processors either admits.
func Union(a, b Scope) Scope {
	if a.kind == kindAny || b.kind == kindAny {
		return Any()
	}
	return Scope{kind: kindUnion, worker: AnyWorker, parts: []Scope{a, b}}
}

// Admits reports whether the scope accepts the processor.
func (s Scope) Admits(p Processor) bool {
	switch s.kind {
	case kindAny:
		return true
	case kindMatch:
		if s.worker != AnyWorker && s.worker != p.Worker {
			return false
		}
		if s.proc != "" && s.proc != p.Kind {
			return false
		}
		for _, tag := range s.tags {
			if !p.hasTag(tag) {
				return false
			}
		}
		return true
	case kindIntersect:
		for _, part := range s.parts {
			if !part.Admits(p) {
				return false
			}
		}
		return true
	case kindUnion:
		for _, part := range s.parts {
			if part.Admits(p) {
				return true
			}
		}
		return false
	}
	return false
}

// IsEmpty decides feasibility against the supplied processor set.
func (s Scope) IsEmpty(processors []Processor) bool {
	for _, p := range processors {
		if s.Admits(p) {
			return false
		}
	}
	return true
}

// Candidates returns the subset of processors the scope admits, preserving
// input order.
func (s Scope) Candidates(processors []Processor) []Processor {
	var out []Processor
	for _, p := range processors {
		if s.Admits(p) {
			out = append(out, p)
		}
	}
	return out
}

// String renders the scope for logs and error messages.
func (s Scope) String() string {
	switch s.kind {
	case kindAny:
		return "any"
	case kindMatch:
		var parts []string
		if s.worker != AnyWorker {
			parts = append(parts, fmt.Sprintf("worker=%d", s.worker))
		}
		if s.proc != "" {
			parts = append(parts, "kind="+s.proc)
		}
		if len(s.tags) > 0 {
			parts = append(parts, "tags="+strings.Join(s.tags, ","))
		}
		if len(parts) == 0 {
			return "any"
		}
		return strings.Join(parts, " ")
	case kindIntersect:
		return "(" + s.parts[0].String() + " & " + s.parts[1].String() + ")"
	case kindUnion:
		return "(" + s.parts[0].String() + " | " + s.parts[1].String() + ")"
	}
	return "?"
}
