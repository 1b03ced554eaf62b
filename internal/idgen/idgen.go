package idgen

import "github.com/google/uuid"

// NewFunc produces globally unique identifiers. Override in tests for
// deterministic ids.
var NewFunc = func() string { return uuid.New().String() }

// New returns a new globally unique identifier.
func New() string { return NewFunc() }
