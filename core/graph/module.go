// Package graph builds and queries the module dependency graph.
//
// A Module is a unit of source code with a stable string identity. Typed
// dependency edges connect modules: synchronous edges keep the target in the
// same chunk, asynchronous edges mark a code-split boundary, and weak edges
// record an expected module without forcing it into the build. The graph is
// populated during analysis, frozen before partitioning, and never mutated
// afterwards; identifier assignment lives in a separate table.
package graph

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Identity is the stable key of a module: the resolved absolute path plus
// any loader chain, joined with "!". Two distinct live modules never share
// an identity.
type Identity string

// DepKind classifies a dependency edge.
type DepKind int

const (
	// KindSync is a synchronous edge: the target belongs in the same chunk.
	KindSync DepKind = iota
	// KindAsync is an asynchronous edge: the target starts a new chunk group.
	KindAsync
	// KindWeak is a weak edge: the target is referenced but not required to
	// be bundled, and is excluded from reachability.
	KindWeak
)

func (k DepKind) String() string {
	switch k {
	case KindSync:
		return "sync"
	case KindAsync:
		return "async"
	case KindWeak:
		return "weak"
	default:
		return "unknown"
	}
}

// ExternalRef marks a request that is satisfied by the host environment
// instead of a bundled module.
type ExternalRef struct {
	// Name is the identifier the host resolves, e.g. a global variable or a
	// native require argument.
	Name string `json:"name"`
	// Kind selects how the runtime reaches the external: "global" or
	// "require".
	Kind string `json:"kind"`
}

// Dependency is an outgoing edge of a module. Edge order is the order
// dependencies were discovered in the source and drives traversal order.
type Dependency struct {
	// Request is the raw specifier as written in the source.
	Request string
	// Target is the identity of the resolved module. Empty when the
	// dependency is external.
	Target Identity
	// External is set instead of Target for externalized requests.
	External *ExternalRef
	// Kind classifies the edge.
	Kind DepKind
	// ChunkName optionally names the chunk group an async edge opens.
	ChunkName string
}

// Exports describes the export surface of a module: either an explicit
// ordered name list or an unknown marker for unanalyzable modules.
type Exports struct {
	Known bool
	Names []string
}

// UnknownExports returns the unknown-surface marker.
func UnknownExports() Exports {
	return Exports{}
}

// NamedExports returns an explicit export surface with the given order.
func NamedExports(names ...string) Exports {
	return Exports{Known: true, Names: names}
}

// BuildMeta carries per-module flags consumed downstream.
type BuildMeta struct {
	// ESM marks a module whose exports follow harmony semantics. It selects
	// the interop decorator and tags the exports object at runtime.
	ESM bool `json:"esm"`
	// SideEffectFree is recorded from package metadata for future use.
	SideEffectFree bool `json:"sideEffectFree,omitempty"`
}

// Module is a node of the dependency graph.
type Module struct {
	Identity     Identity
	Dependencies []Dependency
	Exports      Exports
	BuildMeta    BuildMeta

	// Source is the compiled module body.
	Source []byte
	// ContentHash is the BLAKE3 digest of Source, hex encoded.
	ContentHash string
}

// NewModule creates a module for the given identity and source, computing
// the content hash. Exports default to unknown.
func NewModule(identity Identity, source []byte) *Module {
	sum := blake3.Sum256(source)
	return &Module{
		Identity:    identity,
		Source:      source,
		ContentHash: hex.EncodeToString(sum[:]),
		Exports:     UnknownExports(),
	}
}

// Size returns the source size in bytes.
func (m *Module) Size() int {
	return len(m.Source)
}
