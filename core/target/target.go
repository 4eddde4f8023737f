// Package target describes the environments a build can be emitted for.
//
// A Target is a closed variant: the three values defined here are the only
// ones, and every consumer switches on capabilities rather than probing
// feature strings. Adding an environment means adding a value and teaching
// Capabilities about it, nothing else.
package target

import (
	werrors "github.com/ThatTomPerson/webpack/core/errors"
)

// Kind enumerates the supported environments.
type Kind int

const (
	// KindWeb targets browsers: chunks load through injected script tags
	// and register through a global array push.
	KindWeb Kind = iota
	// KindNode targets Node-style hosts with a synchronous require.
	KindNode
	// KindHost targets an embedding host process that supplies its own
	// chunk transport through a registered hook.
	KindHost
)

// Target is one of the closed set of build environments.
type Target struct {
	kind Kind
}

// The three valid targets.
var (
	Web  = Target{kind: KindWeb}
	Node = Target{kind: KindNode}
	Host = Target{kind: KindHost}
)

// ByName resolves a target from its configuration name.
func ByName(name string) (Target, error) {
	switch name {
	case "web", "":
		return Web, nil
	case "node":
		return Node, nil
	case "host":
		return Host, nil
	default:
		return Target{}, werrors.NewValidation("target", "unknown target "+name)
	}
}

// Kind returns the variant.
func (t Target) Kind() Kind {
	return t.kind
}

func (t Target) String() string {
	switch t.kind {
	case KindNode:
		return "node"
	case KindHost:
		return "host"
	default:
		return "web"
	}
}

// ChunkLoading selects the transport the emitted runtime uses to fetch
// chunks on demand.
type ChunkLoading int

const (
	// LoadScript injects script tags and waits for the registration
	// callback.
	LoadScript ChunkLoading = iota
	// LoadRequire requires chunk files synchronously.
	LoadRequire
	// LoadHook delegates to a loader hook installed by the host.
	LoadHook
)

func (l ChunkLoading) String() string {
	switch l {
	case LoadRequire:
		return "require"
	case LoadHook:
		return "hook"
	default:
		return "script"
	}
}

// Capabilities is the full capability surface of a target. Consumers read
// fields; they never switch on the target name.
type Capabilities struct {
	// ChunkLoading is the on-demand chunk transport.
	ChunkLoading ChunkLoading
	// GlobalObject is the expression the runtime uses to reach the global
	// scope.
	GlobalObject string
	// Document reports whether a DOM document is available for script and
	// link injection.
	Document bool
	// ExternalsAsRequire reports whether external references resolve
	// through the host's require rather than a global variable.
	ExternalsAsRequire bool
	// LoadTimeout is the chunk load timeout in milliseconds, zero when the
	// transport cannot time out.
	LoadTimeout int
}

// Capabilities returns the capability surface for the target.
func (t Target) Capabilities() Capabilities {
	switch t.kind {
	case KindNode:
		return Capabilities{
			ChunkLoading:       LoadRequire,
			GlobalObject:       "global",
			Document:           false,
			ExternalsAsRequire: true,
			LoadTimeout:        0,
		}
	case KindHost:
		return Capabilities{
			ChunkLoading:       LoadHook,
			GlobalObject:       "globalThis",
			Document:           false,
			ExternalsAsRequire: false,
			LoadTimeout:        120000,
		}
	default:
		return Capabilities{
			ChunkLoading:       LoadScript,
			GlobalObject:       "self",
			Document:           true,
			ExternalsAsRequire: false,
			LoadTimeout:        120000,
		}
	}
}
