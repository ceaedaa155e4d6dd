// File: api/types.go
// Author: momentics <momentics@gmail.com>
//
// Shared API-level type declarations and constants.

package api

// State is the lifecycle state of one Connection.
type State int32

const (
	StateUninit State = iota
	StateReady
	StateStart
	StateStop
	StateDisconnect
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninit:
		return "uninit"
	case StateReady:
		return "ready"
	case StateStart:
		return "start"
	case StateStop:
		return "stop"
	case StateDisconnect:
		return "disconnect"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// HasBuffers reports whether read/write buffers exist in this state.
func (s State) HasBuffers() bool {
	switch s {
	case StateReady, StateStart, StateStop, StateDisconnect:
		return true
	}
	return false
}

// Role tags what a Connection is used for.
type Role int

const (
	RoleClient Role = iota
	RoleListener
	RoleSession
)

func (r Role) String() string {
	switch r {
	case RoleClient:
		return "client"
	case RoleListener:
		return "server-listener"
	case RoleSession:
		return "server-session"
	default:
		return "unknown"
	}
}

// Backend selects the readiness multiplexer implementation.
type Backend int

const (
	BackendPoll Backend = iota
	BackendSelect
	BackendEventLoop
)

func (b Backend) String() string {
	switch b {
	case BackendSelect:
		return "select"
	case BackendPoll:
		return "poll"
	case BackendEventLoop:
		return "eventloop"
	default:
		return "unknown"
	}
}

// ParseBackend maps a configuration name onto a Backend.
func ParseBackend(name string) (Backend, error) {
	switch name {
	case "", "poll":
		return BackendPoll, nil
	case "select":
		return BackendSelect, nil
	case "eventloop", "epoll":
		return BackendEventLoop, nil
	}
	return 0, NewError(ErrCodeConfiguration, "unknown backend").WithContext("backend", name)
}

// Direction is the readiness condition a caller waits for.
type Direction uint8

const (
	Readable Direction = 1 << iota
	Writable
	// ErrorCondition is reported by backends alongside readiness; callers
	// never wait on it alone.
	ErrorCondition

	// ConnectCompletion is satisfied by writability or an error condition.
	ConnectCompletion = Writable | ErrorCondition
)

func (d Direction) String() string {
	switch d {
	case Readable:
		return "readable"
	case Writable:
		return "writable"
	case ConnectCompletion:
		return "connect"
	case ErrorCondition:
		return "error"
	}
	return "mixed"
}
