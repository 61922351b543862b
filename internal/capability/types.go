// Package capability maps action names proposed by the reasoning backend to
// validated, side-effecting handlers.
//
// The backend's output is untrusted structured input: an action is executed
// only if its name was registered at startup and its decoded arguments satisfy
// the declared schema. Delivery context (the reply handle) is always injected
// by the caller and can never be supplied by decoded arguments.
package capability

import "context"

// Kind classifies a declared parameter value.
type Kind string

const (
	KindString     Kind = "string"
	KindNumber     Kind = "number"
	KindBool       Kind = "bool"
	KindStringList Kind = "string_list"
)

// Reserved argument names injected by dispatch. Both are overwritten
// unconditionally with caller-supplied values; declarations may not claim
// them, and decoded arguments can never smuggle their own.
const (
	// ReplyHandleKey carries the delivery handle.
	ReplyHandleKey = "reply_handle"

	// ScopeIDKey carries the session scope the request belongs to.
	ScopeIDKey = "scope_id"
)

// Param describes a single declared parameter.
type Param struct {
	Kind        Kind
	Required    bool
	Description string

	// NonEmpty rejects empty strings and empty lists even when the
	// argument is present. Quick-reply choices use this.
	NonEmpty bool
}

// HandlerFunc executes a capability with validated arguments.
// args always contains ReplyHandleKey with the caller-supplied handle.
// The returned string is a short human-readable outcome for logging.
type HandlerFunc func(ctx context.Context, args map[string]any) (string, error)

// Declaration is a named capability registered once at startup.
type Declaration struct {
	Name        string
	Description string
	Params      map[string]Param
	Handler     HandlerFunc
}

// Validate checks the declaration shape. Called at registration time so that
// schema defects surface at startup, not on the first hostile dispatch.
func (d *Declaration) Validate() error {
	if d.Name == "" {
		return ErrNameEmpty
	}
	if d.Handler == nil {
		return ErrHandlerNil
	}
	for name, p := range d.Params {
		if name == "" {
			return ErrParamNameEmpty
		}
		if name == ReplyHandleKey || name == ScopeIDKey {
			return ErrReservedParam
		}
		switch p.Kind {
		case KindString, KindNumber, KindBool, KindStringList:
		default:
			return ErrParamKindUnknown
		}
	}
	return nil
}

// Request is one action the coordinator wants executed. Name and Args come
// from the backend (or are synthesized); ReplyHandle always comes from the
// inbound event, never from decoded arguments.
type Request struct {
	ID          string
	Name        string
	Args        map[string]any
	ReplyHandle string
	ScopeID     string
}

// Status reports how a dispatch ended.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Result is the typed outcome of a dispatch. Errors never cross the dispatch
// boundary as Go errors; they are folded into an error-status result.
type Result struct {
	Status Status
	Detail string

	// Fallback is true when the original action was replaced by the
	// unknown-capability reply.
	Fallback bool
}

// OK reports whether the dispatch succeeded.
func (r Result) OK() bool { return r.Status == StatusOK }
