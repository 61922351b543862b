package capability

import "errors"

// Registry and dispatch errors.
var (
	// ErrNameEmpty is returned when a declaration has no name.
	ErrNameEmpty = errors.New("capability name cannot be empty")

	// ErrHandlerNil is returned when a declaration has no handler.
	ErrHandlerNil = errors.New("capability handler cannot be nil")

	// ErrParamNameEmpty is returned when a parameter is declared without a name.
	ErrParamNameEmpty = errors.New("parameter name cannot be empty")

	// ErrParamKindUnknown is returned when a parameter declares no valid kind.
	ErrParamKindUnknown = errors.New("parameter kind unknown")

	// ErrReservedParam is returned when a declaration claims the reply handle key.
	ErrReservedParam = errors.New("reply_handle is reserved and injected at dispatch")

	// ErrAlreadyRegistered is returned when registering a duplicate name.
	ErrAlreadyRegistered = errors.New("capability already registered")

	// ErrMissingRequiredArg is returned when a required argument is absent.
	ErrMissingRequiredArg = errors.New("missing required argument")

	// ErrInvalidArgType is returned when an argument has the wrong type.
	ErrInvalidArgType = errors.New("invalid argument type")

	// ErrEmptyArg is returned when a non-empty argument is present but empty.
	ErrEmptyArg = errors.New("argument must not be empty")
)
