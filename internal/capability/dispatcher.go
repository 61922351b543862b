package capability

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// FallbackReplyName is the capability used when a proposed action cannot be
// executed. It is expected to be a plain text reply registered at startup.
const FallbackReplyName = "reply_with_text"

const (
	unknownCapabilityText = "すみません、その操作はわかりませんでした。もう一度お願いします。"
	rejectedActionText    = "すみません、うまく処理できませんでした。もう一度お願いします。"
)

// Dispatcher validates and executes capability requests. It never panics and
// never returns a Go error: every outcome, including a hostile or malformed
// proposal from the backend, folds into a Result.
type Dispatcher struct {
	registry *Registry
	logger   *zap.Logger
}

// NewDispatcher creates a dispatcher over the given registry.
func NewDispatcher(registry *Registry, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{registry: registry, logger: logger}
}

// Dispatch runs one action request end to end:
//
//  1. Unregistered name: the request is replaced by the fallback text reply.
//     No handler lookup by untrusted name ever executes anything that was not
//     registered at startup.
//  2. Arguments are validated against the declared schema. On violation the
//     handler is not invoked at all; the user gets the fallback reply and the
//     caller gets an error result.
//  3. The reply handle is injected under the reserved key, overwriting any
//     value the decoded arguments carried there.
//  4. The handler runs synchronously; panics are recovered into an error
//     result so one bad action cannot take down the conversation loop.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) Result {
	decl := d.registry.Get(req.Name)
	if decl == nil {
		d.logger.Warn("unknown capability proposed",
			zap.String("request_id", req.ID),
			zap.String("name", req.Name))
		res := d.fallbackReply(ctx, req, unknownCapabilityText)
		res.Status = StatusOK
		res.Detail = fmt.Sprintf("unknown capability %q", req.Name)
		return res
	}

	if err := validateArgs(decl, req.Args); err != nil {
		d.logger.Warn("capability arguments rejected",
			zap.String("request_id", req.ID),
			zap.String("name", req.Name),
			zap.Error(err))
		res := d.fallbackReply(ctx, req, rejectedActionText)
		res.Status = StatusError
		res.Detail = fmt.Sprintf("%s: %v", req.Name, err)
		return res
	}

	return d.invoke(ctx, decl, req)
}

// fallbackReply delivers a canned text reply in place of the original action.
// Best effort: if the fallback capability itself is not registered the result
// carries only the detail.
func (d *Dispatcher) fallbackReply(ctx context.Context, req Request, text string) Result {
	decl := d.registry.Get(FallbackReplyName)
	if decl == nil {
		return Result{Fallback: true}
	}
	res := d.invoke(ctx, decl, Request{
		ID:          req.ID,
		Name:        FallbackReplyName,
		Args:        map[string]any{"text": text},
		ReplyHandle: req.ReplyHandle,
		ScopeID:     req.ScopeID,
	})
	res.Fallback = true
	return res
}

// invoke injects the reply handle and runs the handler with panic isolation.
func (d *Dispatcher) invoke(ctx context.Context, decl *Declaration, req Request) (res Result) {
	args := make(map[string]any, len(req.Args)+2)
	for k, v := range req.Args {
		args[k] = v
	}
	// Hard isolation rule: the executed handle and scope are always the
	// caller's, regardless of what the decoded arguments contained under
	// these keys.
	args[ReplyHandleKey] = req.ReplyHandle
	args[ScopeIDKey] = req.ScopeID

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("capability handler panicked",
				zap.String("request_id", req.ID),
				zap.String("name", decl.Name),
				zap.Any("panic", r))
			res = Result{Status: StatusError, Detail: fmt.Sprintf("%s: handler panic: %v", decl.Name, r)}
		}
	}()

	start := time.Now()
	detail, err := decl.Handler(ctx, args)
	elapsed := time.Since(start)

	if err != nil {
		d.logger.Error("capability handler failed",
			zap.String("request_id", req.ID),
			zap.String("name", decl.Name),
			zap.Duration("elapsed", elapsed),
			zap.Error(err))
		return Result{Status: StatusError, Detail: fmt.Sprintf("%s: %v", decl.Name, err)}
	}

	d.logger.Debug("capability executed",
		zap.String("request_id", req.ID),
		zap.String("name", decl.Name),
		zap.Duration("elapsed", elapsed))
	return Result{Status: StatusOK, Detail: detail}
}

// validateArgs checks decoded arguments against the declared schema.
// Extra undeclared arguments are tolerated; declared ones must match.
func validateArgs(decl *Declaration, args map[string]any) error {
	for name, p := range decl.Params {
		v, ok := args[name]
		if !ok {
			if p.Required {
				return fmt.Errorf("%w: %s", ErrMissingRequiredArg, name)
			}
			continue
		}
		if err := checkKind(name, p, v); err != nil {
			return err
		}
	}
	return nil
}

func checkKind(name string, p Param, v any) error {
	switch p.Kind {
	case KindString:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("%w: %s must be a string", ErrInvalidArgType, name)
		}
		if p.NonEmpty && s == "" {
			return fmt.Errorf("%w: %s", ErrEmptyArg, name)
		}
	case KindNumber:
		switch v.(type) {
		case float64, float32, int, int32, int64:
		default:
			return fmt.Errorf("%w: %s must be a number", ErrInvalidArgType, name)
		}
	case KindBool:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("%w: %s must be a bool", ErrInvalidArgType, name)
		}
	case KindStringList:
		items, err := StringList(v)
		if err != nil {
			return fmt.Errorf("%w: %s must be a list of strings", ErrInvalidArgType, name)
		}
		if p.NonEmpty && len(items) == 0 {
			return fmt.Errorf("%w: %s", ErrEmptyArg, name)
		}
	}
	return nil
}

// StringList coerces a decoded argument into []string. Backend decoding
// yields []any; handlers and validation share this conversion.
func StringList(v any) ([]string, error) {
	switch t := v.(type) {
	case []string:
		return t, nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, ErrInvalidArgType
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, ErrInvalidArgType
	}
}
