package capability

import (
	"context"
	"errors"
	"testing"
)

func noopHandler(ctx context.Context, args map[string]any) (string, error) {
	return "", nil
}

func TestNewRegistry(t *testing.T) {
	reg := NewRegistry(nil)
	if reg == nil {
		t.Fatal("NewRegistry returned nil")
	}
	if reg.Count() != 0 {
		t.Errorf("new registry should be empty, got %d capabilities", reg.Count())
	}
}

func TestRegisterAndGet(t *testing.T) {
	reg := NewRegistry(nil)

	decl := &Declaration{
		Name:        "reply_with_text",
		Description: "Reply with a plain text message",
		Params: map[string]Param{
			"text": {Kind: KindString, Required: true},
		},
		Handler: noopHandler,
	}

	if err := reg.Register(decl); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	got := reg.Get("reply_with_text")
	if got == nil {
		t.Fatal("Get returned nil for registered capability")
	}
	if got.Name != "reply_with_text" {
		t.Errorf("got name %q, want %q", got.Name, "reply_with_text")
	}
	if !reg.Has("reply_with_text") {
		t.Error("Has returned false for registered capability")
	}
	if reg.Has("search_restaurants") {
		t.Error("Has returned true for unregistered capability")
	}
}

func TestRegisterDuplicate(t *testing.T) {
	reg := NewRegistry(nil)

	decl := &Declaration{Name: "dupe", Handler: noopHandler}
	if err := reg.Register(decl); err != nil {
		t.Fatalf("first Register failed: %v", err)
	}

	err := reg.Register(decl)
	if !errors.Is(err, ErrAlreadyRegistered) {
		t.Fatalf("expected ErrAlreadyRegistered, got %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name    string
		decl    *Declaration
		wantErr error
	}{
		{
			name:    "empty name",
			decl:    &Declaration{Name: "", Handler: noopHandler},
			wantErr: ErrNameEmpty,
		},
		{
			name:    "nil handler",
			decl:    &Declaration{Name: "broken"},
			wantErr: ErrHandlerNil,
		},
		{
			name: "unknown param kind",
			decl: &Declaration{
				Name:    "broken",
				Params:  map[string]Param{"q": {Kind: "object"}},
				Handler: noopHandler,
			},
			wantErr: ErrParamKindUnknown,
		},
		{
			name: "reserved reply handle param",
			decl: &Declaration{
				Name:    "sneaky",
				Params:  map[string]Param{ReplyHandleKey: {Kind: KindString}},
				Handler: noopHandler,
			},
			wantErr: ErrReservedParam,
		},
		{
			name: "reserved scope id param",
			decl: &Declaration{
				Name:    "sneakier",
				Params:  map[string]Param{ScopeIDKey: {Kind: KindString}},
				Handler: noopHandler,
			},
			wantErr: ErrReservedParam,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := NewRegistry(nil)
			err := reg.Register(tt.decl)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNamesSorted(t *testing.T) {
	reg := NewRegistry(nil)
	for _, name := range []string{"search_restaurants", "make_final_decision", "reply_with_text"} {
		if err := reg.Register(&Declaration{Name: name, Handler: noopHandler}); err != nil {
			t.Fatalf("Register(%s) failed: %v", name, err)
		}
	}

	names := reg.Names()
	want := []string{"make_final_decision", "reply_with_text", "search_restaurants"}
	if len(names) != len(want) {
		t.Fatalf("got %d names, want %d", len(names), len(want))
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}
