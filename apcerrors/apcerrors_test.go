package apcerrors

import (
	"errors"
	"testing"
)

func TestIsAndKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		kind Kind
	}{
		{"module not found", ModuleNotFound("math.add"), KindModuleNotFound},
		{"acl denied", ACLDenied("@external", "secret.data"), KindACLDenied},
		{"wrapped", Wrap(KindSchemaParseError, "bad yaml", errors.New("eof")), KindSchemaParseError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if !Is(tc.err, tc.kind) {
				t.Fatalf("Is(%v, %s) = false, want true", tc.err, tc.kind)
			}
			if got := KindOf(tc.err); got != tc.kind {
				t.Fatalf("KindOf() = %s, want %s", got, tc.kind)
			}
		})
	}

	if Is(errors.New("plain"), KindModuleNotFound) {
		t.Fatalf("Is() on a plain error should be false")
	}
	if KindOf(errors.New("plain")) != "" {
		t.Fatalf("KindOf() on a plain error should be empty")
	}
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	wrapped := Wrap(KindModuleLoadError, "load failed", cause)

	if !errors.Is(wrapped, cause) {
		t.Fatalf("errors.Is(wrapped, cause) = false, want true")
	}
}

func TestWithDetail(t *testing.T) {
	err := New(KindInvalidInput, "bad id").WithDetail("module_id", "").WithDetail("reason", "empty")
	if err.Details["module_id"] != "" || err.Details["reason"] != "empty" {
		t.Fatalf("unexpected details: %+v", err.Details)
	}
}

func TestCircularDependencyPath(t *testing.T) {
	err := CircularDependency([]string{"a", "b", "a"})
	path, ok := err.Details["path"].([]string)
	if !ok || len(path) != 3 || path[0] != path[len(path)-1] {
		t.Fatalf("unexpected path detail: %+v", err.Details["path"])
	}
}
