package classerr

import (
	"errors"
	"testing"
)

func TestTaskErrorBasic(t *testing.T) {
	err := NewError(CategoryProtocol, "invalid depth").
		WithSeverity(SeverityFatal).
		WithContext("field", "depth").
		Build()

	if err.Category() != CategoryProtocol {
		t.Errorf("expected category %s, got %s", CategoryProtocol, err.Category())
	}
	if err.Message() != "invalid depth" {
		t.Errorf("unexpected message: %s", err.Message())
	}
	field, ok := err.Context().GetString("field")
	if !ok || field != "depth" {
		t.Errorf("expected context field=depth, got %v", field)
	}
}

func TestDefaultRetryabilityByCategory(t *testing.T) {
	cases := []struct {
		cat       TaskCategory
		retryable bool
	}{
		{CategoryNetwork, true},
		{CategoryTls, true},
		{CategoryVerify, true},
		{CategoryAuth, true},
		{CategoryProtocol, false},
		{CategoryCancel, false},
		{CategoryInternal, false},
	}
	for _, c := range cases {
		err := NewError(c.cat, "x").Build()
		if got := err.CanRetry(); got != c.retryable {
			t.Errorf("category %s: expected retryable=%v got %v", c.cat, c.retryable, got)
		}
	}
}

func TestWrapErrorPreservesCause(t *testing.T) {
	cause := errors.New("dial tcp: timeout")
	err := WrapError(cause, CategoryNetwork, "connect failed").Build()

	if !errors.Is(err, err) {
		t.Fatalf("expected Is to be reflexive")
	}
	if errors.Unwrap(err) != cause {
		t.Errorf("expected unwrap to return cause")
	}
}

func TestAuthErrorNotRetryableByUserAction(t *testing.T) {
	err := AuthError("invalid credentials").Build()
	if err.CanRetry() {
		t.Error("auth errors requiring user action should not be retried automatically")
	}
	if !IsClassified(err) {
		t.Error("expected classified error")
	}
}

func TestGetCategoryFallsBackToInternal(t *testing.T) {
	if GetCategory(errors.New("plain")) != CategoryInternal {
		t.Error("expected unclassified error to map to CategoryInternal")
	}
}
