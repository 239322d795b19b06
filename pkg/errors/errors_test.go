package errors

import (
	stdErrors "errors"
	"net/http"
	"testing"
)

func TestErrorIncludesInternal(t *testing.T) {
	internal := stdErrors.New("boom")
	err := Wrap(internal, "failed")

	if err.Error() != "failed: boom" {
		t.Fatalf("unexpected error string: %s", err.Error())
	}
}

func TestWithInternalCopies(t *testing.T) {
	base := New("TEST", "test", 400)
	with := base.WithInternal(stdErrors.New("oops"))

	if with == base {
		t.Fatal("expected WithInternal to return a copy")
	}

	if base.Internal != nil {
		t.Fatal("expected original error to remain unchanged")
	}

	if with.Internal == nil {
		t.Fatal("expected internal error to be set")
	}
}

func TestFromErrorPreservesAppError(t *testing.T) {
	wrapped := ErrConflict.WithInternal(stdErrors.New("row contention"))
	chained := stdErrors.Join(wrapped)

	resolved := FromError(chained)
	if resolved.Code != ErrConflict.Code {
		t.Fatalf("expected conflict code, got %s", resolved.Code)
	}
	if resolved.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resolved.StatusCode)
	}
}

func TestFromErrorDefaultsToInternal(t *testing.T) {
	resolved := FromError(stdErrors.New("plain"))
	if resolved.Code != ErrInternalServer.Code {
		t.Fatalf("expected internal server code, got %s", resolved.Code)
	}
}

func TestNewValidationCarriesMessage(t *testing.T) {
	err := NewValidation("device identifier is required")
	if err.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", err.StatusCode)
	}
	if err.Message != "device identifier is required" {
		t.Fatalf("unexpected message: %s", err.Message)
	}
}
