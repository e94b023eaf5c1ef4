package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestError_Error(t *testing.T) {
	err := &Error{
		Type:    ErrChannel,
		Message: "read failed",
	}

	expected := "channel_error: read failed"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestError_WithCode(t *testing.T) {
	err := NewInvalidStateError("a session is already active", "session_active")

	expected := "invalid_state: a session is already active (code: session_active)"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewDeviceUnavailableError_Unwrap(t *testing.T) {
	cause := errors.New("permission denied")
	err := NewDeviceUnavailableError("microphone unavailable", cause)
	if !errors.Is(err, cause) {
		t.Fatal("expected errors.Is to reach the cause")
	}
	if !err.UserVisible() {
		t.Fatal("device errors must be user visible")
	}
}

func TestTypeOf_Wrapped(t *testing.T) {
	err := fmt.Errorf("start: %w", NewChannelError("dial failed", nil))
	if !IsChannelError(err) {
		t.Fatalf("IsChannelError(%v) = false", err)
	}
	if IsDeviceUnavailable(err) {
		t.Fatal("unexpected device classification")
	}
	if got := TypeOf(errors.New("plain")); got != "" {
		t.Fatalf("TypeOf(plain) = %q, want empty", got)
	}
}

func TestUserVisible(t *testing.T) {
	tests := []struct {
		err  *Error
		want bool
	}{
		{NewChannelError("x", nil), true},
		{NewToolCallMalformedError("addNote", "missing tip"), false},
		{NewFinalizeFailedError(errors.New("boom")), false},
		{NewPersistenceFailedError("save", errors.New("disk full")), false},
	}
	for _, tt := range tests {
		if got := tt.err.UserVisible(); got != tt.want {
			t.Errorf("%s.UserVisible() = %v, want %v", tt.err.Type, got, tt.want)
		}
	}
}

func TestNewPersistenceFailedError(t *testing.T) {
	cause := errors.New("disk full")
	err := NewPersistenceFailedError("save", cause)
	if err.Code != "save" {
		t.Errorf("Code = %q, want save", err.Code)
	}
	if !errors.Is(err, cause) {
		t.Error("expected cause to unwrap")
	}
}
