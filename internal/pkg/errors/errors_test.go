package errors

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	err := New(CodeFailedPrecond, "inbox missing")

	if err.Code != CodeFailedPrecond {
		t.Errorf("expected code=%s, got %s", CodeFailedPrecond, err.Code)
	}
	if err.Message != "inbox missing" {
		t.Errorf("expected message='inbox missing', got %s", err.Message)
	}
	if len(err.Stack) == 0 {
		t.Error("expected stack trace to be captured")
	}
}

func TestErrorString(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name:     "simple error",
			err:      New(CodeValidation, "invalid worker id"),
			contains: []string{"VALIDATION_ERROR", "invalid worker id"},
		},
		{
			name:     "error with op",
			err:      &Error{Code: CodeIO, Message: "copy failed", Op: "dispatch.video"},
			contains: []string{"dispatch.video: ", "[IO_FAILURE]", "copy failed"},
		},
		{
			name:     "error with underlying",
			err:      &Error{Code: CodeIO, Message: "write failed", Err: fs.ErrPermission},
			contains: []string{"write failed: permission denied"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			str := tt.err.Error()
			for _, c := range tt.contains {
				if !strings.Contains(str, c) {
					t.Errorf("expected error string to contain %q, got: %s", c, str)
				}
			}
		})
	}
}

func TestWrap(t *testing.T) {
	original := fmt.Errorf("disk full")
	wrapped := Wrap(original, "dispatch.image", "write failed")

	if wrapped.Code != CodeInternal {
		t.Errorf("expected code=%s, got %s", CodeInternal, wrapped.Code)
	}
	if wrapped.Op != "dispatch.image" {
		t.Errorf("expected op='dispatch.image', got %s", wrapped.Op)
	}
	if errors.Unwrap(wrapped) != original {
		t.Error("Unwrap should return original error")
	}
	if Wrap(nil, "op", "message") != nil {
		t.Error("Wrap(nil) should return nil")
	}
	if Wrapf(nil, "op", "message %d", 1) != nil {
		t.Error("Wrapf(nil) should return nil")
	}

	formatted := Wrapf(original, "ledger.record", "insert dispatch %s", "dsp_1")
	if formatted.Message != "insert dispatch dsp_1" || errors.Unwrap(formatted) != original {
		t.Errorf("unexpected Wrapf result %+v", formatted)
	}
	if len(formatted.Stack) == 0 {
		t.Error("Wrapf should capture a stack")
	}
}

func TestWrapInheritsCodeAndCopiesFields(t *testing.T) {
	inner := New(CodeFailedPrecond, "inbox missing").WithField("worker_id", "w1")
	outer := Wrap(inner, "operator.image", "dispatch failed").WithField("extra", true)

	if outer.Code != CodeFailedPrecond {
		t.Errorf("expected inherited code, got %s", outer.Code)
	}
	if outer.Fields["worker_id"] != "w1" {
		t.Errorf("expected inherited field, got %v", outer.Fields)
	}
	if _, leaked := inner.Fields["extra"]; leaked {
		t.Error("fields added to the wrapper must not leak into the inner error")
	}
}

func TestWrapWithCode(t *testing.T) {
	wrapped := WrapWithCode(fs.ErrNotExist, CodeIO, "dispatch.video", "copy failed")
	if wrapped.Code != CodeIO {
		t.Errorf("expected code=%s, got %s", CodeIO, wrapped.Code)
	}
	if !errors.Is(wrapped, fs.ErrNotExist) {
		t.Error("expected wrapped sentinel to stay reachable")
	}
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code   Code
		status int
	}{
		{CodeValidation, 400},
		{CodeBadRequest, 400},
		{CodeNotFound, 404},
		{CodeConflict, 409},
		{CodeFailedPrecond, 412},
		{CodeSerialization, 422},
		{CodeInternal, 500},
		{CodeIO, 500},
		{CodeUnavailable, 503},
		{CodeTimeout, 504},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			if got := New(tt.code, "test").HTTPStatus(); got != tt.status {
				t.Errorf("expected status=%d, got %d", tt.status, got)
			}
		})
	}
}

func TestConstructors(t *testing.T) {
	nf := NotFound("image", "take1.png")
	if nf.Code != CodeNotFound || nf.Fields["id"] != "take1.png" {
		t.Errorf("unexpected NotFound: %+v", nf)
	}
	vf := ValidationField("worker_id", "must be a single path segment")
	if !IsValidation(vf) || vf.Fields["field"] != "worker_id" {
		t.Errorf("unexpected ValidationField: %+v", vf)
	}
	un := Unavailable("ledger")
	if un.Code != CodeUnavailable || un.Fields["service"] != "ledger" {
		t.Errorf("unexpected Unavailable: %+v", un)
	}
	if Newf(CodeIO, "copy %s", "a.png").Message != "copy a.png" {
		t.Error("Newf should format the message")
	}
}

func TestGetters(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(CodeNotFound, "gone").WithField("kind", "X"))

	if GetCode(err) != CodeNotFound {
		t.Errorf("expected code=%s, got %s", CodeNotFound, GetCode(err))
	}
	if !IsNotFound(err) {
		t.Error("expected IsNotFound through a wrapped chain")
	}
	if GetHTTPStatus(err) != 404 {
		t.Errorf("expected 404, got %d", GetHTTPStatus(err))
	}
	if v, ok := GetField(err, "kind"); !ok || v != "X" {
		t.Errorf("expected kind field, got %v %v", v, ok)
	}

	std := fmt.Errorf("standard")
	if GetCode(std) != CodeInternal || GetHTTPStatus(std) != 500 || GetFields(std) != nil {
		t.Error("standard errors should map to internal/500/no fields")
	}
	if _, ok := GetField(std, "kind"); ok {
		t.Error("standard errors have no fields")
	}
}

func TestStackTrace(t *testing.T) {
	stack := New(CodeInternal, "test error").StackTrace()
	if !strings.Contains(stack, "errors_test.go:") {
		t.Errorf("expected stack trace to reference the test file, got: %s", stack)
	}
}

func TestErrorIsMatchesByCode(t *testing.T) {
	a := New(CodeIO, "a")
	b := New(CodeIO, "b")
	c := New(CodeValidation, "c")

	if !errors.Is(a, b) {
		t.Error("expected errors with same code to match")
	}
	if errors.Is(a, c) {
		t.Error("expected errors with different codes not to match")
	}

	var target *Error
	if !As(fmt.Errorf("w: %w", a), &target) || target != a {
		t.Error("expected As to find the error in the chain")
	}
	if !Is(fmt.Errorf("w: %w", a), a) {
		t.Error("expected Is to match")
	}
}
