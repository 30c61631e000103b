package ipc

import (
	"fmt"
	"testing"

	"github.com/pjbroadbent/layouts-service/internal/model"
	"github.com/pjbroadbent/layouts-service/internal/runtime"
	"github.com/pjbroadbent/layouts-service/internal/store"
)

func TestParseRequest(t *testing.T) {
	req, err := ParseRequest([]byte(`{"command":"UNDOCK","payload":{"window":{"uuid":"app","name":"w1"}}}` + "\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if req.Command != CommandUndock {
		t.Fatalf("unexpected command %q", req.Command)
	}
	if len(req.Payload) == 0 {
		t.Fatal("payload should be preserved")
	}

	if _, err := ParseRequest([]byte("not json")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestErrorCodeMapping(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{fmt.Errorf("wrap: %w", model.ErrNotFound), CodeNotFound},
		{fmt.Errorf("wrap: %w", model.ErrDisabled), CodeDisabled},
		{fmt.Errorf("wrap: %w", model.ErrInvalidState), CodeInvalidState},
		{fmt.Errorf("wrap: %w", store.ErrInvalidScope), CodeInvalidScope},
		{fmt.Errorf("wrap: %w", runtime.ErrTimeout), CodeTimeout},
		{fmt.Errorf("wrap: %w", runtime.ErrRuntimeFailure), CodeRuntimeFailure},
		{fmt.Errorf("something else"), CodeInternal},
	}
	for _, tt := range tests {
		if got := errorCode(tt.err); got != tt.want {
			t.Fatalf("errorCode(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
