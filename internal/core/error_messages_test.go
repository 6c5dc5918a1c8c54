package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{
			name:        "nil error returns empty",
			err:         nil,
			wantCode:    "",
			wantMessage: "",
		},
		{
			name:        "token refresh maps correctly",
			err:         errors.New("token refresh failed: HTTP 400: invalid_grant"),
			wantCode:    "AUTH001",
			wantMessage: "Could not refresh the access token",
		},
		{
			name: "unsupported collection maps correctly",
			err: &ValidationError{
				Message: "collections not available in the API: [widgets]; for the list of available collections see x",
			},
			wantCode:    "VAL001",
			wantMessage: "Some input tables target collections the API does not expose",
		},
		{
			name:        "unsupported attribute maps correctly",
			err:         &ValidationError{Collection: "accounts", Line: 3, Message: "unsupported attributes: [foo]"},
			wantCode:    "VAL002",
			wantMessage: "A data payload references attributes that do not exist",
		},
		{
			name:        "no input maps correctly",
			err:         ErrNoInputFiles,
			wantCode:    "VAL004",
			wantMessage: "No input tables were found",
		},
		{
			name:        "abort maps correctly through wrapping",
			err:         fmt.Errorf("run: %w", &AbortError{Collection: "accounts", Line: 2, Operation: OpUpsert, Label: "DATA_ERROR"}),
			wantCode:    "RUN001",
			wantMessage: "The run stopped at the first failed record",
		},
		{
			name:        "unknown error returns default",
			err:         errors.New("some random internal error"),
			wantCode:    "ERR000",
			wantMessage: "An unexpected error occurred",
		},
		{
			name:        "case insensitive matching",
			err:         errors.New("TOKEN REFRESH FAILED"),
			wantCode:    "AUTH001",
			wantMessage: "Could not refresh the access token",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.Message != tt.wantMessage {
				t.Errorf("MapError() message = %q, want %q", got.Message, tt.wantMessage)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	result := FormatUserError(ErrNoInputFiles)

	expected := "No input tables were found (Code: VAL004). Provide at least one input table"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}

	if got := FormatUserError(nil); got != "" {
		t.Errorf("FormatUserError(nil) = %q, want empty", got)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil error is not user facing", nil, false},
		{"known error is user facing", errors.New("token refresh failed"), true},
		{"unknown error is not user facing", errors.New("random internal error xyz"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsUserFacing(tt.err); got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}
