package errors

import (
	"errors"
	"os"
	"strings"
	"testing"
)

func TestCodedError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *CodedError
		expected string
	}{
		{
			name:     "error without cause",
			err:      New(CodeSessionNotOpen, "patcher/new received early"),
			expected: "session.not_open: patcher/new received early",
		},
		{
			name:     "error with cause",
			err:      Wrap(CodeBackendToolFailed, "patch tool --save failed", errors.New("exit status 1")),
			expected: "backend.tool_failed: patch tool --save failed (exit status 1)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestCodedError_Unwrap(t *testing.T) {
	cause := errors.New("original error")
	err := Wrap(CodeInternal, "wrapped", cause)

	if err.Unwrap() != cause {
		t.Error("Unwrap() should return the original cause")
	}

	err2 := New(CodeHomeNotFound, "no home")
	if err2.Unwrap() != nil {
		t.Error("Unwrap() should return nil when no cause")
	}
}

func TestGetCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"nil error", nil, ""},
		{"CodedError", HomeNotFound(), CodeHomeNotFound},
		{"wrapped CodedError", Wrap(CodeBackendToolFailed, "failed", errors.New("cause")), CodeBackendToolFailed},
		{"plain error", errors.New("some error"), CodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetCode(tt.err); got != tt.expected {
				t.Errorf("GetCode() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestGetMessage(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{"nil error", nil, ""},
		{"CodedError", New(CodeRPCInvalidMessage, "bad type tags"), "bad type tags"},
		{"plain error", errors.New("some error"), "some error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := GetMessage(tt.err); got != tt.expected {
				t.Errorf("GetMessage() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestToCodeAndMessage(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{"nil error", nil, "", ""},
		{"CodedError", AlreadyOpen("/tmp/sess1"), CodeSessionAlreadyOpen, "session already open at /tmp/sess1"},
		{"plain error", errors.New("some error"), CodeUnknown, "some error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, message := ToCodeAndMessage(tt.err)
			if code != tt.wantCode {
				t.Errorf("ToCodeAndMessage() code = %q, want %q", code, tt.wantCode)
			}
			if message != tt.wantMessage {
				t.Errorf("ToCodeAndMessage() message = %q, want %q", message, tt.wantMessage)
			}
		})
	}
}

func TestIsCode(t *testing.T) {
	err := HomeNotFound()

	if !IsCode(err, CodeHomeNotFound) {
		t.Error("IsCode() should return true for matching code")
	}
	if IsCode(err, CodeRPCServerOpenFailed) {
		t.Error("IsCode() should return false for non-matching code")
	}
	if IsCode(nil, CodeHomeNotFound) {
		t.Error("IsCode() should return false for nil error")
	}
}

func TestErrorConstructors(t *testing.T) {
	t.Run("RPCServerOpenFailure", func(t *testing.T) {
		cause := errors.New("address already in use")
		err := RPCServerOpenFailure(5, cause)
		if !IsCode(err, CodeRPCServerOpenFailed) {
			t.Errorf("code = %q, want %q", GetCode(err), CodeRPCServerOpenFailed)
		}
		if err.Message != "could not open OSC listener after 5 attempts" {
			t.Errorf("message = %q", err.Message)
		}
		if err.Cause != cause {
			t.Error("RPCServerOpenFailure() should preserve cause")
		}
	})

	t.Run("FileOpenFailure", func(t *testing.T) {
		err := FileOpenFailure("/tmp/x/config.cfg", os.ErrNotExist)
		if !IsCode(err, CodeConfigFileOpenFailed) {
			t.Errorf("code = %q, want %q", GetCode(err), CodeConfigFileOpenFailed)
		}
		if !errors.Is(err, os.ErrNotExist) {
			t.Error("FileOpenFailure() should unwrap to its cause")
		}
	})

	t.Run("DirectoryCreationFailure", func(t *testing.T) {
		err := DirectoryCreationFailure("/tmp/x/patchbays", os.ErrPermission)
		if !IsCode(err, CodeConfigDirCreateFailed) {
			t.Errorf("code = %q, want %q", GetCode(err), CodeConfigDirCreateFailed)
		}
		if !strings.Contains(err.Message, "/tmp/x/patchbays") {
			t.Errorf("message = %q, want path", err.Message)
		}
	})

	t.Run("AnnounceFailed", func(t *testing.T) {
		err := AnnounceFailed(-4, "incompatible API version")
		if err.Message != "announce rejected (-4): incompatible API version" {
			t.Errorf("message = %q", err.Message)
		}
	})

	t.Run("ToolFailed", func(t *testing.T) {
		err := ToolFailed("load", errors.New("exit status 2"))
		if err.Message != "patch tool --load failed" {
			t.Errorf("message = %q", err.Message)
		}
	})

	t.Run("QueryFailed", func(t *testing.T) {
		cause := errors.New("database is closed")
		err := QueryFailed("count history", cause)
		if !IsCode(err, CodeStorageQueryFailed) {
			t.Errorf("code = %q, want %q", GetCode(err), CodeStorageQueryFailed)
		}
		if !errors.Is(err, cause) {
			t.Error("QueryFailed() should unwrap to its cause")
		}
	})

	t.Run("InvalidPatchName", func(t *testing.T) {
		err := InvalidPatchName("../etc")
		if !IsCode(err, CodePatchInvalidName) {
			t.Errorf("code = %q, want %q", GetCode(err), CodePatchInvalidName)
		}
	})
}

func TestErrorsAs(t *testing.T) {
	cause := errors.New("original")
	coded := Wrap(CodeBackendToolFailed, "wrapped", cause)
	wrapped := Wrap(CodeInternal, "double wrapped", coded)

	var target *CodedError
	if !errors.As(wrapped, &target) {
		t.Error("errors.As should find CodedError in chain")
	}
	if target.Code != CodeInternal {
		t.Errorf("errors.As should find outermost CodedError, got code %q", target.Code)
	}
	if !errors.Is(wrapped, cause) {
		t.Error("errors.Is should reach the innermost cause")
	}
}

func TestErrorCodes(t *testing.T) {
	codes := []string{
		CodeHomeNotFound,
		CodeRPCServerOpenFailed,
		CodeRPCInvalidMessage,
		CodeRPCHandlerMissing,
		CodeRPCSendFailed,
		CodeRPCRateLimited,
		CodeConfigFileOpenFailed,
		CodeConfigDirCreateFailed,
		CodeSettingsInvalid,
		CodeSessionURLInvalid,
		CodeSessionAnnounceFailed,
		CodeSessionAlreadyOpen,
		CodeSessionNotOpen,
		CodeBackendToolFailed,
		CodeBackendSeedFailed,
		CodePatchInvalidName,
		CodeStorageOpenFailed,
		CodeStorageSaveFailed,
		CodeStorageQueryFailed,
		CodeUnknown,
		CodeInternal,
	}

	seen := make(map[string]bool)
	for _, code := range codes {
		if code == "" {
			t.Error("error code should not be empty")
			continue
		}
		if !strings.Contains(code, ".") {
			t.Errorf("error code %q should be in format {domain}.{error}", code)
		}
		if seen[code] {
			t.Errorf("error code %q is duplicated", code)
		}
		seen[code] = true
	}
}
