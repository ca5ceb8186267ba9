package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestAppErrorMessage(t *testing.T) {
	cause := fmt.Errorf("disk full")
	err := Wrap(cause, CodeFileSystemError, "create screenshots dir").WithMetadata("path", "/tmp/x")

	msg := err.Error()
	for _, want := range []string{"[FILE_SYSTEM_ERROR]", "create screenshots dir", "path:/tmp/x", "caused by: disk full"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}
	if !stderrors.Is(err, cause) {
		t.Error("errors.Is should find the cause")
	}
}

func TestIsCodeThroughWrapping(t *testing.T) {
	inner := New(CodeNoDisplayAvailable, "display 3 not found")
	wrapped := fmt.Errorf("capture iteration: %w", inner)

	if !IsCode(wrapped, CodeNoDisplayAvailable) {
		t.Error("IsCode should see through fmt wrapping")
	}
	if IsCode(wrapped, CodeCaptureFailed) {
		t.Error("IsCode matched the wrong code")
	}
	if got := CodeOf(stderrors.New("plain")); got != CodeUnknown {
		t.Errorf("CodeOf(plain) = %v, want UNKNOWN", got)
	}
}

func TestGRPCCodeMapping(t *testing.T) {
	tests := []struct {
		code Code
		want codes.Code
	}{
		{CodeNoDisplayAvailable, codes.NotFound},
		{CodeCaptureFailed, codes.Unavailable},
		{CodeUnsupportedFormat, codes.Unimplemented},
		{CodeInvalidGeometry, codes.InvalidArgument},
		{CodeMissingOrInvalidSessionID, codes.InvalidArgument},
		{CodeNotConfigured, codes.FailedPrecondition},
		{Code(99), codes.Unknown},
	}
	for _, tt := range tests {
		if got := New(tt.code, "x").GRPCCode(); got != tt.want {
			t.Errorf("%v.GRPCCode() = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestGRPCRoundTrip(t *testing.T) {
	orig := New(CodeEncodingFailed, "jpeg encoder failed").WithMetadata("format", "jpeg")

	back := FromGRPCError(orig.GRPCStatus().Err())
	if back.Code != CodeEncodingFailed {
		t.Errorf("Code = %v, want ENCODING_FAILED", back.Code)
	}
	if back.Metadata["format"] != "jpeg" {
		t.Errorf("Metadata = %v, want format=jpeg", back.Metadata)
	}
}

func TestFromGRPCErrorFallback(t *testing.T) {
	err := status.Error(codes.Unavailable, "backend down")
	if got := FromGRPCError(err).Code; got != CodeCaptureFailed {
		t.Errorf("Code = %v, want CAPTURE_FAILED", got)
	}

	plain := FromGRPCError(stderrors.New("not grpc"))
	if plain.Code != CodeUnknown {
		t.Errorf("Code = %v, want UNKNOWN", plain.Code)
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(New(CodeCaptureFailed, "x")) {
		t.Error("capture failures are transient")
	}
	if IsRetryable(New(CodeInvalidGeometry, "x")) {
		t.Error("geometry errors are not transient")
	}
	if IsRetryable(stderrors.New("plain")) {
		t.Error("plain errors are not retryable")
	}
}
