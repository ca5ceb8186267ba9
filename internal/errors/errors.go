// Package errors provides the capture error taxonomy and its mapping onto
// gRPC status codes. Every failure that leaves a component boundary is an
// *AppError carrying one of the codes below.
package errors

import (
	stderrors "errors"
	"fmt"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/anypb"
)

// Domain is the ErrorInfo domain attached to gRPC statuses.
const Domain = "shadowshot"

// Code identifies a class of failure.
type Code int32

const (
	CodeUnknown Code = iota
	CodeInternal
	CodeInvalidArgument
	CodeNotConfigured
	CodeNoDisplayAvailable
	CodeCaptureFailed
	CodeInvalidImageProperties
	CodeUnsupportedFormat
	CodeEncodingFailed
	CodeFileSystemError
	CodeInvalidGeometry
	CodeMissingOrInvalidSessionID
)

var codeNames = map[Code]string{
	CodeUnknown:                   "UNKNOWN",
	CodeInternal:                  "INTERNAL",
	CodeInvalidArgument:           "INVALID_ARGUMENT",
	CodeNotConfigured:             "NOT_CONFIGURED",
	CodeNoDisplayAvailable:        "NO_DISPLAY_AVAILABLE",
	CodeCaptureFailed:             "CAPTURE_FAILED",
	CodeInvalidImageProperties:    "INVALID_IMAGE_PROPERTIES",
	CodeUnsupportedFormat:         "UNSUPPORTED_FORMAT",
	CodeEncodingFailed:            "ENCODING_FAILED",
	CodeFileSystemError:           "FILE_SYSTEM_ERROR",
	CodeInvalidGeometry:           "INVALID_GEOMETRY",
	CodeMissingOrInvalidSessionID: "MISSING_OR_INVALID_SESSION_ID",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return codeNames[CodeUnknown]
}

// parseCode is the inverse of String.
func parseCode(s string) Code {
	for c, name := range codeNames {
		if name == s {
			return c
		}
	}
	return CodeUnknown
}

// grpcCodeMap maps error codes to gRPC status codes.
var grpcCodeMap = map[Code]codes.Code{
	CodeUnknown:                   codes.Unknown,
	CodeInternal:                  codes.Internal,
	CodeInvalidArgument:           codes.InvalidArgument,
	CodeNotConfigured:             codes.FailedPrecondition,
	CodeNoDisplayAvailable:        codes.NotFound,
	CodeCaptureFailed:             codes.Unavailable,
	CodeInvalidImageProperties:    codes.DataLoss,
	CodeUnsupportedFormat:         codes.Unimplemented,
	CodeEncodingFailed:            codes.Internal,
	CodeFileSystemError:           codes.Internal,
	CodeInvalidGeometry:           codes.InvalidArgument,
	CodeMissingOrInvalidSessionID: codes.InvalidArgument,
}

// AppError is the base error type with structured error code and metadata.
type AppError struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(" caused by: %v", e.Cause)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *AppError) Unwrap() error { return e.Cause }

// GRPCCode returns the corresponding gRPC status code.
func (e *AppError) GRPCCode() codes.Code {
	if c, ok := grpcCodeMap[e.Code]; ok {
		return c
	}
	return codes.Unknown
}

// ToProto converts to a google.rpc.ErrorInfo message.
func (e *AppError) ToProto() *errdetails.ErrorInfo {
	info := &errdetails.ErrorInfo{Reason: e.Code.String(), Domain: Domain}
	if len(e.Metadata) > 0 {
		info.Metadata = e.Metadata
	}
	return info
}

// GRPCStatus returns a gRPC status with the ErrorInfo attached.
func (e *AppError) GRPCStatus() *status.Status {
	st := status.New(e.GRPCCode(), e.Error())
	detail, err := anypb.New(e.ToProto())
	if err != nil {
		return st
	}
	if withDetail, err := st.WithDetails(detail); err == nil {
		return withDetail
	}
	return st
}

// New creates a new AppError with the given code and message.
func New(code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Newf creates a new AppError with formatted message.
func Newf(code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with formatted message.
func Wrapf(err error, code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// WithMetadata adds metadata to an AppError.
func (e *AppError) WithMetadata(key, value string) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// FromGRPCError extracts an AppError from a gRPC error if present.
func FromGRPCError(err error) *AppError {
	st, ok := status.FromError(err)
	if !ok {
		return &AppError{Code: CodeUnknown, Message: err.Error(), Cause: err}
	}

	for _, detail := range st.Details() {
		if a, ok := detail.(*anypb.Any); ok {
			var info errdetails.ErrorInfo
			if err := a.UnmarshalTo(&info); err == nil && info.GetDomain() == Domain {
				return &AppError{Code: parseCode(info.GetReason()), Message: st.Message(), Metadata: info.GetMetadata()}
			}
		}
		if info, ok := detail.(*errdetails.ErrorInfo); ok && info.GetDomain() == Domain {
			return &AppError{Code: parseCode(info.GetReason()), Message: st.Message(), Metadata: info.GetMetadata()}
		}
	}

	return &AppError{Code: grpcToCode(st.Code()), Message: st.Message()}
}

// grpcToCode maps gRPC codes back to error codes (best effort).
func grpcToCode(c codes.Code) Code {
	switch c {
	case codes.InvalidArgument:
		return CodeInvalidArgument
	case codes.NotFound:
		return CodeNoDisplayAvailable
	case codes.Unavailable:
		return CodeCaptureFailed
	case codes.Unimplemented:
		return CodeUnsupportedFormat
	case codes.FailedPrecondition:
		return CodeNotConfigured
	case codes.Internal:
		return CodeInternal
	default:
		return CodeUnknown
	}
}

// CodeOf returns the code of the first AppError in err's chain.
func CodeOf(err error) Code {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return CodeUnknown
}

// IsCode checks if an error has a specific error code.
func IsCode(err error, code Code) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.Code == code
}

// IsRetryable returns true if the error is potentially transient.
func IsRetryable(err error) bool {
	switch CodeOf(err) {
	case CodeCaptureFailed, CodeNoDisplayAvailable, CodeFileSystemError:
		return true
	default:
		return false
	}
}
