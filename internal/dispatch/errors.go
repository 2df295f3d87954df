package dispatch

import (
	"fmt"

	"renderfleet/internal/pkg/errors"
)

// ErrorKind names the protocol step a dispatch failed at. It is stored in
// the "kind" field of the returned *errors.Error.
type ErrorKind string

const (
	ErrInvalidSegment        ErrorKind = "INVALID_SEGMENT"
	ErrWorkerInboxMissing    ErrorKind = "WORKER_INBOX_MISSING"
	ErrWriteFailed           ErrorKind = "WRITE_FAILED"
	ErrDirectoryCreateFailed ErrorKind = "DIRECTORY_CREATE_FAILED"
	ErrAssetCopyFailed       ErrorKind = "ASSET_COPY_FAILED"
	ErrManifestEncodeFailed  ErrorKind = "MANIFEST_ENCODE_FAILED"
	ErrManifestWriteFailed   ErrorKind = "MANIFEST_WRITE_FAILED"
	ErrSentinelWriteFailed   ErrorKind = "SENTINEL_WRITE_FAILED"
)

// code maps each kind onto the error taxonomy: a missing inbox is an
// operator problem, bad identifiers and unencodable prompts are caller
// problems, everything else is I/O.
func (k ErrorKind) code() errors.Code {
	switch k {
	case ErrWorkerInboxMissing:
		return errors.CodeFailedPrecond
	case ErrInvalidSegment:
		return errors.CodeValidation
	case ErrManifestEncodeFailed:
		return errors.CodeSerialization
	default:
		return errors.CodeIO
	}
}

// KindOf returns the ErrorKind of a dispatch error, or "" for anything else.
func KindOf(err error) ErrorKind {
	v, ok := errors.GetField(err, "kind")
	if !ok {
		return ""
	}
	k, _ := v.(ErrorKind)
	return k
}

// IsKind reports whether err is a dispatch error of kind k.
func IsKind(err error, k ErrorKind) bool {
	return KindOf(err) == k
}

type failure struct {
	op       string
	kind     ErrorKind
	workerID string
	jobID    string
	asset    string
}

func (f failure) wrap(cause error, format string, args ...any) *errors.Error {
	msg := fmt.Sprintf(format, args...)

	var e *errors.Error
	if cause != nil {
		e = errors.WrapWithCode(cause, f.kind.code(), f.op, msg)
	} else {
		e = errors.New(f.kind.code(), msg)
		e.Op = f.op
	}

	e.WithField("kind", f.kind).
		WithField("worker_id", f.workerID).
		WithField("job_id", f.jobID)
	if f.asset != "" {
		e.WithField("asset", f.asset)
	}
	return e
}
