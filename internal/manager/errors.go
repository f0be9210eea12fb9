package manager

import "fmt"

// modelNotFoundError: the requested model is not in the catalog.
type modelNotFoundError struct{ name string }

func (e modelNotFoundError) Error() string { return "model not found: " + e.name }

// ErrModelNotFound constructs a modelNotFoundError.
func ErrModelNotFound(name string) error { return modelNotFoundError{name: name} }

// IsModelNotFound reports whether err indicates an unknown model name.
func IsModelNotFound(err error) bool {
	_, ok := err.(modelNotFoundError)
	return ok
}

// notLoadedError: the model exists but has no resident instance.
type notLoadedError struct{ name string }

func (e notLoadedError) Error() string { return "model not loaded: " + e.name }

// ErrModelNotLoaded constructs a notLoadedError.
func ErrModelNotLoaded(name string) error { return notLoadedError{name: name} }

// IsModelNotLoaded reports whether err indicates no resident instance.
func IsModelNotLoaded(err error) bool {
	_, ok := err.(notLoadedError)
	return ok
}

// unsupportedOpError: the instance's engine cannot serve the operation
// (e.g. reranking on a chat-only engine). Maps to 422.
type unsupportedOpError struct {
	name   string
	engine string
	op     string
}

func (e unsupportedOpError) Error() string {
	return fmt.Sprintf("model %s (engine %s) does not support %s", e.name, e.engine, e.op)
}

// ErrUnsupportedOp constructs an unsupportedOpError.
func ErrUnsupportedOp(name, engine, op string) error {
	return unsupportedOpError{name: name, engine: engine, op: op}
}

// IsUnsupportedOp reports whether err indicates an engine/operation mismatch.
func IsUnsupportedOp(err error) bool {
	_, ok := err.(unsupportedOpError)
	return ok
}

// backendError: the backend process answered with a non-success status.
// The original status and body are preserved for diagnostics.
type backendError struct {
	status int
	body   string
}

func (e backendError) Error() string {
	return fmt.Sprintf("backend error: status %d: %s", e.status, e.body)
}

// IsBackendError reports whether err is a non-success backend response.
func IsBackendError(err error) bool {
	_, ok := err.(backendError)
	return ok
}

// networkError: the backend process was unreachable.
type networkError struct{ err error }

func (e networkError) Error() string { return "backend unreachable: " + e.err.Error() }
func (e networkError) Unwrap() error { return e.err }

// IsNetworkError reports whether err indicates an unreachable backend.
func IsNetworkError(err error) bool {
	_, ok := err.(networkError)
	return ok
}

// loadFailedError: the backend process exited or never reported ready.
type loadFailedError struct{ msg string }

func (e loadFailedError) Error() string { return "load failed: " + e.msg }

// ErrLoadFailed constructs a loadFailedError.
func ErrLoadFailed(msg string) error { return loadFailedError{msg: msg} }

// IsLoadFailed reports whether err indicates a failed instance load.
func IsLoadFailed(err error) bool {
	_, ok := err.(loadFailedError)
	return ok
}

// fileNotFoundError: the model artifact is missing on disk. This is the
// sole exemption from the full-reset fallback, because freeing memory
// cannot remedy a missing file.
type fileNotFoundError struct{ path string }

func (e fileNotFoundError) Error() string { return "model file not found: " + e.path }

// ErrFileNotFound constructs a fileNotFoundError.
func ErrFileNotFound(path string) error { return fileNotFoundError{path: path} }

// IsFileNotFound reports whether err indicates a missing model artifact.
func IsFileNotFound(err error) bool {
	_, ok := err.(fileNotFoundError)
	return ok
}
