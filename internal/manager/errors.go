package manager

// modelNotFoundError indicates a requested model id is not in the registry.
type modelNotFoundError struct{ id string }

func (e modelNotFoundError) Error() string { return "model not found: " + e.id }

// ErrModelNotFound returns an error for an unknown model id.
func ErrModelNotFound(id string) error { return modelNotFoundError{id: id} }

// IsModelNotFound reports whether the error indicates a missing model id.
func IsModelNotFound(err error) bool {
	_, ok := err.(modelNotFoundError)
	return ok
}

// modelNotReadyError indicates the model exists but is not resident yet
// (loading or unloaded); callers should retry later.
type modelNotReadyError struct{ id string }

func (e modelNotReadyError) Error() string { return "model not yet available: " + e.id }

// ErrModelNotReady constructs a not-ready error for id.
func ErrModelNotReady(id string) error { return modelNotReadyError{id: id} }

// IsModelNotReady reports whether err indicates a model still loading.
func IsModelNotReady(err error) bool {
	_, ok := err.(modelNotReadyError)
	return ok
}

// modelUnavailableError indicates the model has failed repeatedly and is
// not expected to become available without intervention.
type modelUnavailableError struct{ id string }

func (e modelUnavailableError) Error() string {
	return "model unavailable due to repeated failures: " + e.id
}

// ErrModelUnavailable constructs an unavailable error for id.
func ErrModelUnavailable(id string) error { return modelUnavailableError{id: id} }

// IsModelUnavailable reports whether err indicates a persistently failing model.
func IsModelUnavailable(err error) bool {
	_, ok := err.(modelUnavailableError)
	return ok
}

// invalidRequestError signals a malformed generation request for 400 mapping.
type invalidRequestError struct{ msg string }

func (e invalidRequestError) Error() string { return e.msg }

// ErrInvalidRequest constructs an invalidRequestError.
func ErrInvalidRequest(msg string) error { return invalidRequestError{msg: msg} }

// IsInvalidRequest reports whether err indicates a client-side request error.
func IsInvalidRequest(err error) bool {
	_, ok := err.(invalidRequestError)
	return ok
}
