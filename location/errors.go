package location

import "fmt"

// ErrorKind distinguishes why a position could not be obtained so callers
// can present distinct guidance.
type ErrorKind int

const (
	KindPermissionDenied ErrorKind = iota + 1
	KindPositionUnavailable
	KindTimeout
)

func (k ErrorKind) String() string {
	switch k {
	case KindPermissionDenied:
		return "permission_denied"
	case KindPositionUnavailable:
		return "position_unavailable"
	case KindTimeout:
		return "timeout"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a location acquisition failure. errors.Is matches on Kind, so
// errors.Is(err, ErrTimeout) holds for any timeout regardless of cause.
type Error struct {
	Kind ErrorKind
	Err  error
}

var (
	ErrPermissionDenied    = &Error{Kind: KindPermissionDenied}
	ErrPositionUnavailable = &Error{Kind: KindPositionUnavailable}
	ErrTimeout             = &Error{Kind: KindTimeout}
)

func (e *Error) Error() string {
	if e.Err != nil {
		return "location " + e.Kind.String() + ": " + e.Err.Error()
	}
	return "location " + e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Guidance is the user-facing hint for the failure kind.
func (e *Error) Guidance() string {
	switch e.Kind {
	case KindPermissionDenied:
		return "Location access denied. Allow location access and try again."
	case KindPositionUnavailable:
		return "Location unavailable. Move to an open area and try again."
	case KindTimeout:
		return "Location request timed out. Try again."
	}
	return "Failed to get location."
}

func wrap(kind ErrorKind, err error) *Error { return &Error{Kind: kind, Err: err} }

// FromCode maps the browser geolocation error codes (1, 2, 3).
func FromCode(code int) error {
	switch code {
	case 1:
		return ErrPermissionDenied
	case 2:
		return ErrPositionUnavailable
	case 3:
		return ErrTimeout
	}
	return nil
}
