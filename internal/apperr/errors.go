package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind — таксономия доменных ошибок:
// Validation → 400, Conflict → 409, NotFound → 404, Upstream → 502,
// Invariant → 500 (фатальный баг, логируется отдельно).
type Kind int

const (
	KindValidation Kind = iota
	KindConflict
	KindNotFound
	KindForbidden
	KindUpstream
	KindInvariant
)

type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

func Conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Msg: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Msg: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...any) *Error {
	return &Error{Kind: KindForbidden, Msg: fmt.Sprintf(format, args...)}
}

func Upstream(msg string, err error) *Error {
	return &Error{Kind: KindUpstream, Msg: msg, Err: err}
}

// Invariant — состояние, которого в корректной реализации быть не может
// (например порт busy без привязки). Не «лечится» молча.
func Invariant(format string, args ...any) *Error {
	return &Error{Kind: KindInvariant, Msg: fmt.Sprintf(format, args...)}
}

func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

func IsKind(err error, k Kind) bool {
	kind, ok := KindOf(err)
	return ok && kind == k
}

// HTTPStatus отображает ошибку в код ответа; не-доменные ошибки → 500.
func HTTPStatus(err error) int {
	switch k, ok := KindOf(err); {
	case !ok:
		return http.StatusInternalServerError
	case k == KindValidation:
		return http.StatusBadRequest
	case k == KindConflict:
		return http.StatusConflict
	case k == KindNotFound:
		return http.StatusNotFound
	case k == KindForbidden:
		return http.StatusForbidden
	case k == KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Title — краткое название для RFC 7807 ответа.
func Title(err error) string {
	switch k, ok := KindOf(err); {
	case !ok:
		return "Internal Server Error"
	case k == KindValidation:
		return "Validation Error"
	case k == KindConflict:
		return "Conflict"
	case k == KindNotFound:
		return "Not Found"
	case k == KindForbidden:
		return "Forbidden"
	case k == KindUpstream:
		return "Upstream Error"
	default:
		return "Invariant Violation"
	}
}
