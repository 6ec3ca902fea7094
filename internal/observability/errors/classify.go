package errors

import (
	"context"
	goerrors "errors"
	"reflect"
	"strconv"
	"strings"

	apperrors "github.com/iamdevroyal/blocpoint-client/internal/errors"
)

// statusCoder is implemented by transport errors that carry an HTTP status.
type statusCoder interface {
	HTTPStatus() int
}

// Classify returns a normalized error type name suitable for tagging metrics/logs.
// HTTP failures classify as "http_<status>", application errors by their code, and anything
// else by the innermost concrete type converted to snake_case-ish.
func Classify(err error) string {
	if err == nil {
		return ""
	}

	switch {
	case goerrors.Is(err, context.Canceled):
		return "canceled"
	case goerrors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}

	var sc statusCoder
	if goerrors.As(err, &sc) && sc.HTTPStatus() > 0 {
		return "http_" + strconv.Itoa(sc.HTTPStatus())
	}

	if code := apperrors.GetCode(err); code != "" {
		return string(code)
	}

	// Unwrap to the innermost error for better signal.
	for {
		unwrapped := goerrors.Unwrap(err)
		if unwrapped == nil {
			break
		}
		err = unwrapped
	}

	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == nil {
		return "unknown"
	}

	name := strings.ToLower(strings.ReplaceAll(t.String(), "*", ""))
	name = strings.ReplaceAll(name, ".", "_")
	if name == "" {
		return "unknown"
	}
	return name
}
