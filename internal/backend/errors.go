package backend

import (
	"fmt"
	"net/http"
	"time"

	"github.com/noah-isme/backend-kasir/internal/common"
)

// Error reports a failed shop backend call: a non-2xx status or an {error}
// payload.
type Error struct {
	Operation string
	Status    int
	Message   string
	// RetryAfter is set when an open circuit refused the call.
	RetryAfter time.Duration

	unavailable bool
	cause       error
}

// ErrUnavailable wraps transport failures, timeouts and an open circuit.
var ErrUnavailable = &Error{Message: "shop backend unavailable", unavailable: true}

func unavailable(op string, cause error, retryAfter time.Duration) *Error {
	return &Error{Operation: op, Message: ErrUnavailable.Message, RetryAfter: retryAfter, unavailable: true, cause: cause}
}

func (e *Error) Error() string {
	if e.unavailable {
		if e.cause != nil {
			return fmt.Sprintf("%s: %s: %v", e.Message, e.Operation, e.cause)
		}
		return e.Message
	}
	if e.Status > 0 {
		return fmt.Sprintf("backend %s: %d %s", e.Operation, e.Status, e.Message)
	}
	return fmt.Sprintf("backend %s: %s", e.Operation, e.Message)
}

// Is matches ErrUnavailable for every unavailability error.
func (e *Error) Is(target error) bool {
	return target == ErrUnavailable && e.unavailable
}

func (e *Error) Unwrap() error { return e.cause }

// AppError implements common.Mapper.
func (e *Error) AppError() *common.AppError {
	if e.unavailable {
		app := common.NewAppError("BACKEND_UNAVAILABLE", "shop backend is unavailable, try again", http.StatusServiceUnavailable, e)
		if e.RetryAfter > 0 {
			app = app.WithDetails(map[string]any{"retry_after_ms": e.RetryAfter.Milliseconds()})
		}
		return app
	}
	details := map[string]any{"operation": e.Operation}
	if e.Status > 0 {
		details["status"] = e.Status
	}
	return common.NewAppError("BACKEND_ERROR", e.Message, http.StatusBadGateway, e).WithDetails(details)
}
