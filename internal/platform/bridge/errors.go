package bridge

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"github.com/alanyoungcy/riskbridge/internal/domain"
)

// Error is a failed bridge call. Status is 0 when no HTTP response arrived.
type Error struct {
	Op        string
	Status    int
	Retcode   int
	Message   string
	Malformed bool
	Err       error
}

func (e *Error) Error() string {
	switch {
	case e.Malformed:
		return fmt.Sprintf("bridge: %s: malformed response: %s", e.Op, e.Message)
	case e.Status == 0:
		return fmt.Sprintf("bridge: %s: %s", e.Op, e.Message)
	case e.Retcode != 0:
		return fmt.Sprintf("bridge: %s: HTTP %d retcode %d: %s", e.Op, e.Status, e.Retcode, e.Message)
	default:
		return fmt.Sprintf("bridge: %s: HTTP %d: %s", e.Op, e.Status, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// AsError extracts a *Error from err.
func AsError(err error) (*Error, bool) {
	var be *Error
	ok := errors.As(err, &be)
	return be, ok
}

// statusSentinel maps HTTP status codes to domain errors, following the
// platform clients' convention.
func statusSentinel(status int) error {
	switch status {
	case http.StatusNotFound:
		return domain.ErrNotFound
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.ErrUnauthorized
	case http.StatusTooManyRequests:
		return domain.ErrRateLimited
	default:
		return domain.ErrBridgeUnavailable
	}
}

var retcodePattern = regexp.MustCompile(`\b(10\d{3})\b`)

// retcodeFromMessage recovers an MT5 trade retcode embedded in an error
// string such as "Filling mode 1 failed: 10030 - Unsupported filling mode".
func retcodeFromMessage(msg string) int {
	m := retcodePattern.FindAllStringSubmatch(msg, -1)
	if len(m) == 0 {
		return 0
	}
	n, _ := strconv.Atoi(m[len(m)-1][1])
	return n
}
