package mockproxy

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
)

var (
	ErrNoMock            = errors.New("no mock registered")
	ErrUnknownAlias      = errors.New("unknown alias")
	ErrAliasInUse        = errors.New("alias already registered")
	ErrConstraintsNotMet = errors.New("constraints do not match")
)

// NoMockError is returned for a request that no registered mock answers.
type NoMockError struct {
	Method string
	Path   string
}

func (e *NoMockError) Error() string {
	return fmt.Sprintf("no mock registered for %s %s", e.Method, e.Path)
}

func (e *NoMockError) Is(target error) bool {
	return target == ErrNoMock
}

// WaitTimeoutError is returned when an awaited interaction did not arrive in time.
// An empty Alias means the wait was for every registered mock.
type WaitTimeoutError struct {
	Alias    string
	Count    int
	Received int
	Elapsed  time.Duration
}

func (e *WaitTimeoutError) Error() string {
	elapsed := e.Elapsed.Round(time.Millisecond)
	if e.Alias == "" {
		return fmt.Sprintf("timed out after %s waiting for all mocks to be matched", elapsed)
	}
	return fmt.Sprintf("timed out after %s waiting for interaction '@%s' (wanted %d, received %d)",
		elapsed, e.Alias, e.Count, e.Received)
}
