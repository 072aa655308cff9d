package task

import (
	"errors"
	"strings"
)

// ErrNoTasks is reported when the registry is empty.
var ErrNoTasks = errors.New("no tasks configured")

// ConfigError reports an invalid task registry. The orchestrator refuses to
// start when Validate returns one.
type ConfigError struct {
	Problems []error
}

func (e *ConfigError) Error() string {
	if e == nil || len(e.Problems) == 0 {
		return "invalid task config"
	}
	parts := make([]string, 0, len(e.Problems))
	for _, p := range e.Problems {
		parts = append(parts, p.Error())
	}
	return "invalid task config: " + strings.Join(parts, "; ")
}

func (e *ConfigError) Unwrap() []error { return e.Problems }

// IsConfigError reports whether err carries a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}
