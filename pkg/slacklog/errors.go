package slacklog

import (
	"errors"
	"fmt"
)

// ErrConfiguration matches every *ConfigurationError via errors.Is.
var ErrConfiguration = errors.New("slacklog: configuration error")

// ConfigurationError reports an invalid design/configuration pairing or a
// severity that cannot be formatted.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "slacklog: configuration error: " + e.Reason
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

func configErrorf(format string, args ...any) error {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}
