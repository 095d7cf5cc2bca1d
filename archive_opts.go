package diskarc

import "log/slog"

// Option configures an Archive.
type Option func(*Archive)

// WithLogger sets the logger for archive operations. If not set, logging
// is disabled.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Archive) {
		a.logger = logger
	}
}
