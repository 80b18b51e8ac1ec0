package surface

import "log/slog"

type options struct {
	logger  *slog.Logger
	journal EventRecorder
}

// Option configures a Proposer or Surface.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithJournal records arbitration events to rec.
func WithJournal(rec EventRecorder) Option {
	return func(o *options) {
		o.journal = rec
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
