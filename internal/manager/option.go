package manager

import (
	"log/slog"

	"github.com/starford/quire/internal/models"
)

// Option is a functional option for configuring the Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithWorkers bounds the number of concurrent provider operations.
func WithWorkers(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.workers = n
		}
	}
}

// WithDefaultProvider names the provider NewNote uses.
func WithDefaultProvider(uid string) Option {
	return func(m *Manager) { m.defaultUID = uid }
}

// WithDefaultColor is applied to new notes that support color.
func WithDefaultColor(c models.RGBA) Option {
	return func(m *Manager) {
		m.defaultColor = c
		m.hasDefaultColor = true
	}
}

// WithSearcher routes Search through an index.
func WithSearcher(s Searcher) Option {
	return func(m *Manager) { m.searcher = s }
}

// WithEventSink adds a receiver for load and item events.
func WithEventSink(s EventSink) Option {
	return func(m *Manager) {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
}
