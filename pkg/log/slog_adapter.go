package log

import (
	"context"
	"log/slog"
)

// SlogAdapter writes events to an slog.Logger. Useful for development when
// you want lifecycle events in the console alongside process logs.
type SlogAdapter struct {
	logger *slog.Logger
}

// NewSlogAdapter creates a new SlogAdapter that writes to the given slog.Logger.
func NewSlogAdapter(logger *slog.Logger) *SlogAdapter {
	return &SlogAdapter{logger: logger}
}

// Log writes the event to the slog logger at Debug level.
func (a *SlogAdapter) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("category", event.Category.String()),
	}
	if event.ConnectionID != "" {
		attrs = append(attrs, slog.String("conn_id", event.ConnectionID))
	}
	if event.Handle != 0 {
		attrs = append(attrs, slog.Int64("handle", int64(event.Handle)))
	}
	if event.RemoteAddr != "" {
		attrs = append(attrs, slog.String("remote", event.RemoteAddr))
	}

	switch {
	case event.Connection != nil:
		attrs = append(attrs,
			slog.String("state", event.Connection.State),
			slog.Int64("device", int64(event.Connection.DeviceHandle)),
		)
		if event.Connection.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.Connection.Reason))
		}
	case event.Session != nil:
		attrs = append(attrs,
			slog.Uint64("session", uint64(event.Session.SessionID)),
			slog.String("action", event.Session.Action),
		)
		if event.Session.ServiceType != nil {
			attrs = append(attrs, slog.Uint64("service", uint64(*event.Session.ServiceType)))
		}
	case event.Heartbeat != nil:
		attrs = append(attrs, slog.String("kind", event.Heartbeat.Kind))
		if event.Heartbeat.SinceActivity != nil {
			attrs = append(attrs, slog.Duration("since_activity", *event.Heartbeat.SinceActivity))
		}
	case event.Security != nil:
		attrs = append(attrs,
			slog.Uint64("session", uint64(event.Security.SessionID)),
			slog.Uint64("service", uint64(event.Security.ServiceType)),
			slog.String("action", event.Security.Action),
		)
	case event.Error != nil:
		attrs = append(attrs, slog.String("error_msg", event.Error.Message))
		if event.Error.Context != "" {
			attrs = append(attrs, slog.String("error_context", event.Error.Context))
		}
	}

	a.logger.LogAttrs(context.Background(), slog.LevelDebug, "lifecycle", attrs...)
}

// Compile-time interface satisfaction check.
var _ Logger = (*SlogAdapter)(nil)
