package quality

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Notifier delivers an alert for a failed report.
type Notifier interface {
	Notify(ctx context.Context, severity Severity, summary string) error
}

// LogNotifier writes alerts to a logger. It is the default channel when no
// external notifier is configured.
type LogNotifier struct {
	Log logrus.FieldLogger
}

func (n LogNotifier) Notify(_ context.Context, severity Severity, summary string) error {
	n.Log.WithField("severity", severity).Error(summary)
	return nil
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, severity Severity, summary string) error

func (f NotifierFunc) Notify(ctx context.Context, severity Severity, summary string) error {
	return f(ctx, severity, summary)
}

// Alert dispatches a notification for r without blocking the caller. Only a
// FAILED report alerts, and suppress disables it entirely. The returned
// channel yields the delivery result once and is then closed.
func Alert(ctx context.Context, n Notifier, r *Report, suppress bool) <-chan error {
	done := make(chan error, 1)
	if n == nil || suppress || r.Status != StatusFailed {
		close(done)
		return done
	}
	go func() {
		defer close(done)
		done <- n.Notify(ctx, SeverityError, r.Text())
	}()
	return done
}
