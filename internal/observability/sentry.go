package observability

import (
	"time"

	"github.com/getsentry/sentry-go"
)

// InitSentry configures the global Sentry client. An empty dsn leaves
// reporting disabled and every capture a no-op.
func InitSentry(dsn, environment string) error {
	if dsn == "" {
		return nil
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		AttachStacktrace: true,
		BeforeSend:       scrubEvent,
	})
}

// FlushSentry waits for buffered events before the process exits
func FlushSentry() {
	sentry.Flush(2 * time.Second)
}

// CaptureError reports an unexpected error
func CaptureError(err error) {
	if err == nil {
		return
	}
	sentry.CaptureException(err)
}

// CapturePanic reports a recovered panic with the request it happened in
func CapturePanic(recovered any, method, path, stack string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("method", method)
		scope.SetTag("path", path)
		scope.SetExtra("panic", recovered)
		scope.SetExtra("stack", stack)
		sentry.CaptureMessage("panic in request")
	})
}

// scrubEvent drops cookies and auth headers from outgoing events
func scrubEvent(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	if event.Request != nil {
		event.Request.Cookies = ""
		delete(event.Request.Headers, "Cookie")
		delete(event.Request.Headers, "Authorization")
	}
	return event
}
