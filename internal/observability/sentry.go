package observability

import (
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
)

// sensitiveHeaders carry bearer tokens or the cron secret.
var sensitiveHeaders = []string{"Authorization", "Cookie", "Set-Cookie"}

// InitSentry is a no-op when dsn is empty, leaving the SDK's global hub unbound.
func InitSentry(dsn, environment, serverName string) error {
	if dsn == "" {
		return nil
	}

	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		ServerName:       serverName,
		AttachStacktrace: true,
		BeforeSend:       scrubEvent,
	})
}

// scrubEvent drops request bodies and credential headers. Login and refresh
// bodies hold passwords and raw refresh tokens.
func scrubEvent(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	if event == nil || event.Request == nil {
		return event
	}

	event.Request.Data = ""
	event.Request.Cookies = ""
	for name := range event.Request.Headers {
		for _, sensitive := range sensitiveHeaders {
			if http.CanonicalHeaderKey(name) == sensitive {
				delete(event.Request.Headers, name)
			}
		}
	}
	return event
}

func FlushSentry() {
	sentry.Flush(2 * time.Second)
}
