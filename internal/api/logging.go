package api

import (
	"log"
	"net/http"
	"os"

	"paddle-arena/internal/identity"

	"github.com/go-chi/chi/v5/middleware"
)

// redactedValue replaces credentials in logged URLs
const redactedValue = "REDACTED"

// redactingFormatter hides the websocket token query parameter from
// request logs
type redactingFormatter struct {
	middleware.LogFormatter
}

func (f redactingFormatter) NewLogEntry(r *http.Request) middleware.LogEntry {
	q := r.URL.Query()
	if !q.Has(identity.TokenQueryParam) {
		return f.LogFormatter.NewLogEntry(r)
	}
	q.Set(identity.TokenQueryParam, redactedValue)

	// Shallow copy: only the logged line changes, handlers still see r
	logged := r.WithContext(r.Context())
	logged.RequestURI = r.URL.EscapedPath() + "?" + q.Encode()
	return f.LogFormatter.NewLogEntry(logged)
}

// newRequestLogger is middleware.Logger with token redaction
func newRequestLogger(logger middleware.LoggerInterface, noColor bool) func(http.Handler) http.Handler {
	return middleware.RequestLogger(redactingFormatter{
		LogFormatter: &middleware.DefaultLogFormatter{Logger: logger, NoColor: noColor},
	})
}

// requestLogger writes to stdout like middleware.Logger
func requestLogger() func(http.Handler) http.Handler {
	return newRequestLogger(log.New(os.Stdout, "", log.LstdFlags), false)
}
