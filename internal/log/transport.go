package log

import (
	"log/slog"
	"net/http"
	"time"
)

// Transport is an http.RoundTripper that logs every outgoing request
// with its status and duration.
type Transport struct {
	Base   http.RoundTripper
	Logger *Logger
}

// NewTransport wraps base (http.DefaultTransport when nil).
func NewTransport(base http.RoundTripper, logger *Logger) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{Base: base, Logger: logger}
}

func (t *Transport) RoundTrip(r *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.Base.RoundTrip(r)
	durationMs := time.Since(start).Milliseconds()

	fields := NewFields()
	fields[FieldMethod] = r.Method
	fields[FieldURL] = r.URL.Redacted()
	if id := r.Header.Get("X-Request-ID"); id != "" {
		fields[FieldRequestID] = id
	}

	if err != nil {
		t.Logger.WarnContext(r.Context(), "HTTP request failed", fields.WithError(err).ToSlice()...)
		return nil, err
	}

	level := slog.LevelDebug
	if resp.StatusCode >= 500 {
		level = slog.LevelWarn
	}
	t.Logger.LogContext(r.Context(), level, "HTTP request completed",
		fields.WithHTTPResponse(resp.StatusCode, durationMs).ToSlice()...)
	return resp, nil
}
