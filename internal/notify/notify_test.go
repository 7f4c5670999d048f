package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEventTypeFiltering(t *testing.T) {
	f := NewFilter([]EventType{EventCrashed, EventMemoryLimit})
	require.True(t, f.allows(EventCrashed))
	require.False(t, f.allows(EventStarted))
}

func TestEmptyFilterAllowsEverything(t *testing.T) {
	f := NewFilter(nil)
	require.True(t, f.allows(EventStarted))
	require.True(t, f.allows(EventHealthCheckFailed))
}

func TestFormatMessageRestartedOrdinals(t *testing.T) {
	require.Contains(t, Restarted(1, "api", 1).FormatMessage(), "1st")
	require.Contains(t, Restarted(1, "api", 2).FormatMessage(), "2nd")
	require.Contains(t, Restarted(1, "api", 3).FormatMessage(), "3rd")
	require.Contains(t, Restarted(1, "api", 4).FormatMessage(), "4th")
}

func TestFormatMessageMemoryLimit(t *testing.T) {
	msg := MemoryLimitExceeded(1, "api", 512, 256).FormatMessage()
	require.Contains(t, msg, "512MB")
	require.Contains(t, msg, "256MB")
}

func TestFormatMessageCrashed(t *testing.T) {
	msg := Crashed(1, "api", "segfault").FormatMessage()
	require.Contains(t, msg, "Crashed")
	require.Contains(t, msg, "segfault")
}

func TestLogNotifierRespectsFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	n := NewLogNotifier(logger, NewFilter([]EventType{EventCrashed}))

	require.NoError(t, n.Notify(context.Background(), Started(1, "api")))
	require.Empty(t, buf.String())

	require.NoError(t, n.Notify(context.Background(), Crashed(1, "api", "boom")))
	require.Contains(t, buf.String(), "boom")
}

func TestWebhookNotifierPostsPayload(t *testing.T) {
	received := make(chan webhookPayload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p webhookPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		received <- p
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, Filter{})
	require.NoError(t, n.Notify(context.Background(), Started(7, "api")))

	p := <-received
	require.Equal(t, int64(7), p.AppID)
	require.Equal(t, EventStarted, p.Type)
}

func TestWebhookNotifierErrorsOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, Filter{})
	err := n.Notify(context.Background(), Started(1, "api"))
	require.Error(t, err)
}

type recordingNotifier struct {
	calls []Event
	err   error
}

func (r *recordingNotifier) Notify(_ context.Context, event Event) error {
	r.calls = append(r.calls, event)
	return r.err
}

func TestMultiNotifierFansOutAndSurvivesFailure(t *testing.T) {
	failing := &recordingNotifier{err: context.DeadlineExceeded}
	ok := &recordingNotifier{}
	m := NewMultiNotifier(slog.Default(), failing, ok)

	require.NoError(t, m.Notify(context.Background(), Started(1, "api")))
	require.Len(t, failing.calls, 1)
	require.Len(t, ok.calls, 1)
}

func TestMultiNotifierIsConfigured(t *testing.T) {
	empty := NewMultiNotifier(nil)
	require.False(t, empty.IsConfigured())

	withSink := NewMultiNotifier(nil, &recordingNotifier{})
	require.True(t, withSink.IsConfigured())
}
