package hub

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netonboard/internal/service"
)

func readEvent(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	var lines []string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		if line == "" {
			if len(lines) > 0 && !strings.HasPrefix(lines[0], ":") {
				return strings.Join(lines, "\n")
			}
			lines = nil
			continue
		}
		lines = append(lines, line)
	}
}

func TestHubStreamsJobEvents(t *testing.T) {
	h := New(nil)
	bus := service.NewEventBus()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Forward(ctx, bus)

	srv := httptest.NewServer(h)
	defer srv.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"?job=j1", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	bus.Publish(service.Event{Type: service.EventJobSubmitted, JobID: "other"})
	bus.Publish(service.Event{Type: service.EventJobFinished, JobID: "j1"})

	ev := readEvent(t, bufio.NewReader(resp.Body))
	assert.Contains(t, ev, "event: job_finished")
	assert.Contains(t, ev, `"job_id":"j1"`)
}

func TestHubRejectsNonFlusher(t *testing.T) {
	h := New(nil)
	w := &plainWriter{header: http.Header{}}
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, w.status)
}

type plainWriter struct {
	header http.Header
	status int
}

func (p *plainWriter) Header() http.Header         { return p.header }
func (p *plainWriter) Write(b []byte) (int, error) { return len(b), nil }
func (p *plainWriter) WriteHeader(code int)        { p.status = code }
