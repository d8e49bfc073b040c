package events

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEmitterDeliversToEveryNotifier(t *testing.T) {
	var mu sync.Mutex
	var got []string
	record := func(name string) Notifier {
		return NotifierFunc(func(_ context.Context, e Event) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, name+":"+e.ApplicationID)
			return nil
		})
	}
	emitter := NewEmitter(quietLogger(), time.Second, record("a"), record("b"))
	emitter.Emit(Event{ApplicationID: "app-1"})
	require.NoError(t, emitter.Close(context.Background()))

	assert.ElementsMatch(t, []string{"a:app-1", "b:app-1"}, got)
}

func TestEmitterSwallowsFailuresAndPanics(t *testing.T) {
	var healthy atomic.Int32
	emitter := NewEmitter(quietLogger(), time.Second,
		NotifierFunc(func(context.Context, Event) error { return errors.New("down") }),
		NotifierFunc(func(context.Context, Event) error { panic("boom") }),
		NotifierFunc(func(context.Context, Event) error { healthy.Add(1); return nil }),
	)
	emitter.Emit(Event{ApplicationID: "app-1"})
	emitter.Emit(Event{ApplicationID: "app-2"})
	require.NoError(t, emitter.Close(context.Background()))

	assert.Equal(t, int32(2), healthy.Load())
}

func TestEmitterDoesNotBlockCaller(t *testing.T) {
	release := make(chan struct{})
	emitter := NewEmitter(quietLogger(), time.Second, NotifierFunc(func(ctx context.Context, _ Event) error {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}))

	returned := make(chan struct{})
	go func() {
		emitter.Emit(Event{ApplicationID: "app-1"})
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Emit blocked on a slow notifier")
	}
	close(release)
	require.NoError(t, emitter.Close(context.Background()))
}

func TestEmitterAppliesTimeout(t *testing.T) {
	var timedOut atomic.Bool
	emitter := NewEmitter(quietLogger(), 20*time.Millisecond, NotifierFunc(func(ctx context.Context, _ Event) error {
		<-ctx.Done()
		timedOut.Store(errors.Is(ctx.Err(), context.DeadlineExceeded))
		return ctx.Err()
	}))
	emitter.Emit(Event{ApplicationID: "app-1"})
	require.NoError(t, emitter.Close(context.Background()))
	assert.True(t, timedOut.Load())
}

func TestEmitterDropsAfterClose(t *testing.T) {
	var calls atomic.Int32
	emitter := NewEmitter(quietLogger(), time.Second, NotifierFunc(func(context.Context, Event) error {
		calls.Add(1)
		return nil
	}))
	require.NoError(t, emitter.Close(context.Background()))
	emitter.Emit(Event{ApplicationID: "app-1"})
	assert.Equal(t, int32(0), calls.Load())
}

func TestWebhookNotifierPostsJSON(t *testing.T) {
	var received Event
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	balance := int64(8)
	notifier := NewWebhookNotifier(server.URL, server.Client())
	err := notifier.Notify(context.Background(), Event{ApplicationID: "app-1", ToStatus: "accepted", WorkerBalance: &balance})
	require.NoError(t, err)
	assert.Equal(t, "app-1", received.ApplicationID)
	require.NotNil(t, received.WorkerBalance)
	assert.Equal(t, int64(8), *received.WorkerBalance)
}

func TestWebhookNotifierRejectsNon2xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	err := NewWebhookNotifier(server.URL, nil).Notify(context.Background(), Event{ApplicationID: "app-1"})
	assert.Error(t, err)
}
