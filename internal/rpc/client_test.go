package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer collects outbound requests so tests can watch for sent ids.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestClient(t *testing.T) (*Client, *io.PipeWriter, *syncBuffer) {
	t.Helper()
	serverRead, serverWrite := io.Pipe()
	requests := &syncBuffer{}
	c := NewClient(requests, nil, nil)
	c.Start(serverRead)
	t.Cleanup(func() {
		serverWrite.Close()
		c.Close(nil)
	})
	return c, serverWrite, requests
}

func waitForRequest(t *testing.T, requests *syncBuffer, fragment string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return bytes.Contains([]byte(requests.String()), []byte(fragment))
	}, 2*time.Second, 5*time.Millisecond, "request %q never sent", fragment)
}

func TestCallResolvesByIdInAnyOrder(t *testing.T) {
	c, server, requests := newTestClient(t)

	type callResult struct {
		raw json.RawMessage
		err error
	}
	first := make(chan callResult, 1)
	second := make(chan callResult, 1)

	go func() {
		raw, err := c.Call(context.Background(), "vm.register", map[string]string{"uri": "ws://a"})
		first <- callResult{raw, err}
	}()
	waitForRequest(t, requests, `"id":1`)

	go func() {
		raw, err := c.Call(context.Background(), "vm.register", map[string]string{"uri": "ws://b"})
		second <- callResult{raw, err}
	}()
	waitForRequest(t, requests, `"id":2`)

	// Respond to the second request first.
	_, err := server.Write([]byte(`{"id":2,"result":{"n":2}}` + "\n"))
	require.NoError(t, err)
	res2 := <-second
	require.NoError(t, res2.err)
	assert.JSONEq(t, `{"n":2}`, string(res2.raw))

	_, err = server.Write([]byte(`{"id":1,"result":{"n":1}}` + "\n"))
	require.NoError(t, err)
	res1 := <-first
	require.NoError(t, res1.err)
	assert.JSONEq(t, `{"n":1}`, string(res1.raw))
}

func TestNonFrameLinesIgnored(t *testing.T) {
	c, server, requests := newTestClient(t)

	done := make(chan error, 1)
	go func() {
		_, err := c.Call(context.Background(), "ping", nil)
		done <- err
	}()
	waitForRequest(t, requests, `"id":1`)

	// Incidental process output must not disturb the pending request.
	_, err := server.Write([]byte("The server is listening on port 9100\n"))
	require.NoError(t, err)
	_, err = server.Write([]byte("warning: something\n"))
	require.NoError(t, err)

	select {
	case err := <-done:
		t.Fatalf("call resolved early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}

	_, err = server.Write([]byte(`{"id":1,"result":true}` + "\n"))
	require.NoError(t, err)
	require.NoError(t, <-done)
}

func TestMalformedFrameFailsMatchingRequest(t *testing.T) {
	c, server, requests := newTestClient(t)

	done := make(chan error, 1)
	go func() {
		_, err := c.Call(context.Background(), "ping", nil)
		done <- err
	}()
	waitForRequest(t, requests, `"id":1`)

	// Looks like a frame, carries our id, but is not valid JSON.
	_, err := server.Write([]byte(`{"id":1,"result":oops}` + "\n"))
	require.NoError(t, err)

	callErr := <-done
	require.Error(t, callErr)
	assert.ErrorIs(t, callErr, ErrMalformedFrame)
}

func TestServerErrorSurfaced(t *testing.T) {
	c, server, requests := newTestClient(t)

	done := make(chan error, 1)
	go func() {
		_, err := c.Call(context.Background(), "vm.register", nil)
		done <- err
	}()
	waitForRequest(t, requests, `"id":1`)

	_, err := server.Write([]byte(`{"id":1,"error":{"code":-32601,"message":"unknown method"}}` + "\n"))
	require.NoError(t, err)

	callErr := <-done
	require.Error(t, callErr)
	var serverErr *ServerError
	require.True(t, errors.As(callErr, &serverErr))
	assert.Equal(t, -32601, serverErr.Code)
}

func TestProcessExitRejectsAllPending(t *testing.T) {
	c, server, requests := newTestClient(t)

	results := make(chan error, 2)
	go func() {
		_, err := c.Call(context.Background(), "a", nil)
		results <- err
	}()
	waitForRequest(t, requests, `"id":1`)
	go func() {
		_, err := c.Call(context.Background(), "b", nil)
		results <- err
	}()
	waitForRequest(t, requests, `"id":2`)

	require.NoError(t, server.Close())

	for i := 0; i < 2; i++ {
		err := <-results
		assert.ErrorIs(t, err, ErrProcessExited)
	}
}

func TestCallAfterCloseFails(t *testing.T) {
	c, _, _ := newTestClient(t)
	c.Close(ErrProcessExited)

	_, err := c.Call(context.Background(), "ping", nil)
	assert.ErrorIs(t, err, ErrProcessExited)
}

func TestSubscribeDispatchesInReadOrder(t *testing.T) {
	c, server, _ := newTestClient(t)

	var mu sync.Mutex
	var seen []string
	done := make(chan struct{})
	c.Subscribe([]string{"server.started", "server.dtdStarted"}, func(event string, payload json.RawMessage) {
		mu.Lock()
		seen = append(seen, event)
		if len(seen) == 3 {
			close(done)
		}
		mu.Unlock()
	})

	frames := []string{
		`{"event":"server.started","params":{"port":9100}}`,
		`{"event":"server.dtdStarted","params":{}}`,
		`{"event":"server.started","params":{"port":9101}}`,
	}
	for _, f := range frames {
		_, err := server.Write([]byte(f + "\n"))
		require.NoError(t, err)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("notifications not delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"server.started", "server.dtdStarted", "server.started"}, seen)
}

func TestSubscriptionCancelRemovesExactlyThatHandler(t *testing.T) {
	c, server, _ := newTestClient(t)

	var mu sync.Mutex
	counts := map[string]int{}
	hit := make(chan struct{}, 8)

	subA := c.Subscribe([]string{"server.started"}, func(string, json.RawMessage) {
		mu.Lock()
		counts["a"]++
		mu.Unlock()
		hit <- struct{}{}
	})
	c.Subscribe([]string{"server.started"}, func(string, json.RawMessage) {
		mu.Lock()
		counts["b"]++
		mu.Unlock()
		hit <- struct{}{}
	})

	_, err := server.Write([]byte(`{"event":"server.started","params":{}}` + "\n"))
	require.NoError(t, err)
	<-hit
	<-hit

	subA.Cancel()
	subA.Cancel() // second cancel is a no-op

	_, err = server.Write([]byte(`{"event":"server.started","params":{}}` + "\n"))
	require.NoError(t, err)
	<-hit

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, counts["a"])
	assert.Equal(t, 2, counts["b"])
}

func TestNotificationPayloadPrefersParams(t *testing.T) {
	c, server, _ := newTestClient(t)

	got := make(chan json.RawMessage, 1)
	c.Subscribe([]string{"server.started"}, func(_ string, payload json.RawMessage) {
		got <- payload
	})

	_, err := server.Write([]byte(`{"event":"server.started","params":{"host":"127.0.0.1","port":9100}}` + "\n"))
	require.NoError(t, err)

	select {
	case payload := <-got:
		assert.JSONEq(t, `{"host":"127.0.0.1","port":9100}`, string(payload))
	case <-time.After(2 * time.Second):
		t.Fatal("notification not delivered")
	}
}

// stalledWriter blocks every Write until released, simulating a child
// process that stopped draining its stdin.
type stalledWriter struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (w *stalledWriter) Write(p []byte) (int, error) {
	w.once.Do(func() { close(w.entered) })
	<-w.release
	return len(p), nil
}

func TestStalledWriteDoesNotBlockDispatch(t *testing.T) {
	serverRead, serverWrite := io.Pipe()
	writer := &stalledWriter{entered: make(chan struct{}), release: make(chan struct{})}
	c := NewClient(writer, nil, nil)
	c.Start(serverRead)
	t.Cleanup(func() {
		serverWrite.Close()
		c.Close(nil)
	})

	events := make(chan string, 1)
	c.Subscribe([]string{"server.started"}, func(event string, _ json.RawMessage) {
		events <- event
	})

	done := make(chan error, 1)
	go func() {
		_, err := c.Call(context.Background(), "vm.register", map[string]string{"uri": "ws://a"})
		done <- err
	}()
	<-writer.entered

	// The child is not reading its stdin; inbound frames must still
	// dispatch.
	_, err := serverWrite.Write([]byte(`{"event":"server.started","params":{}}` + "\n"))
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, "server.started", ev)
	case <-time.After(2 * time.Second):
		t.Fatal("notification not dispatched while a write was stalled")
	}

	close(writer.release)
	_, err = serverWrite.Write([]byte(`{"id":1,"result":{}}` + "\n"))
	require.NoError(t, err)
	require.NoError(t, <-done)
}
