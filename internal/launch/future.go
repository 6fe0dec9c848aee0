package launch

import (
	"context"
	"sync"
)

// startFuture is the one shared "the server is starting" result. Every caller
// that arrives before resolution waits on the same future and therefore sees
// the same URL or the same failure.
type startFuture struct {
	done chan struct{}
	once sync.Once

	url string
	err error
}

func newStartFuture() *startFuture {
	return &startFuture{done: make(chan struct{})}
}

// resolve settles the future exactly once; later calls are ignored.
func (f *startFuture) resolve(url string, err error) {
	f.once.Do(func() {
		f.url = url
		f.err = err
		close(f.done)
	})
}

// Wait blocks until the future settles or ctx is cancelled. Cancellation
// abandons this caller only; the shared start keeps going.
func (f *startFuture) Wait(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-f.done:
		return f.url, f.err
	}
}

// Failed reports whether the future has settled with an error.
func (f *startFuture) Failed() bool {
	select {
	case <-f.done:
		return f.err != nil
	default:
		return false
	}
}
