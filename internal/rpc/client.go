// Package rpc implements a request/response client over a line-delimited
// JSON protocol spoken with a child process on its standard streams.
//
// Outbound requests are single JSON lines carrying an id; inbound lines are
// either responses (correlated by id) or notifications (classified by a
// pluggable predicate). Lines that do not look like protocol frames are
// treated as incidental process output and ignored.
package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

// maxLineSize bounds a single protocol frame. DevTools-style servers emit
// small frames; 1 MiB leaves generous headroom for extension discovery
// results.
const maxLineSize = 1024 * 1024

// Classifier decides whether a frame is a notification and names its event.
// It receives the raw frame and returns the event kind, or ok=false when the
// frame should be treated as a response.
type Classifier func(frame []byte) (event string, ok bool)

// Handler receives a notification payload. Handlers run on the reader
// goroutine so dispatch preserves the order frames were read; they must not
// block.
type Handler func(event string, payload json.RawMessage)

// Subscription removes its own handler when cancelled.
type Subscription interface {
	Cancel()
}

// request is the wire shape of an outbound call.
type request struct {
	ID     int64 `json:"id"`
	Method string `json:"method"`
	Params any   `json:"params,omitempty"`
}

// response is the wire shape of an inbound correlated reply.
type response struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ServerError    `json:"error,omitempty"`
}

type pendingResult struct {
	result json.RawMessage
	err    error
}

// Client is a bidirectional line-delimited JSON client.
type Client struct {
	writer   io.Writer
	classify Classifier
	log      *zap.Logger

	// wmu serializes writes on its own so a stalled child stdin cannot
	// block response dispatch, which runs under mu.
	wmu sync.Mutex

	mu      sync.Mutex
	nextID  atomic.Int64
	pending map[int64]chan pendingResult
	subs    map[string][]*handlerEntry
	subSeq  int64

	closed  atomic.Bool
	done    chan struct{}
	exitErr error
}

type handlerEntry struct {
	id int64
	fn Handler
}

// NewClient creates a client writing requests to w. The classifier decides
// which inbound frames are notifications; a nil classifier treats frames
// with an "event" field as notifications named by that field.
func NewClient(w io.Writer, classify Classifier, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	if classify == nil {
		classify = defaultClassifier
	}
	return &Client{
		writer:   w,
		classify: classify,
		log:      log,
		pending:  make(map[int64]chan pendingResult),
		subs:     make(map[string][]*handlerEntry),
		done:     make(chan struct{}),
	}
}

func defaultClassifier(frame []byte) (string, bool) {
	ev := gjson.GetBytes(frame, "event")
	if ev.Exists() {
		return ev.String(), true
	}
	return "", false
}

// Start begins reading frames from r in a goroutine. When r reaches EOF or
// errors, all outstanding requests are rejected with ErrProcessExited.
func (c *Client) Start(r io.Reader) {
	go c.readLoop(r)
}

// Call sends a request and waits for the matching response. It fails with
// ErrProcessExited if the process closes before the response arrives, or
// ErrMalformedFrame if the response line could not be parsed.
func (c *Client) Call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if c.closed.Load() {
		return nil, c.closeError()
	}

	id := c.nextID.Add(1)
	ch := make(chan pendingResult, 1)

	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.send(request{ID: id, Method: method, Params: params}); err != nil {
		return nil, fmt.Errorf("send %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, c.closeError()
	case res := <-ch:
		return res.result, res.err
	}
}

// Subscribe registers h for each of the given notification kinds. The
// returned subscription removes exactly this handler; other handlers for the
// same kinds are unaffected.
func (c *Client) Subscribe(events []string, h Handler) Subscription {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.subSeq++
	id := c.subSeq
	for _, ev := range events {
		c.subs[ev] = append(c.subs[ev], &handlerEntry{id: id, fn: h})
	}
	return &subscription{client: c, id: id, events: events}
}

type subscription struct {
	client *Client
	id     int64
	events []string
	once   sync.Once
}

// Cancel removes the subscription's handler from every event it was
// registered for.
func (s *subscription) Cancel() {
	s.once.Do(func() {
		s.client.mu.Lock()
		defer s.client.mu.Unlock()
		for _, ev := range s.events {
			entries := s.client.subs[ev]
			kept := entries[:0]
			for _, e := range entries {
				if e.id != s.id {
					kept = append(kept, e)
				}
			}
			if len(kept) == 0 {
				delete(s.client.subs, ev)
			} else {
				s.client.subs[ev] = kept
			}
		}
	})
}

// Close shuts the client down and rejects all outstanding requests with
// cause (ErrProcessExited when the process died underneath us). Safe to call
// more than once.
func (c *Client) Close(cause error) {
	if c.closed.Swap(true) {
		return
	}
	if cause == nil {
		cause = ErrClientClosed
	}

	c.mu.Lock()
	c.exitErr = cause
	pending := c.pending
	c.pending = make(map[int64]chan pendingResult)
	c.mu.Unlock()

	for _, ch := range pending {
		select {
		case ch <- pendingResult{err: cause}:
		default:
		}
	}
	close(c.done)
}

// IsClosed reports whether the client has been closed.
func (c *Client) IsClosed() bool {
	return c.closed.Load()
}

func (c *Client) closeError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.exitErr != nil {
		return c.exitErr
	}
	return ErrClientClosed
}

// send writes one JSON-encoded line to the process input stream.
func (c *Client) send(req request) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	data = append(data, '\n')

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.writer.Write(data); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	return nil
}

// readLoop consumes lines until EOF, dispatching frames in read order.
func (c *Client) readLoop(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		if c.closed.Load() {
			return
		}
		c.dispatchLine(scanner.Bytes())
	}

	if err := scanner.Err(); err != nil && !c.closed.Load() {
		c.log.Debug("stdout read ended", zap.Error(err))
	}
	c.Close(ErrProcessExited)
}

// looksLikeFrame is the coarse protocol filter: a trimmed line that starts
// with '{' and ends with '}'. Anything else is incidental output.
func looksLikeFrame(line []byte) bool {
	trimmed := strings.TrimSpace(string(line))
	return len(trimmed) >= 2 && trimmed[0] == '{' && trimmed[len(trimmed)-1] == '}'
}

func (c *Client) dispatchLine(line []byte) {
	if !looksLikeFrame(line) {
		return
	}

	frame := make([]byte, len(line))
	copy(frame, line)

	if !gjson.ValidBytes(frame) {
		c.handleMalformed(frame)
		return
	}

	if event, ok := c.classify(frame); ok {
		c.dispatchNotification(event, frame)
		return
	}

	var resp response
	if err := json.Unmarshal(frame, &resp); err != nil {
		c.handleMalformed(frame)
		return
	}
	c.resolve(resp.ID, pendingResult{result: resp.Result, err: errOrNil(resp.Error)})
}

func errOrNil(e *ServerError) error {
	if e == nil {
		return nil
	}
	return e
}

// handleMalformed surfaces an unparsable frame. When the broken frame still
// carries a readable id, the matching pending request is failed; otherwise
// the line is only logged.
func (c *Client) handleMalformed(frame []byte) {
	c.log.Warn("malformed protocol frame", zap.ByteString("frame", frame))

	id := gjson.GetBytes(frame, "id")
	if !id.Exists() {
		return
	}
	c.resolve(id.Int(), pendingResult{err: fmt.Errorf("%w: %s", ErrMalformedFrame, string(frame))})
}

func (c *Client) resolve(id int64, res pendingResult) {
	c.mu.Lock()
	ch, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		c.log.Debug("response for unknown request id", zap.Int64("id", id))
		return
	}
	select {
	case ch <- res:
	default:
	}
}

// dispatchNotification runs handlers synchronously so subscribers observe
// notifications in the order frames were read.
func (c *Client) dispatchNotification(event string, frame json.RawMessage) {
	payload := frame
	if params := gjson.GetBytes(frame, "params"); params.Exists() {
		payload = json.RawMessage(params.Raw)
	}

	c.mu.Lock()
	entries := make([]*handlerEntry, len(c.subs[event]))
	copy(entries, c.subs[event])
	c.mu.Unlock()

	for _, e := range entries {
		e.fn(event, payload)
	}
}
