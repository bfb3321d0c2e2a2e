package mcp

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// sseEvent is one parsed text/event-stream event.
type sseEvent struct {
	name string
	data string
}

// readSSEEvents parses an event stream and invokes handle per event until
// the stream ends. Comment lines and unknown fields are skipped.
func readSSEEvents(r io.Reader, handle func(sseEvent)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var ev sseEvent
	var data []string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if len(data) > 0 {
				ev.data = strings.Join(data, "\n")
				handle(ev)
			}
			ev = sseEvent{}
			data = nil
		case strings.HasPrefix(line, ":"):
			// comment / keepalive
		case strings.HasPrefix(line, "event:"):
			ev.name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	return scanner.Err()
}

// sseDriver speaks MCP over a long-lived GET event stream for receiving and
// a server-announced POST endpoint for sending.
type sseDriver struct {
	*session
	cfg    Config
	client *http.Client

	// shouldReconnect distinguishes a deliberate teardown from a dropped
	// stream. Cleared in Close and checked before reporting DISCONNECTED,
	// so shutdown never triggers a reconnect.
	shouldReconnect atomic.Bool

	mu       sync.Mutex
	postURL  string
	cancel   context.CancelFunc
	closed   bool
	endpoint chan string
}

func newSSEDriver(cfg Config) (*sseDriver, error) {
	if cfg.Endpoint == "" {
		return nil, &ProtocolError{Reason: "SSE server has no url"}
	}
	d := &sseDriver{
		session:  newSession(cfg),
		cfg:      cfg,
		client:   &http.Client{},
		endpoint: make(chan string, 1),
	}
	d.shouldReconnect.Store(true)
	return d, nil
}

func (d *sseDriver) ID() string {
	return d.cfg.ServerID
}

func (d *sseDriver) Open(ctx context.Context) error {
	d.setState(StateConnecting, nil)

	streamCtx, cancel := context.WithCancel(context.Background())
	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, d.cfg.Endpoint, nil)
	if err != nil {
		cancel()
		return d.openFailed(&TransportError{Transport: TransportSSE, Op: "build request", Err: err})
	}
	req.Header.Set("Accept", "text/event-stream")
	for k, v := range d.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		cancel()
		return d.openFailed(&TransportError{Transport: TransportSSE, Op: "connect", Err: err})
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return d.openFailed(&TransportError{
			Transport: TransportSSE,
			Op:        "connect",
			Err:       fmt.Errorf("unexpected status %d", resp.StatusCode),
		})
	}

	go d.readLoop(resp.Body)

	// The server announces the POST endpoint as the first event.
	select {
	case raw := <-d.endpoint:
		postURL, err := d.resolveEndpoint(raw)
		if err != nil {
			d.teardown()
			return d.openFailed(err)
		}
		d.mu.Lock()
		d.postURL = postURL
		d.mu.Unlock()
		d.logger.Debug("endpoint announced", "url", postURL)

	case <-time.After(d.cfg.handshakeTimeout()):
		d.teardown()
		return d.openFailed(&TransportError{
			Transport: TransportSSE,
			Op:        "handshake",
			Err:       fmt.Errorf("no endpoint event within %s", d.cfg.handshakeTimeout()),
		})

	case <-ctx.Done():
		d.teardown()
		return d.openFailed(ctx.Err())
	}

	if err := d.handshake(ctx, d.send); err != nil {
		d.teardown()
		return d.openFailed(err)
	}
	return nil
}

// openFailed reports a failed open as a DISCONNECTED transition. The
// shouldReconnect guard is cleared first so the dying read loop does not
// report a second failure.
func (d *sseDriver) openFailed(err error) error {
	d.shouldReconnect.Store(false)
	d.fail(err)
	return err
}

// resolveEndpoint turns a possibly relative endpoint URI into an absolute one.
func (d *sseDriver) resolveEndpoint(raw string) (string, error) {
	base, err := url.Parse(d.cfg.Endpoint)
	if err != nil {
		return "", &ProtocolError{Reason: "invalid base url", Err: err}
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return "", &ProtocolError{Reason: "invalid endpoint event", Err: err}
	}
	return base.ResolveReference(ref).String(), nil
}

// readLoop consumes the event stream. The first event carries the POST
// endpoint; message events carry JSON-RPC envelopes.
func (d *sseDriver) readLoop(body io.ReadCloser) {
	defer body.Close()

	announced := false
	err := readSSEEvents(body, func(ev sseEvent) {
		if !announced && (ev.name == "endpoint" || ev.name == "") {
			announced = true
			select {
			case d.endpoint <- ev.data:
			default:
			}
			return
		}
		announced = true
		if reply := d.framer.Dispatch([]byte(ev.data)); reply != nil {
			if serr := d.send(reply); serr != nil {
				d.logger.Warn("failed to send reply", "error", serr)
			}
		}
	})

	if !d.shouldReconnect.Load() {
		// Deliberate teardown; Close owns the state transition.
		return
	}
	if err == nil {
		err = io.EOF
	}
	d.logger.Warn("event stream ended", "error", err)
	d.fail(&TransportError{Transport: TransportSSE, Op: "stream", Err: err})
}

// send POSTs one message to the announced endpoint. The response body is
// discarded; the matching JSON-RPC response arrives on the event stream.
func (d *sseDriver) send(data []byte) error {
	d.mu.Lock()
	postURL := d.postURL
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if postURL == "" {
		return &TransportError{Transport: TransportSSE, Op: "send", Err: fmt.Errorf("no endpoint announced")}
	}

	req, err := http.NewRequest(http.MethodPost, postURL, bytes.NewReader(data))
	if err != nil {
		return &TransportError{Transport: TransportSSE, Op: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range d.cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return &TransportError{Transport: TransportSSE, Op: "post", Err: err}
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return &TransportError{
			Transport: TransportSSE,
			Op:        "post",
			Err:       fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}
	return nil
}

func (d *sseDriver) Call(ctx context.Context, method string, params, result any) error {
	return d.call(ctx, d.send, method, params, result)
}

func (d *sseDriver) Notify(ctx context.Context, method string, params any) error {
	return d.notify(d.send, method, params)
}

func (d *sseDriver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	d.shouldReconnect.Store(false)
	d.framer.Fail(ErrClosed)
	d.teardown()

	// Session state does not outlive the connection.
	d.mu.Lock()
	d.postURL = ""
	d.mu.Unlock()

	d.setState(StateClosed, nil)
	return nil
}

func (d *sseDriver) teardown() {
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
