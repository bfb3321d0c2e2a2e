package mcp

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

const sessionIDHeader = "Mcp-Session-Id"

// streamableDriver speaks MCP over a single HTTP endpoint: POST carries
// request/response, and an optional companion GET stream delivers
// server-pushed events. Session affinity rides the Mcp-Session-Id header.
type streamableDriver struct {
	*session
	cfg    Config
	client *http.Client

	mu        sync.Mutex
	sessionID string
	cancel    context.CancelFunc
	closed    bool
}

func newStreamableDriver(cfg Config) (*streamableDriver, error) {
	if cfg.Endpoint == "" {
		return nil, &ProtocolError{Reason: "streamable server has no url"}
	}
	return &streamableDriver{
		session: newSession(cfg),
		cfg:     cfg,
		client:  &http.Client{},
	}, nil
}

func (d *streamableDriver) ID() string {
	return d.cfg.ServerID
}

func (d *streamableDriver) Open(ctx context.Context) error {
	d.setState(StateConnecting, nil)

	// A companion event stream is optional; servers that answer everything
	// in the POST body simply reject the GET.
	d.openCompanionStream()

	if err := d.handshake(ctx, d.send); err != nil {
		d.teardown()
		d.fail(err)
		return err
	}
	return nil
}

// openCompanionStream attempts the GET upgrade. Failure leaves the driver in
// POST-only mode.
func (d *streamableDriver) openCompanionStream() {
	streamCtx, cancel := context.WithCancel(context.Background())

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, d.cfg.Endpoint, nil)
	if err != nil {
		cancel()
		return
	}
	req.Header.Set("Accept", "text/event-stream")
	d.applyHeaders(req)

	resp, err := d.client.Do(req)
	if err != nil {
		cancel()
		d.logger.Debug("no companion event stream", "error", err)
		return
	}
	if resp.StatusCode != http.StatusOK ||
		!strings.HasPrefix(resp.Header.Get("Content-Type"), "text/event-stream") {
		resp.Body.Close()
		cancel()
		d.logger.Debug("companion event stream declined", "status", resp.StatusCode)
		return
	}

	d.captureSession(resp.Header.Get(sessionIDHeader))

	d.mu.Lock()
	d.cancel = cancel
	d.mu.Unlock()

	d.logger.Debug("companion event stream open")
	go d.readLoop(resp.Body)
}

// readLoop handles server-pushed envelopes on the companion stream. Stream
// end is tolerated: POST round-trips keep working without it.
func (d *streamableDriver) readLoop(body io.ReadCloser) {
	defer body.Close()
	err := readSSEEvents(body, func(ev sseEvent) {
		if ev.data == "" {
			return
		}
		if reply := d.framer.Dispatch([]byte(ev.data)); reply != nil {
			if serr := d.send(reply); serr != nil {
				d.logger.Warn("failed to send reply", "error", serr)
			}
		}
	})
	d.logger.Debug("companion event stream ended", "error", err)
}

// send POSTs one message. When the server answers with a JSON body, it is
// dispatched through the framer like any stream-delivered envelope.
func (d *streamableDriver) send(data []byte) error {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return ErrClosed
	}

	req, err := http.NewRequest(http.MethodPost, d.cfg.Endpoint, bytes.NewReader(data))
	if err != nil {
		return &TransportError{Transport: TransportStreamable, Op: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	d.applyHeaders(req)

	resp, err := d.client.Do(req)
	if err != nil {
		return &TransportError{Transport: TransportStreamable, Op: "post", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		io.Copy(io.Discard, resp.Body)
		return &TransportError{
			Transport: TransportStreamable,
			Op:        "post",
			Err:       fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	d.captureSession(resp.Header.Get(sessionIDHeader))

	contentType := resp.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(contentType, "application/json"):
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return &TransportError{Transport: TransportStreamable, Op: "read response", Err: err}
		}
		if len(bytes.TrimSpace(body)) > 0 {
			if reply := d.framer.Dispatch(body); reply != nil {
				// Replying to a reply makes no sense; drop it.
				d.logger.Warn("unexpected request in POST response body")
			}
		}
	case strings.HasPrefix(contentType, "text/event-stream"):
		// Per-request stream: the response arrives as events on this body.
		readSSEEvents(resp.Body, func(ev sseEvent) {
			if ev.data != "" {
				d.framer.Dispatch([]byte(ev.data))
			}
		})
	default:
		io.Copy(io.Discard, resp.Body)
	}
	return nil
}

// applyHeaders sets configured headers plus the captured session id.
func (d *streamableDriver) applyHeaders(req *http.Request) {
	for k, v := range d.cfg.Headers {
		req.Header.Set(k, v)
	}
	d.mu.Lock()
	if d.sessionID != "" {
		req.Header.Set(sessionIDHeader, d.sessionID)
	}
	d.mu.Unlock()
}

// captureSession stores the first session id the server hands out. Servers
// that never send one are sessionless, which is fine.
func (d *streamableDriver) captureSession(id string) {
	if id == "" {
		return
	}
	d.mu.Lock()
	if d.sessionID == "" {
		d.sessionID = id
		d.logger.Debug("session established", "sessionId", id)
	}
	d.mu.Unlock()
}

func (d *streamableDriver) Call(ctx context.Context, method string, params, result any) error {
	return d.call(ctx, d.send, method, params, result)
}

func (d *streamableDriver) Notify(ctx context.Context, method string, params any) error {
	return d.notify(d.send, method, params)
}

func (d *streamableDriver) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.sessionID = ""
	d.mu.Unlock()

	d.framer.Fail(ErrClosed)
	d.teardown()
	d.setState(StateClosed, nil)
	return nil
}

func (d *streamableDriver) teardown() {
	d.mu.Lock()
	cancel := d.cancel
	d.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
