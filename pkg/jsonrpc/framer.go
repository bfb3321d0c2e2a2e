package jsonrpc

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
)

// Result is what a waiter receives: the matched response, or the transport
// failure that ended the call.
type Result struct {
	Response *Response
	Err      error
}

// Framer owns request-id allocation and response routing for one transport
// session. Ids are monotonically increasing integers starting at 1, and at
// most one waiter exists per id at any time. The transport's read loop is
// the sole caller of Dispatch; callers of NewRequest block on the returned
// channel.
type Framer struct {
	logger *slog.Logger

	mu      sync.Mutex
	nextID  int64
	pending map[int64]chan Result
	failed  error
}

// NewFramer creates a framer for a fresh transport session.
func NewFramer(logger *slog.Logger) *Framer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Framer{
		logger:  logger,
		pending: make(map[int64]chan Result),
	}
}

// NewRequest builds a request envelope for method/params, registers a waiter
// under a fresh id, and returns the id, the serialized bytes, and the waiter
// channel. The channel receives exactly one Result unless the id is retired
// first.
func (f *Framer) NewRequest(method string, params any) (int64, []byte, <-chan Result, error) {
	paramsBytes, err := marshalParams(params)
	if err != nil {
		return 0, nil, nil, err
	}

	f.mu.Lock()
	if f.failed != nil {
		err := f.failed
		f.mu.Unlock()
		return 0, nil, nil, err
	}
	f.nextID++
	id := f.nextID
	ch := make(chan Result, 1)
	f.pending[id] = ch
	f.mu.Unlock()

	idBytes, _ := json.Marshal(id)
	rawID := json.RawMessage(idBytes)

	data, err := json.Marshal(Request{
		JSONRPC: Version,
		ID:      &rawID,
		Method:  method,
		Params:  paramsBytes,
	})
	if err != nil {
		f.Retire(id)
		return 0, nil, nil, fmt.Errorf("marshaling request: %w", err)
	}
	return id, data, ch, nil
}

// NewNotification builds a notification envelope (no id, no waiter).
func (f *Framer) NewNotification(method string, params any) ([]byte, error) {
	paramsBytes, err := marshalParams(params)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Request{
		JSONRPC: Version,
		Method:  method,
		Params:  paramsBytes,
	})
}

// Retire removes the waiter for id, if any. A response arriving for a
// retired id is dropped silently by Dispatch. Returns true if a waiter
// was removed.
func (f *Framer) Retire(id int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.pending[id]
	delete(f.pending, id)
	return ok
}

// Pending returns the number of outstanding waiters.
func (f *Framer) Pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// Dispatch classifies one incoming envelope and routes it. Responses are
// delivered to the waiter matching their id; responses with no waiter are
// dropped with a warning and never fail the connection. Server notifications
// are logged. For server-initiated requests Dispatch returns the serialized
// method-not-supported reply that the transport must send back; in all other
// cases the returned slice is nil.
func (f *Framer) Dispatch(data []byte) []byte {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		f.logger.Warn("discarding unparseable message", "error", err)
		return nil
	}

	switch {
	case env.IsResponse():
		f.deliver(&env)
		return nil

	case env.IsServerRequest():
		// No server-to-client calls are implemented.
		f.logger.Warn("rejecting server-initiated request", "method", env.Method)
		reply, _ := json.Marshal(NewErrorResponse(env.ID, MethodNotFound, "method not supported"))
		return reply

	case env.IsNotification():
		f.logger.Debug("server notification", "method", env.Method)
		return nil

	default:
		f.logger.Warn("discarding malformed envelope")
		return nil
	}
}

// Fail completes every outstanding waiter with err and rejects subsequent
// requests. Called when the transport disconnects or the registry shuts down.
func (f *Framer) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failed != nil {
		return
	}
	f.failed = err
	for id, ch := range f.pending {
		ch <- Result{Err: err}
		delete(f.pending, id)
	}
}

func (f *Framer) deliver(env *Envelope) {
	var id int64
	if err := json.Unmarshal(*env.ID, &id); err != nil {
		f.logger.Warn("response with non-integer id", "id", string(*env.ID))
		return
	}

	f.mu.Lock()
	ch, ok := f.pending[id]
	delete(f.pending, id)
	f.mu.Unlock()

	if !ok {
		// Late response for a timed-out or retired call.
		f.logger.Warn("dropping response for unknown id", "id", id)
		return
	}
	ch <- Result{Response: &Response{
		JSONRPC: env.JSONRPC,
		ID:      env.ID,
		Result:  env.Result,
		Error:   env.Error,
	}}
}

func marshalParams(params any) (json.RawMessage, error) {
	if params == nil {
		return nil, nil
	}
	b, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshaling params: %w", err)
	}
	return b, nil
}
