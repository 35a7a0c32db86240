// Package rpcclient serializes typed request/response exchanges over a
// lazily established, cryptographically secured session, multiplexing
// concurrent callers onto one session through a bounded queue and a single
// long-lived controller goroutine.
package rpcclient

import (
	"context"
	"crypto/rand"
	"sync"
	"sync/atomic"

	"github.com/imdario/mergo"

	"github.com/enclavekm/rpc/session"
	"github.com/enclavekm/rpc/transport"
	"github.com/enclavekm/rpc/wire"
)

// Client establishes a session lazily, on the first Call, and serializes
// every call and close operation for that session through one controller
// goroutine. Exactly one Client exists per session; there is no connection
// pooling and no fail-over.
type Client struct {
	cfg       *Config
	builder   session.Builder
	transport transport.Transport
	sessionID wire.SessionID

	mu   sync.Mutex // guards sess; never held across transport I/O
	sess session.Session

	hasController atomic.Bool
	sendq         chan *callEnvelope
}

type callEnvelope struct {
	ctx    context.Context
	method string
	args   interface{}
	reply  chan callResult
}

type callResult struct {
	value interface{}
	err   error
}

// New constructs a client over transport t using builder to produce fresh
// sessions. No network activity occurs until the first Call.
func New(builder session.Builder, t transport.Transport, cfg *Config) *Client {
	resolved := Config{}
	if cfg != nil {
		resolved = *cfg
	}
	_ = mergo.Merge(&resolved, DefaultConfig)

	var id wire.SessionID
	if _, err := rand.Read(id[:]); err != nil {
		panic("rpcclient: failed to generate session id: " + err.Error())
	}

	return &Client{
		cfg:       &resolved,
		builder:   builder,
		transport: t,
		sessionID: id,
		sess:      builder.BuildInitiator(),
		sendq:     make(chan *callEnvelope, resolved.QueueCapacity),
	}
}

// SessionID returns the client's immutable, random session identifier.
func (c *Client) SessionID() wire.SessionID {
	return c.sessionID
}

// IsConnected reports whether the current session has completed its
// handshake. It is intended for tests and diagnostics; callers never need
// to check it before Call, which connects lazily.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.IsConnected()
}

// Builder returns the session builder retained for self-healing resets. It
// is exposed so collaborators like the cached key-manager client can push
// configuration (e.g. a verified policy's enclave allow-list) into it.
func (c *Client) Builder() session.Builder {
	return c.builder
}

// Close drains no further calls and asks the controller to perform the
// close protocol once its queue is empty. Close must not be called
// concurrently with a Call that has not yet been enqueued; like a channel,
// closing the client is a one-time, single-owner operation.
func (c *Client) Close() {
	close(c.sendq)
}

// Call encodes args with the deterministic binary representation, issues a
// typed request named method, and decodes the response's success body into
// O. A remote error body surfaces as *CallFailedError; a decode failure
// surfaces as a wire.ErrSerialization-wrapped error.
func Call[O any](ctx context.Context, c *Client, method string, args interface{}) (O, error) {
	var out O

	env := &callEnvelope{ctx: ctx, method: method, args: args, reply: make(chan callResult, 1)}
	c.ensureController()

	select {
	case c.sendq <- env:
	case <-ctx.Done():
		return out, ctx.Err()
	}

	select {
	case res := <-env.reply:
		if res.err != nil {
			return out, res.err
		}
		if res.value == nil {
			return out, nil
		}
		if err := wire.DecodeInto(res.value, &out); err != nil {
			return out, err
		}
		return out, nil
	case <-ctx.Done():
		return out, ctx.Err()
	}
}

// ensureController spawns the one controller goroutine for this client, the
// first time any call is made. The atomic compare-and-swap is the one-time
// latch; only the goroutine that flips it spawns the controller.
func (c *Client) ensureController() {
	if c.hasController.CompareAndSwap(false, true) {
		go c.runController()
	}
}

// runController owns the receive side of sendq for the lifetime of the
// client. It processes one call at a time, in FIFO order, and performs the
// close protocol once sendq is closed and drained.
func (c *Client) runController() {
	for env := range c.sendq {
		value, err := c.process(env.ctx, env.method, env.args)
		env.reply <- callResult{value: value, err: err}
	}
	c.shutdown()
}

// process runs the full per-call protocol: ensure connected, encode and
// write the request, decode the reply.
func (c *Client) process(ctx context.Context, method string, args interface{}) (interface{}, error) {
	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}

	encodedArgs, err := wire.EncodeArgs(args)
	if err != nil {
		return nil, err
	}

	msg := wire.RequestMessage(wire.Request{Method: method, Args: encodedArgs})

	c.mu.Lock()
	outBytes, err := c.sess.WriteMessage(msg)
	c.mu.Unlock()
	if err != nil {
		c.resetSession()
		return nil, err
	}

	replyBytes, err := c.transport.WriteMessage(ctx, c.sessionID, outBytes)
	if err != nil {
		c.resetSession()
		return nil, err
	}

	c.mu.Lock()
	outbound, decoded, err := c.sess.ProcessData(replyBytes)
	c.mu.Unlock()
	if err != nil {
		c.resetSession()
		return nil, err
	}
	if len(outbound) > 0 {
		c.resetSession()
		return nil, ErrUnexpectedOutboundData
	}
	if decoded == nil || decoded.Response == nil {
		c.resetSession()
		return nil, ErrExpectedResponseMessage
	}

	resp := decoded.Response
	if !resp.Ok {
		return nil, &CallFailedError{Message: resp.Error}
	}
	return resp.Success, nil
}

// ensureConnected runs the handshake protocol if the current session has
// not completed it. Any failure replaces the session with a fresh
// initiator before the error returns, so the next call starts clean.
func (c *Client) ensureConnected(ctx context.Context) error {
	c.mu.Lock()
	if c.sess.IsConnected() {
		c.mu.Unlock()
		return nil
	}
	out1, _, err := c.sess.ProcessData(nil)
	c.mu.Unlock()
	if err != nil {
		c.resetSession()
		return err
	}

	reply1, err := c.transport.WriteMessage(ctx, c.sessionID, out1)
	if err != nil {
		c.resetSession()
		return err
	}

	c.mu.Lock()
	out2, _, err := c.sess.ProcessData(reply1)
	c.mu.Unlock()
	if err != nil {
		c.resetSession()
		return err
	}

	reply2, err := c.transport.WriteMessage(ctx, c.sessionID, out2)
	if err != nil {
		c.resetSession()
		return err
	}

	c.mu.Lock()
	_, _, err = c.sess.ProcessData(reply2)
	connected := err == nil && c.sess.IsConnected()
	c.mu.Unlock()
	if err != nil {
		c.resetSession()
		return err
	}
	if !connected {
		c.resetSession()
		return ErrExpectedResponseMessage
	}
	return nil
}

// resetSession replaces the current (poisoned) session with a fresh
// initiator from the retained builder.
func (c *Client) resetSession() {
	c.mu.Lock()
	c.sess.Close()
	c.sess = c.builder.BuildInitiator()
	c.mu.Unlock()
}

// shutdown performs the close protocol: encode a close message, write it
// through the transport, and expect a close message in reply (anything else
// is ErrExpectedCloseMessage). Any error here is swallowed; the controller
// is exiting regardless, and the session is closed either way.
func (c *Client) shutdown() {
	c.mu.Lock()
	sess := c.sess
	connected := sess.IsConnected()
	c.mu.Unlock()

	if !connected {
		sess.Close()
		return
	}

	c.mu.Lock()
	outBytes, err := sess.WriteMessage(wire.CloseMessage())
	c.mu.Unlock()
	if err == nil {
		replyBytes, werr := c.transport.WriteMessage(context.Background(), c.sessionID, outBytes)
		if werr == nil {
			c.mu.Lock()
			_, decoded, perr := sess.ProcessData(replyBytes)
			c.mu.Unlock()
			if perr == nil && (decoded == nil || decoded.Kind != wire.MessageKindClose) {
				perr = ErrExpectedCloseMessage
			}
			_ = perr
		}
	}
	sess.Close()
}
