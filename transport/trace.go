package transport

import (
	"context"
	"log"
	"time"

	"github.com/imdario/mergo"
)

// unique type to prevent assignment.
type clientEventContextKey struct{}

// ContextClientTrace returns the Trace associated with the provided
// context. If none, it returns the no-op hook set.
func ContextClientTrace(ctx context.Context) *ClientTrace {
	trace, _ := ctx.Value(clientEventContextKey{}).(*ClientTrace)
	if trace == nil {
		trace = NoOpLoggingHooks
	} else {
		_ = mergo.Merge(trace, NoOpLoggingHooks)
	}
	return trace
}

// WithClientTrace returns a new context based on the provided parent ctx.
// Transport calls made with the returned context will use the provided
// trace hooks.
func WithClientTrace(ctx context.Context, trace *ClientTrace) context.Context {
	return context.WithValue(ctx, clientEventContextKey{}, trace)
}

// ClientTrace defines hooks for observing transport-level events.
//
//nolint:golint
type ClientTrace struct {
	// ConnectStart is called before a carrier dials its peer.
	ConnectStart func(target string)

	// ConnectDone is called when a carrier's dial completes.
	ConnectDone func(target string, err error, d time.Duration)

	// WriteStart is called before a frame is handed to the carrier.
	WriteStart func(framed []byte)

	// WriteDone is called after the carrier returns (or fails).
	WriteDone func(framed []byte, reply []byte, err error, d time.Duration)

	// ConnectionClosed is for reporting that a carrier's underlying
	// connection has been closed. No carrier in this package calls it.
	ConnectionClosed func(target string, err error)

	// Error is for reporting a detected error condition. No carrier in this
	// package calls it.
	Error func(context, target string, err error)
}

// DefaultLoggingHooks logs only errors.
var DefaultLoggingHooks = &ClientTrace{
	Error: func(context, target string, err error) {
		log.Printf("ENCLAVE-RPC-Error context:%s target:%s err:%v\n", context, target, err)
	},
}

// MetricLoggingHooks additionally logs write latencies.
var MetricLoggingHooks = &ClientTrace{
	ConnectDone: func(target string, err error, d time.Duration) {
		log.Printf("ENCLAVE-RPC-ConnectDone target:%s err:%v took:%dms\n", target, err, d.Milliseconds())
	},
	WriteDone: func(framed, reply []byte, err error, d time.Duration) {
		log.Printf("ENCLAVE-RPC-WriteDone len:%d err:%v took:%dms\n", len(framed), err, d.Milliseconds())
	},
	Error: DefaultLoggingHooks.Error,
}

// DiagnosticLoggingHooks logs every hook.
var DiagnosticLoggingHooks = &ClientTrace{
	ConnectStart: func(target string) {
		log.Printf("ENCLAVE-RPC-ConnectStart target:%s\n", target)
	},
	ConnectDone: MetricLoggingHooks.ConnectDone,
	WriteStart: func(framed []byte) {
		log.Printf("ENCLAVE-RPC-WriteStart len:%d\n", len(framed))
	},
	WriteDone: MetricLoggingHooks.WriteDone,
	ConnectionClosed: func(target string, err error) {
		log.Printf("ENCLAVE-RPC-ConnectionClosed target:%s err:%v\n", target, err)
	},
	Error: DefaultLoggingHooks.Error,
}

// NoOpLoggingHooks does nothing; it is the default when no trace is set on
// the context.
var NoOpLoggingHooks = &ClientTrace{
	ConnectStart:     func(target string) {},
	ConnectDone:      func(target string, err error, d time.Duration) {},
	WriteStart:       func(framed []byte) {},
	WriteDone:        func(framed, reply []byte, err error, d time.Duration) {},
	ConnectionClosed: func(target string, err error) {},
	Error:            func(context, target string, err error) {},
}
