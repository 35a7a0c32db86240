package transport

import (
	"context"
	"io"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/ssh"

	"github.com/enclavekm/rpc/wire"
)

// SSHClientFactory supplies the *ssh.Client an SSHChannel dials through and
// decides whether that client is SSHChannel's to close. A factory wrapping
// a client the caller already owns (e.g. one shared with other channels)
// should no-op on Close.
type SSHClientFactory interface {
	Dial(ctx context.Context) (*ssh.Client, error)
	Close(*ssh.Client) error
}

// NewDialer returns a SSHClientFactory that dials target fresh and owns the
// resulting client.
func NewDialer(target string, config *ssh.ClientConfig) *RealDialer {
	return &RealDialer{target: target, config: config}
}

// RealDialer dials a new *ssh.Client per Dial call.
type RealDialer struct {
	target string
	config *ssh.ClientConfig
}

// Dial implements SSHClientFactory.
func (rd *RealDialer) Dial(ctx context.Context) (cli *ssh.Client, err error) {
	tracer := ContextClientTrace(ctx)

	tracer.ConnectStart(rd.target)
	defer func(begin time.Time) {
		tracer.ConnectDone(rd.target, err, time.Since(begin))
	}(time.Now())

	return ssh.Dial("tcp", rd.target, rd.config)
}

// Close implements SSHClientFactory.
func (rd *RealDialer) Close(cli *ssh.Client) error {
	if cli == nil {
		return nil
	}
	return cli.Close()
}

// NewExistingClientDialer returns a SSHClientFactory wrapping an
// already-connected client that SSHChannel must not close.
func NewExistingClientDialer(client *ssh.Client) SSHClientFactory {
	return &noOpDialer{client: client}
}

type noOpDialer struct {
	client *ssh.Client
}

func (nd *noOpDialer) Dial(ctx context.Context) (*ssh.Client, error) {
	return nd.client, nil
}

func (nd *noOpDialer) Close(*ssh.Client) error {
	return nil
}

// SSHChannel is a RemoteCallChannel that carries CallEnclaveRequest/Response
// pairs over an SSH subsystem, one subsystem session per call. Unlike the
// long-lived streaming pipe a NETCONF transport holds open, each enclave
// call is a self-contained unary request: CBOR's decoder already knows
// where the value ends, so there is no need to keep a session's pipes open
// across calls the way a chunked XML stream does.
type SSHChannel struct {
	target    string
	subsystem string
	dialer    SSHClientFactory
	client    *ssh.Client
}

// NewSSHChannel dials target via dialer and returns a channel that opens
// the named subsystem for each CallEnclave.
func NewSSHChannel(ctx context.Context, dialer SSHClientFactory, target, subsystem string) (*SSHChannel, error) {
	client, err := dialer.Dial(ctx)
	if err != nil {
		return nil, errors.Wrap(ErrTransport, err.Error())
	}
	return &SSHChannel{target: target, subsystem: subsystem, dialer: dialer, client: client}, nil
}

// CallEnclave implements RemoteCallChannel. req.Payload already carries the
// session-tagged wire.Frame produced by GatewayTransport; CallEnclave only
// adds the endpoint address around it, so the wire shape carried over the
// subsystem is a single canonical CBOR-encoded CallEnclaveRequest.
func (c *SSHChannel) CallEnclave(ctx context.Context, req CallEnclaveRequest) (resp CallEnclaveResponse, err error) {
	trace := ContextClientTrace(ctx)

	session, err := c.client.NewSession()
	if err != nil {
		return resp, errors.Wrap(ErrTransport, err.Error())
	}
	defer session.Close()

	if err = session.RequestSubsystem(c.subsystem); err != nil {
		return resp, errors.Wrap(ErrTransport, err.Error())
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		return resp, errors.Wrap(ErrTransport, err.Error())
	}

	stdout, err := session.StdoutPipe()
	if err != nil {
		return resp, errors.Wrap(ErrTransport, err.Error())
	}

	encoded, err := wire.Marshal(req)
	if err != nil {
		return resp, err
	}

	trace.WriteStart(encoded)
	begin := time.Now()

	if _, werr := stdin.Write(encoded); werr != nil {
		trace.WriteDone(encoded, nil, werr, time.Since(begin))
		return resp, errors.Wrap(ErrTransport, werr.Error())
	}
	if werr := stdin.Close(); werr != nil {
		trace.WriteDone(encoded, nil, werr, time.Since(begin))
		return resp, errors.Wrap(ErrTransport, werr.Error())
	}

	reply, rerr := io.ReadAll(stdout)
	trace.WriteDone(encoded, reply, rerr, time.Since(begin))
	if rerr != nil {
		return resp, errors.Wrap(ErrTransport, rerr.Error())
	}

	if derr := wire.Unmarshal(reply, &resp); derr != nil {
		return resp, derr
	}
	return resp, nil
}

// Close closes the underlying client via the dialer, so a channel built
// over a pre-existing client (NewExistingClientDialer) leaves it open for
// its other owners.
func (c *SSHChannel) Close() error {
	return c.dialer.Close(c.client)
}
