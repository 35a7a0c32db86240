package enclavetest

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"net"

	"golang.org/x/crypto/ssh"

	"github.com/enclavekm/rpc/transport"
	"github.com/enclavekm/rpc/wire"
)

// SSHGatewayServer is a local SSH server standing in for a real gateway
// peer: each subsystem request is answered with exactly one
// CallEnclaveRequest/Response exchange, driven by HandleFramed so it
// follows the same toy handshake and request/close protocol FakeCarrier
// does in-process.
type SSHGatewayServer struct {
	listener net.Listener
}

// NewSSHGatewayServer listens on localhost:0, accepting password-
// authenticated connections for uname/password, and answers every
// subsystem channel with handler.
func NewSSHGatewayServer(uname, password string, handler Handler) (*SSHGatewayServer, error) {
	listener, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		return nil, err
	}

	config := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == uname && string(pass) == password {
				return nil, nil
			}
			return nil, fmt.Errorf("enclavetest: password rejected for %q", c.User())
		},
	}
	hostKey, err := generateHostKey()
	if err != nil {
		return nil, err
	}
	config.AddHostKey(hostKey)

	server := &SSHGatewayServer{listener: listener}
	go server.acceptConnections(config, handler)
	return server, nil
}

// Port returns the TCP port the server is listening on.
func (s *SSHGatewayServer) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Close closes the listener.
func (s *SSHGatewayServer) Close() {
	_ = s.listener.Close()
}

func (s *SSHGatewayServer) acceptConnections(config *ssh.ServerConfig, handler Handler) {
	for {
		nConn, err := s.listener.Accept()
		if err != nil {
			return
		}

		_, chch, reqch, err := ssh.NewServerConn(nConn, config)
		if err != nil {
			continue
		}
		go ssh.DiscardRequests(reqch)

		for newChannel := range chch {
			dataChan, requests, err := newChannel.Accept()
			if err != nil {
				continue
			}

			go func(in <-chan *ssh.Request) {
				for req := range in {
					_ = req.Reply(req.Type == "subsystem", nil)
				}
			}(requests)

			go serveOneExchange(dataChan, handler)
		}
	}
}

func serveOneExchange(ch ssh.Channel, handler Handler) {
	defer ch.Close()

	data, err := io.ReadAll(ch)
	if err != nil {
		return
	}

	var req transport.CallEnclaveRequest
	if err := wire.Unmarshal(data, &req); err != nil {
		return
	}

	replyPayload, err := HandleFramed(handler, req.Payload)
	if err != nil {
		return
	}

	encoded, err := wire.Marshal(transport.CallEnclaveResponse{Payload: replyPayload})
	if err != nil {
		return
	}
	_, _ = ch.Write(encoded)
}

func generateHostKey() (ssh.Signer, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	return ssh.ParsePrivateKey(pem.EncodeToMemory(block))
}
