/*
 * Copyright (c) 2026 Firefly Software Solutions Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package transport carries Raft RPCs between cluster peers over TCP, using
internal/protocol's framing.

Each RPC is a single request/response pair on a short-lived connection:
dial, write one framed message, read one framed message, close. This
mirrors the dial-per-RPC approach of a classic Raft reference
implementation, traded for simplicity over the cost of a fresh TCP
handshake per heartbeat.
*/
package transport

import (
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"raftcore/internal/logging"
	"raftcore/internal/protocol"
	"raftcore/internal/raft"
)

// Handler dispatches inbound RPCs to a local raft.Node (or an equivalent
// driving it, such as internal/cluster's host). Implementations must be
// safe for concurrent use: the server invokes one Handler method per
// accepted connection, from its own goroutine.
type Handler interface {
	HandlePreVoteRequest(req *raft.PreVoteRequest) *raft.PreVoteResponse
	HandleVoteRequest(req *raft.VoteRequest) *raft.VoteResponse
	HandleAppendEntries(req *raft.AppendEntries) *raft.AppendEntriesResponse
}

// Server accepts RPC connections from peers and dispatches them to a
// Handler.
type Server struct {
	addr      string
	handler   Handler
	logger    *logging.Logger
	tlsConfig *tls.Config
	listener  net.Listener
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewServer returns a Server that will listen on addr once Start is called.
func NewServer(addr string, handler Handler) *Server {
	return &Server{
		addr:    addr,
		handler: handler,
		logger:  logging.NewLogger("transport"),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// WithTLS arms the server to serve every connection over TLS with
// tlsConfig, presenting its own certificate. Peers must present a client
// certificate only if tlsConfig.ClientAuth requests one; WithTLS leaves
// tlsConfig as given. Must be called before Start.
func (s *Server) WithTLS(tlsConfig *tls.Config) *Server {
	s.tlsConfig = tlsConfig
	return s
}

// Start binds the listening socket and begins accepting connections in the
// background.
func (s *Server) Start() error {
	var ln net.Listener
	var err error
	if s.tlsConfig != nil {
		ln, err = tls.Listen("tcp", s.addr, s.tlsConfig)
	} else {
		ln, err = net.Listen("tcp", s.addr)
	}
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.addr, err)
	}
	s.listener = ln
	go s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	defer close(s.doneCh)

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		if tcpLn, ok := s.listener.(*net.TCPListener); ok {
			tcpLn.SetDeadline(time.Now().Add(time.Second))
		}
		conn, err := s.listener.Accept()
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-s.stopCh:
				return
			default:
				continue
			}
		}

		go s.handleConn(conn)
	}
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(10 * time.Second))

	msg, err := protocol.ReadMessage(conn)
	if err != nil {
		return
	}

	respType, respPayload, err := s.dispatch(msg)
	if err != nil {
		s.logger.Warn("rejecting malformed RPC", "error", err.Error())
		return
	}

	protocol.WriteMessage(conn, respType, respPayload)
}

func (s *Server) dispatch(msg *protocol.Message) (protocol.MessageType, []byte, error) {
	switch msg.Header.Type {
	case protocol.MsgPreVoteRequest:
		req, err := protocol.DecodePreVoteRequest(msg.Payload)
		if err != nil {
			return 0, nil, err
		}
		resp := s.handler.HandlePreVoteRequest(req)
		return protocol.MsgPreVoteResponse, protocol.EncodePreVoteResponse(resp), nil

	case protocol.MsgVoteRequest:
		req, err := protocol.DecodeVoteRequest(msg.Payload)
		if err != nil {
			return 0, nil, err
		}
		resp := s.handler.HandleVoteRequest(req)
		return protocol.MsgVoteResponse, protocol.EncodeVoteResponse(resp), nil

	case protocol.MsgAppendEntries:
		req, err := protocol.DecodeAppendEntries(msg.Payload)
		if err != nil {
			return 0, nil, err
		}
		resp := s.handler.HandleAppendEntries(req)
		return protocol.MsgAppendEntriesResponse, protocol.EncodeAppendEntriesResponse(resp), nil

	case protocol.MsgPing:
		return protocol.MsgPong, nil, nil

	default:
		return 0, nil, fmt.Errorf("unsupported message type %x", msg.Header.Type)
	}
}

// Stop closes the listener and waits for the accept loop to exit. In-flight
// connections are allowed to finish on their own.
func (s *Server) Stop() error {
	close(s.stopCh)
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	<-s.doneCh
	return err
}

// Addr returns the server's bound address, valid after Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.addr
	}
	return s.listener.Addr().String()
}

// Client dials peers and issues Raft RPCs, one connection per call.
type Client struct {
	DialTimeout time.Duration
	RPCTimeout  time.Duration
	TLSConfig   *tls.Config // nil dials plain TCP
}

// NewClient returns a Client with reasonable default timeouts.
func NewClient() *Client {
	return &Client{
		DialTimeout: 500 * time.Millisecond,
		RPCTimeout:  2 * time.Second,
	}
}

func (c *Client) roundTrip(addr string, msgType protocol.MessageType, payload []byte) (*protocol.Message, error) {
	var conn net.Conn
	var err error
	if c.TLSConfig != nil {
		conn, err = tls.DialWithDialer(&net.Dialer{Timeout: c.DialTimeout}, "tcp", addr, c.TLSConfig)
	} else {
		conn, err = net.DialTimeout("tcp", addr, c.DialTimeout)
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(c.RPCTimeout))

	if err := protocol.WriteMessage(conn, msgType, payload); err != nil {
		return nil, fmt.Errorf("write request: %w", err)
	}

	resp, err := protocol.ReadMessage(conn)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}

// Ping issues a bare connectivity check against addr, without touching any
// raft.Node state on the remote end -- useful for discovery to confirm a
// node it heard about over mDNS is actually accepting RPC connections.
func (c *Client) Ping(addr string) error {
	_, err := c.roundTrip(addr, protocol.MsgPing, nil)
	return err
}

// SendPreVoteRequest issues a PreVote RPC to addr.
func (c *Client) SendPreVoteRequest(addr string, req *raft.PreVoteRequest) (*raft.PreVoteResponse, error) {
	resp, err := c.roundTrip(addr, protocol.MsgPreVoteRequest, protocol.EncodePreVoteRequest(req))
	if err != nil {
		return nil, err
	}
	return protocol.DecodePreVoteResponse(resp.Payload)
}

// SendVoteRequest issues a RequestVote RPC to addr.
func (c *Client) SendVoteRequest(addr string, req *raft.VoteRequest) (*raft.VoteResponse, error) {
	resp, err := c.roundTrip(addr, protocol.MsgVoteRequest, protocol.EncodeVoteRequest(req))
	if err != nil {
		return nil, err
	}
	return protocol.DecodeVoteResponse(resp.Payload)
}

// SendAppendEntries issues an AppendEntries RPC to addr.
func (c *Client) SendAppendEntries(addr string, req *raft.AppendEntries) (*raft.AppendEntriesResponse, error) {
	resp, err := c.roundTrip(addr, protocol.MsgAppendEntries, protocol.EncodeAppendEntries(req))
	if err != nil {
		return nil, err
	}
	return protocol.DecodeAppendEntriesResponse(resp.Payload)
}
