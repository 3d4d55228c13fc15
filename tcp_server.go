// Copyright 2025 Edgeo SCADA
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package modbus

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// TCPServer is a Modbus TCP slave. Each accepted connection runs its own
// session goroutine that decodes MBAP frames, hands the PDU to a shared
// Dispatcher, and writes the response back before reading the next frame
// (§4.5, §5's per-connection ordering guarantee).
type TCPServer struct {
	dispatcher *Dispatcher
	opts       *serverOptions

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   int32
	wg       sync.WaitGroup
}

// NewTCPServer creates a TCP slave serving requests through dispatcher.
func NewTCPServer(dispatcher *Dispatcher, opts ...ServerOption) *TCPServer {
	options := defaultServerOptions()
	for _, opt := range opts {
		opt(options)
	}
	return &TCPServer{
		dispatcher: dispatcher,
		opts:       options,
		conns:      make(map[net.Conn]struct{}),
	}
}

// ListenAndServe binds addr and serves until Close is called.
func (s *TCPServer) ListenAndServe(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(listener)
}

// ListenAndServeContext is ListenAndServe, but also closes the server when
// ctx is canceled.
func (s *TCPServer) ListenAndServeContext(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		s.Close()
	}()
	return s.Serve(listener)
}

// Serve accepts connections on listener until Close is called.
func (s *TCPServer) Serve(listener net.Listener) error {
	s.mu.Lock()
	if atomic.LoadInt32(&s.closed) == 1 {
		s.mu.Unlock()
		listener.Close()
		return nil
	}
	s.listener = listener
	s.mu.Unlock()
	s.opts.logger.Info("tcp server started", slog.String("addr", listener.Addr().String()))

	for {
		conn, err := listener.Accept()
		if err != nil {
			if atomic.LoadInt32(&s.closed) == 1 {
				return nil
			}
			s.opts.logger.Error("accept error", slog.String("error", err.Error()))
			continue
		}

		s.mu.Lock()
		if len(s.conns) >= s.opts.maxConns {
			s.mu.Unlock()
			s.opts.logger.Warn("max connections reached, rejecting",
				slog.String("remote", conn.RemoteAddr().String()))
			conn.Close()
			continue
		}
		s.conns[conn] = struct{}{}
		s.dispatcher.metrics.ActiveConns.Add(1)
		s.mu.Unlock()

		if tcpConn, ok := conn.(*net.TCPConn); ok {
			tcpConn.SetKeepAlive(true)
			tcpConn.SetKeepAlivePeriod(30 * time.Second)
			tcpConn.SetNoDelay(true)
		}

		s.wg.Add(1)
		go s.handleConn(conn)
	}
}

// Close shuts the server down, closing the listener and every open
// connection, and waits for their session goroutines to finish.
func (s *TCPServer) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}

	s.mu.Lock()
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	for conn := range s.conns {
		conn.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()
	s.opts.logger.Info("tcp server stopped")
	return err
}

// Addr returns the listener's address, or nil before Serve is called.
func (s *TCPServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr()
	}
	return nil
}

func (s *TCPServer) handleConn(conn net.Conn) {
	defer func() {
		s.wg.Done()
		conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.dispatcher.metrics.ActiveConns.Add(-1)
		s.mu.Unlock()
	}()

	s.opts.logger.Debug("connection accepted", slog.String("remote", conn.RemoteAddr().String()))

	for {
		if atomic.LoadInt32(&s.closed) == 1 {
			return
		}

		if s.opts.readTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(s.opts.readTimeout))
		}

		frame, err := ReadFrame(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && atomic.LoadInt32(&s.closed) == 0 {
				if netErr, ok := err.(net.Error); !ok || !netErr.Timeout() {
					if errors.Is(err, ErrInvalidProtocol) || errors.Is(err, ErrInvalidLength) {
						s.opts.logger.Warn("fatal framing error, closing connection",
							slog.String("remote", conn.RemoteAddr().String()),
							slog.String("error", err.Error()))
					} else {
						s.opts.logger.Debug("read error",
							slog.String("remote", conn.RemoteAddr().String()),
							slog.String("error", err.Error()))
					}
				}
			}
			return
		}

		broadcast := frame.Header.UnitID == BroadcastUnit
		respPDU := s.dispatcher.Dispatch(frame.PDU, broadcast)

		if broadcast {
			continue
		}

		resp := &Frame{
			Header: MBAPHeader{
				TransactionID: frame.Header.TransactionID,
				ProtocolID:    ProtocolID,
				UnitID:        frame.Header.UnitID,
			},
			PDU: respPDU,
		}

		if s.opts.readTimeout > 0 {
			conn.SetWriteDeadline(time.Now().Add(s.opts.readTimeout))
		}
		if _, err := conn.Write(resp.Encode()); err != nil {
			s.opts.logger.Debug("write error",
				slog.String("remote", conn.RemoteAddr().String()),
				slog.String("error", err.Error()))
			return
		}
	}
}
