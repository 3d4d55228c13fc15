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
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
)

// UDPServer is a Modbus slave over UDP. Each datagram is decoded as one
// complete MBAP frame (§4.6); a malformed datagram is dropped silently and
// never accumulated with the next one.
type UDPServer struct {
	dispatcher *Dispatcher
	opts       *serverOptions

	mu     sync.Mutex
	conn   *net.UDPConn
	closed int32
}

// NewUDPServer creates a UDP slave serving requests through dispatcher.
func NewUDPServer(dispatcher *Dispatcher, opts ...ServerOption) *UDPServer {
	options := defaultServerOptions()
	for _, opt := range opts {
		opt(options)
	}
	return &UDPServer{dispatcher: dispatcher, opts: options}
}

// ListenAndServe binds addr and serves until Close is called.
func (s *UDPServer) ListenAndServe(addr string) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return err
	}
	return s.Serve(conn)
}

// ListenAndServeContext is ListenAndServe, but also closes the server when
// ctx is canceled.
func (s *UDPServer) ListenAndServeContext(ctx context.Context, addr string) error {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		s.Close()
	}()
	return s.Serve(conn)
}

// Serve reads datagrams from conn until Close is called.
func (s *UDPServer) Serve(conn *net.UDPConn) error {
	s.mu.Lock()
	if atomic.LoadInt32(&s.closed) == 1 {
		s.mu.Unlock()
		conn.Close()
		return nil
	}
	s.conn = conn
	s.mu.Unlock()
	s.opts.logger.Info("udp server started", slog.String("addr", conn.LocalAddr().String()))

	buf := make([]byte, MBAPHeaderSize+MaxPDUSize)
	for {
		n, remote, err := conn.ReadFromUDP(buf)
		if err != nil {
			if atomic.LoadInt32(&s.closed) == 1 {
				return nil
			}
			s.opts.logger.Warn("udp read error", slog.String("error", err.Error()))
			continue
		}

		frame, err := DecodeDatagram(buf[:n])
		if err != nil {
			s.opts.logger.Debug("dropping malformed datagram",
				slog.String("remote", remote.String()), slog.String("error", err.Error()))
			continue
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
		if _, err := conn.WriteToUDP(resp.Encode(), remote); err != nil {
			s.opts.logger.Debug("udp write error", slog.String("error", err.Error()))
		}
	}
}

// Close shuts the server down.
func (s *UDPServer) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// Addr returns the bound local address, or nil before Serve is called.
func (s *UDPServer) Addr() net.Addr {
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr()
}
