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
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"go.bug.st/serial"
)

// transportServer is satisfied by TCPServer, UDPServer and SerialServer.
type transportServer interface {
	Close() error
}

// Launcher parses transport descriptors, starts one server per descriptor
// against a shared Dispatcher, and coordinates cooperative shutdown (§4.12).
type Launcher struct {
	dispatcher *Dispatcher
	opts       []ServerOption
	logger     *slog.Logger
	unitID     UnitID

	mu      sync.Mutex
	servers []transportServer
	wg      sync.WaitGroup
}

// NewLauncher creates a Launcher that starts every transport against
// dispatcher, addressing serial transports as unitID.
func NewLauncher(dispatcher *Dispatcher, unitID UnitID, logger *slog.Logger, opts ...ServerOption) *Launcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Launcher{dispatcher: dispatcher, unitID: unitID, logger: logger, opts: opts}
}

// Add parses one transport descriptor of the form `tcp:HOST:PORT`,
// `udp:HOST:PORT` or `serial:PATH:BAUD-BITS-PARITY-STOPBITS`, binds or opens
// it synchronously, and starts serving it on its own goroutine. A bind or
// open failure is returned immediately and nothing is started.
func (l *Launcher) Add(descriptor string) error {
	kind, rest, ok := strings.Cut(descriptor, ":")
	if !ok {
		return fmt.Errorf("modbus: invalid transport descriptor %q", descriptor)
	}

	switch kind {
	case "tcp":
		listener, err := net.Listen("tcp", rest)
		if err != nil {
			return fmt.Errorf("modbus: bind tcp %s: %w", rest, err)
		}
		server := NewTCPServer(l.dispatcher, l.opts...)
		l.track(server)
		l.logger.Info("transport started", slog.String("kind", "tcp"), slog.String("addr", listener.Addr().String()))
		go func() {
			defer l.wg.Done()
			if err := server.Serve(listener); err != nil {
				l.logger.Error("tcp transport stopped", slog.String("error", err.Error()))
			}
		}()

	case "udp":
		udpAddr, err := net.ResolveUDPAddr("udp", rest)
		if err != nil {
			return fmt.Errorf("modbus: resolve udp %s: %w", rest, err)
		}
		conn, err := net.ListenUDP("udp", udpAddr)
		if err != nil {
			return fmt.Errorf("modbus: bind udp %s: %w", rest, err)
		}
		server := NewUDPServer(l.dispatcher, l.opts...)
		l.track(server)
		l.logger.Info("transport started", slog.String("kind", "udp"), slog.String("addr", conn.LocalAddr().String()))
		go func() {
			defer l.wg.Done()
			if err := server.Serve(conn); err != nil {
				l.logger.Error("udp transport stopped", slog.String("error", err.Error()))
			}
		}()

	case "serial":
		path, modeDescriptor, ok := strings.Cut(rest, ":")
		if !ok {
			return fmt.Errorf("modbus: invalid serial descriptor %q, want PATH:BAUD-BITS-PARITY-STOPBITS", rest)
		}
		mode, err := ParseSerialMode(modeDescriptor)
		if err != nil {
			return err
		}
		port, err := serial.Open(path, &mode)
		if err != nil {
			return fmt.Errorf("modbus: open serial port %s: %w", path, err)
		}
		server := NewSerialServer(l.dispatcher, l.unitID, l.opts...)
		l.track(server)
		l.logger.Info("transport started", slog.String("kind", "serial"), slog.String("path", path))
		go func() {
			defer l.wg.Done()
			if err := server.Serve(port); err != nil {
				l.logger.Error("serial transport stopped", slog.String("error", err.Error()))
			}
		}()

	default:
		return fmt.Errorf("modbus: unknown transport kind %q", kind)
	}

	return nil
}

func (l *Launcher) track(s transportServer) {
	l.mu.Lock()
	l.servers = append(l.servers, s)
	l.mu.Unlock()
	l.wg.Add(1)
}

// Shutdown closes every running transport and blocks until their session
// goroutines have drained.
func (l *Launcher) Shutdown() {
	l.mu.Lock()
	servers := l.servers
	l.mu.Unlock()

	for _, s := range servers {
		s.Close()
	}
	l.wg.Wait()
}

// WaitForSignal blocks until SIGINT or SIGTERM is received, then shuts the
// launcher down.
func (l *Launcher) WaitForSignal() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	l.logger.Info("shutdown signal received")
	l.Shutdown()
}
