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
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync/atomic"

	"go.bug.st/serial"
)

// SerialConfig describes how to open a serial port for RTU framing, e.g.
// the transport descriptor "9600-8-N-1" (baud-databits-parity-stopbits).
type SerialConfig struct {
	Path string
	Mode serial.Mode
}

// ParseSerialMode parses a "BAUD-BITS-PARITY-STOPBITS" descriptor such as
// "9600-8-N-1" into a serial.Mode, per §6's transport descriptor grammar.
func ParseSerialMode(descriptor string) (serial.Mode, error) {
	parts := strings.Split(descriptor, "-")
	if len(parts) != 4 {
		return serial.Mode{}, fmt.Errorf("modbus: invalid serial mode %q, want BAUD-BITS-PARITY-STOPBITS", descriptor)
	}

	baud, err := strconv.Atoi(parts[0])
	if err != nil {
		return serial.Mode{}, fmt.Errorf("modbus: invalid baud rate %q: %w", parts[0], err)
	}
	dataBits, err := strconv.Atoi(parts[1])
	if err != nil {
		return serial.Mode{}, fmt.Errorf("modbus: invalid data bits %q: %w", parts[1], err)
	}

	var parity serial.Parity
	switch strings.ToUpper(parts[2]) {
	case "N":
		parity = serial.NoParity
	case "E":
		parity = serial.EvenParity
	case "O":
		parity = serial.OddParity
	default:
		return serial.Mode{}, fmt.Errorf("modbus: invalid parity %q, want N/E/O", parts[2])
	}

	var stopBits serial.StopBits
	switch parts[3] {
	case "1":
		stopBits = serial.OneStopBit
	case "2":
		stopBits = serial.TwoStopBits
	default:
		return serial.Mode{}, fmt.Errorf("modbus: invalid stop bits %q, want 1/2", parts[3])
	}

	return serial.Mode{
		BaudRate: baud,
		DataBits: dataBits,
		Parity:   parity,
		StopBits: stopBits,
	}, nil
}

// SerialServer is a Modbus RTU slave on a serial line, addressed by unitID.
// Frames for other non-broadcast addresses are discarded without a
// response (§4.7).
type SerialServer struct {
	dispatcher *Dispatcher
	opts       *serverOptions
	unitID     UnitID

	port   serial.Port
	closed int32
}

// NewSerialServer creates an RTU slave answering to unitID, serving
// requests through dispatcher.
func NewSerialServer(dispatcher *Dispatcher, unitID UnitID, opts ...ServerOption) *SerialServer {
	options := defaultServerOptions()
	for _, opt := range opts {
		opt(options)
	}
	return &SerialServer{dispatcher: dispatcher, opts: options, unitID: unitID}
}

// ListenAndServe opens the serial port at cfg.Path with cfg.Mode and serves
// until Close is called.
func (s *SerialServer) ListenAndServe(cfg SerialConfig) error {
	port, err := serial.Open(cfg.Path, &cfg.Mode)
	if err != nil {
		return fmt.Errorf("modbus: open serial port %s: %w", cfg.Path, err)
	}
	return s.Serve(port)
}

// Serve reads RTU frames from port until Close is called.
func (s *SerialServer) Serve(port serial.Port) error {
	s.port = port
	s.opts.logger.Info("serial server started", slog.Uint64("unit_id", uint64(s.unitID)))

	if err := port.SetReadTimeout(s.opts.rtuIdleReset); err != nil {
		return fmt.Errorf("modbus: set read timeout: %w", err)
	}

	buf := make([]byte, 0, 256)
	chunk := make([]byte, 256)

	for {
		if atomic.LoadInt32(&s.closed) == 1 {
			return nil
		}

		n, err := port.Read(chunk)
		if err != nil {
			if atomic.LoadInt32(&s.closed) == 1 {
				return nil
			}
			s.opts.logger.Warn("serial read error", slog.String("error", err.Error()))
			return err
		}

		if n == 0 {
			// Read timeout elapsed with nothing new: the inactivity window
			// has closed, so any partial frame left over is stale.
			if len(buf) > 0 {
				s.opts.logger.Debug("discarding partial RTU frame after idle timeout", slog.Int("bytes", len(buf)))
				buf = buf[:0]
			}
			continue
		}

		buf = append(buf, chunk[:n]...)
		buf = s.tryConsumeFrame(buf)
	}
}

// tryConsumeFrame attempts to decode, dispatch and respond to as many
// complete RTU frames as buf currently holds, returning the leftover bytes
// that remain to be completed by a future read.
func (s *SerialServer) tryConsumeFrame(buf []byte) []byte {
	for {
		if len(buf) < 2 {
			return buf
		}

		pduLen, err := rtuRequestPDULen(buf[1:])
		if errors.Is(err, ErrTooShort) {
			return buf
		}
		if errors.Is(err, ErrUnknownFunction) {
			// Length inference is impossible for a function code outside
			// this implementation's scope; wait for the idle-reset timeout
			// to resynchronize rather than guessing a frame boundary.
			return buf
		}

		total := 1 + pduLen + 2 // slave address + PDU + CRC
		if len(buf) < total {
			return buf
		}

		s.handleFrame(buf[:total])
		buf = buf[total:]
	}
}

func (s *SerialServer) handleFrame(frame []byte) {
	slave, pdu, err := DecodeRTUFrame(frame)
	if err != nil {
		s.opts.logger.Debug("dropping RTU frame", slog.String("error", err.Error()))
		return
	}

	broadcast := slave == BroadcastUnit
	if !broadcast && slave != s.unitID {
		return
	}

	respPDU := s.dispatcher.Dispatch(pdu, broadcast)
	if broadcast {
		return
	}

	if _, err := s.port.Write(EncodeRTUFrame(slave, respPDU)); err != nil {
		s.opts.logger.Debug("serial write error", slog.String("error", err.Error()))
	}
}

// Close shuts the server down.
func (s *SerialServer) Close() error {
	if !atomic.CompareAndSwapInt32(&s.closed, 0, 1) {
		return nil
	}
	if s.port != nil {
		return s.port.Close()
	}
	return nil
}
