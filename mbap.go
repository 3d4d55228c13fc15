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
	"encoding/binary"
	"fmt"
	"io"
)

// MBAPHeader represents the Modbus Application Protocol header used by the
// TCP and UDP framings.
type MBAPHeader struct {
	TransactionID uint16 // echoed unchanged from the request
	ProtocolID    uint16 // always 0 for Modbus
	Length        uint16 // number of following bytes (unit id + PDU)
	UnitID        UnitID
}

// Encode encodes the MBAP header to bytes.
func (h *MBAPHeader) Encode() []byte {
	buf := make([]byte, MBAPHeaderSize)
	binary.BigEndian.PutUint16(buf[0:2], h.TransactionID)
	binary.BigEndian.PutUint16(buf[2:4], h.ProtocolID)
	binary.BigEndian.PutUint16(buf[4:6], h.Length)
	buf[6] = byte(h.UnitID)
	return buf
}

// Decode decodes the MBAP header from bytes.
func (h *MBAPHeader) Decode(data []byte) error {
	if len(data) < MBAPHeaderSize {
		return ErrTooShort
	}
	h.TransactionID = binary.BigEndian.Uint16(data[0:2])
	h.ProtocolID = binary.BigEndian.Uint16(data[2:4])
	h.Length = binary.BigEndian.Uint16(data[4:6])
	h.UnitID = UnitID(data[6])
	return nil
}

// Frame is a complete Modbus TCP/UDP frame: an MBAP header plus its PDU.
type Frame struct {
	Header MBAPHeader
	PDU    []byte
}

// Encode encodes the frame to bytes, recomputing the header's length field
// from the current PDU.
func (f *Frame) Encode() []byte {
	f.Header.Length = uint16(len(f.PDU) + 1) // PDU length + unit id
	header := f.Header.Encode()
	buf := make([]byte, MBAPHeaderSize+len(f.PDU))
	copy(buf, header)
	copy(buf[MBAPHeaderSize:], f.PDU)
	return buf
}

// Decode decodes a complete frame from a byte slice that already contains
// the header and the whole PDU (used by the UDP transport, which hands over
// one datagram at a time).
func (f *Frame) Decode(data []byte) error {
	if len(data) < MBAPHeaderSize {
		return ErrTooShort
	}
	if err := f.Header.Decode(data[:MBAPHeaderSize]); err != nil {
		return err
	}
	if f.Header.ProtocolID != ProtocolID {
		return ErrInvalidProtocol
	}
	pduLen := int(f.Header.Length) - 1 // length includes unit id
	if pduLen < 1 || pduLen > MaxPDUSize {
		return ErrInvalidLength
	}
	if len(data) < MBAPHeaderSize+pduLen {
		return ErrTooShort
	}
	f.PDU = make([]byte, pduLen)
	copy(f.PDU, data[MBAPHeaderSize:MBAPHeaderSize+pduLen])
	return nil
}

// ReadFrame reads one complete MBAP frame from a stream, as used by the TCP
// transport server. It blocks until the header and the declared PDU length
// have both arrived, or returns an error for a short read, a non-zero
// protocol id, or an out-of-range length field.
func ReadFrame(r io.Reader) (*Frame, error) {
	header := make([]byte, MBAPHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	var f Frame
	if err := f.Header.Decode(header); err != nil {
		return nil, err
	}

	if f.Header.ProtocolID != ProtocolID {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidProtocol, f.Header.ProtocolID)
	}

	pduLen := int(f.Header.Length) - 1
	if pduLen < 1 || pduLen > MaxPDUSize {
		return nil, fmt.Errorf("%w: pdu length %d", ErrInvalidLength, pduLen)
	}

	f.PDU = make([]byte, pduLen)
	if _, err := io.ReadFull(r, f.PDU); err != nil {
		return nil, err
	}

	return &f, nil
}

// DecodeDatagram decodes one UDP datagram as a single MBAP frame. Per §4.3,
// a truncated or oversized datagram is dropped rather than accumulated
// across datagrams.
func DecodeDatagram(data []byte) (*Frame, error) {
	var f Frame
	if err := f.Decode(data); err != nil {
		return nil, err
	}
	if len(data) != MBAPHeaderSize+len(f.PDU) {
		return nil, ErrInvalidLength
	}
	return &f, nil
}
