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

import "github.com/sigurn/crc16"

var rtuCRCTable = crc16.MakeTable(crc16.CRC16_MODBUS)

// crcOf returns the Modbus CRC-16 (polynomial 0xA001, initial 0xFFFF) of data.
func crcOf(data []byte) uint16 {
	return crc16.Checksum(data, rtuCRCTable)
}

// EncodeRTUFrame serializes slave + pdu and appends the CRC-16, little-endian
// on the wire, per §4.4.
func EncodeRTUFrame(slave UnitID, pdu []byte) []byte {
	body := make([]byte, 1+len(pdu))
	body[0] = byte(slave)
	copy(body[1:], pdu)

	crc := crcOf(body)
	out := make([]byte, len(body)+2)
	copy(out, body)
	out[len(body)] = byte(crc)      // low byte first
	out[len(body)+1] = byte(crc >> 8)
	return out
}

// DecodeRTUFrame validates and splits a complete RTU frame (slave address,
// PDU and its trailing CRC all present) into its slave address and PDU. A
// CRC mismatch yields ErrCRCMismatch; per §4.4/§7, the caller must discard
// the frame silently rather than answer it.
func DecodeRTUFrame(data []byte) (UnitID, []byte, error) {
	if len(data) < 1+1+2 { // slave + fc + crc, minimum possible frame
		return 0, nil, ErrTooShort
	}
	body := data[:len(data)-2]
	wantCRC := uint16(data[len(data)-2]) | uint16(data[len(data)-1])<<8
	if crcOf(body) != wantCRC {
		return 0, nil, ErrCRCMismatch
	}
	return UnitID(body[0]), body[1:], nil
}

// rtuRequestPDULen computes the total PDU length (including the function
// code byte) for a request starting with pdu[0] == function code, by
// inspecting only the self-describing fields of the request per §4.4's
// length-inference rule. It returns ErrTooShort when more bytes are needed
// to determine the length (only possible for the write-multiple family,
// whose byte-count field itself must be read first), and ErrUnknownFunction
// for any function code outside this implementation's scope — callers
// should then fall back to inactivity-based frame recovery.
func rtuRequestPDULen(pdu []byte) (int, error) {
	if len(pdu) < 1 {
		return 0, ErrTooShort
	}
	switch FunctionCode(pdu[0]) {
	case FuncReadCoils, FuncReadDiscreteInputs, FuncReadHoldingRegisters, FuncReadInputRegisters,
		FuncWriteSingleCoil, FuncWriteSingleRegister:
		return 5, nil
	case FuncEncapsulatedInterface:
		return 4, nil
	case FuncWriteMultipleCoils, FuncWriteMultipleRegisters:
		if len(pdu) < 6 {
			return 0, ErrTooShort
		}
		byteCount := int(pdu[5])
		return 6 + byteCount, nil
	default:
		return 0, ErrUnknownFunction
	}
}
