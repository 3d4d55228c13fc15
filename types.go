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

// Package modbus implements a Modbus slave (server) emulation stack: a PDU
// codec, MBAP/RTU framing codecs, TCP/UDP/serial transport servers and a
// pluggable backend contract that both shipped backends (random, exchange)
// satisfy.
package modbus

import "time"

// UnitID represents the Modbus unit identifier (slave address on a bus).
// UnitID 0 is reserved for broadcast.
type UnitID uint8

// FunctionCode represents a Modbus function code.
type FunctionCode uint8

const exceptionBit FunctionCode = 0x80

// Supported Modbus function codes.
const (
	FuncReadCoils              FunctionCode = 0x01
	FuncReadDiscreteInputs     FunctionCode = 0x02
	FuncReadHoldingRegisters   FunctionCode = 0x03
	FuncReadInputRegisters     FunctionCode = 0x04
	FuncWriteSingleCoil        FunctionCode = 0x05
	FuncWriteSingleRegister    FunctionCode = 0x06
	FuncWriteMultipleCoils     FunctionCode = 0x0F
	FuncWriteMultipleRegisters FunctionCode = 0x10
	FuncEncapsulatedInterface  FunctionCode = 0x2B
)

// MEI (MODBUS Encapsulated Interface) type carried by function 0x2B.
const MEITypeReadDeviceID uint8 = 0x0E

// Read Device Identification access codes (the "read device id code" field).
const (
	DeviceIDBasic    uint8 = 0x01
	DeviceIDRegular  uint8 = 0x02
	DeviceIDExtended uint8 = 0x03
	DeviceIDSingle   uint8 = 0x04
)

// ConformityBasic is the only conformity level this implementation offers.
const ConformityBasic uint8 = 0x01

// Mandatory Read Device Identification object ids.
const (
	DeviceObjectVendorName         uint8 = 0x00
	DeviceObjectProductCode        uint8 = 0x01
	DeviceObjectMajorMinorRevision uint8 = 0x02
)

// Protocol constants.
const (
	// MaxQuantityCoils is the maximum number of coils/discrete inputs per read.
	MaxQuantityCoils = 2000

	// MaxQuantityDiscreteInputs is the maximum number of discrete inputs per read.
	MaxQuantityDiscreteInputs = 2000

	// MaxQuantityWriteCoils is the maximum number of coils per multi-write.
	MaxQuantityWriteCoils = 1968

	// MaxQuantityRegisters is the maximum number of registers per read.
	MaxQuantityRegisters = 125

	// MaxQuantityWriteRegisters is the maximum number of registers per multi-write.
	MaxQuantityWriteRegisters = 123

	// MBAPHeaderSize is the size of the MBAP header in bytes.
	MBAPHeaderSize = 7

	// MaxPDUSize is the largest legal PDU, per the Modbus specification.
	MaxPDUSize = 253

	// ProtocolID is the Modbus protocol identifier (always 0 for Modbus).
	ProtocolID = 0

	// DefaultPort is the default Modbus TCP/UDP port.
	DefaultPort = 502

	// BroadcastUnit is the reserved unit id / slave address meaning broadcast.
	BroadcastUnit UnitID = 0

	// DefaultReadTimeout bounds how long a TCP session waits for the next frame.
	DefaultReadTimeout = 30 * time.Second
)

// Coil values as they appear on the wire for FC05.
const (
	CoilOn  uint16 = 0xFF00
	CoilOff uint16 = 0x0000
)

// addressSpaceOverflows reports whether addr+qty exceeds the 16-bit address space.
func addressSpaceOverflows(addr, qty uint16) bool {
	return uint32(addr)+uint32(qty) > 65536
}

// String returns the function code's mnemonic, or "Unknown" for unrecognized codes.
func (fc FunctionCode) String() string {
	switch fc &^ exceptionBit {
	case FuncReadCoils:
		return "ReadCoils"
	case FuncReadDiscreteInputs:
		return "ReadDiscreteInputs"
	case FuncReadHoldingRegisters:
		return "ReadHoldingRegisters"
	case FuncReadInputRegisters:
		return "ReadInputRegisters"
	case FuncWriteSingleCoil:
		return "WriteSingleCoil"
	case FuncWriteSingleRegister:
		return "WriteSingleRegister"
	case FuncWriteMultipleCoils:
		return "WriteMultipleCoils"
	case FuncWriteMultipleRegisters:
		return "WriteMultipleRegisters"
	case FuncEncapsulatedInterface:
		return "EncapsulatedInterface"
	default:
		return "Unknown"
	}
}

// IsException reports whether fc has the exception bit (0x80) set.
func (fc FunctionCode) IsException() bool {
	return fc&exceptionBit != 0
}
