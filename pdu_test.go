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
	"bytes"
	"errors"
	"testing"
)

func TestDecodeReadRequest(t *testing.T) {
	pdu := []byte{byte(FuncReadHoldingRegisters), 0x00, 0x6B, 0x00, 0x03}
	req, err := decodeReadRequest(pdu)
	if err != nil {
		t.Fatal(err)
	}
	if req.Addr != 0x006B || req.Qty != 0x0003 {
		t.Fatalf("got %+v", req)
	}
}

func TestDecodeWriteSingleCoilRejectsBadValue(t *testing.T) {
	pdu := []byte{byte(FuncWriteSingleCoil), 0x00, 0x01, 0x12, 0x34}
	if _, _, err := decodeWriteSingleCoil(pdu); !errors.Is(err, ErrInvalidData) {
		t.Fatalf("expected ErrInvalidData, got %v", err)
	}
}

func TestDecodeWriteSingleCoilAcceptsOnOff(t *testing.T) {
	on := []byte{byte(FuncWriteSingleCoil), 0x00, 0x01, 0xFF, 0x00}
	addr, value, err := decodeWriteSingleCoil(on)
	if err != nil || addr != 1 || value != true {
		t.Fatalf("got addr=%d value=%v err=%v", addr, value, err)
	}
	off := []byte{byte(FuncWriteSingleCoil), 0x00, 0x01, 0x00, 0x00}
	_, value, err = decodeWriteSingleCoil(off)
	if err != nil || value != false {
		t.Fatalf("got value=%v err=%v", value, err)
	}
}

func TestDecodeWriteMultipleCoilsByteCountMismatch(t *testing.T) {
	pdu := []byte{byte(FuncWriteMultipleCoils), 0x00, 0x00, 0x00, 0x03, 0x02, 0x05, 0x00}
	if _, _, err := decodeWriteMultipleCoils(pdu); !errors.Is(err, ErrInvalidData) {
		t.Fatalf("expected ErrInvalidData, got %v", err)
	}
}

func TestDecodeWriteMultipleCoilsRoundTrip(t *testing.T) {
	pdu := []byte{byte(FuncWriteMultipleCoils), 0x00, 0x13, 0x00, 0x0A, 0x02, 0xCD, 0x01}
	addr, bits, err := decodeWriteMultipleCoils(pdu)
	if err != nil {
		t.Fatal(err)
	}
	if addr != 0x13 || len(bits) != 10 {
		t.Fatalf("addr=%d bits=%v", addr, bits)
	}
	want := []bool{true, false, true, true, false, false, true, true, true, false}
	for i, b := range want {
		if bits[i] != b {
			t.Fatalf("bit %d: want %v got %v", i, b, bits[i])
		}
	}
}

func TestDecodeWriteMultipleCoilsQuantityBound(t *testing.T) {
	// qty = 1969, one over MaxQuantityWriteCoils; rejected before the byte
	// count or payload are even inspected.
	pdu := []byte{byte(FuncWriteMultipleCoils), 0x00, 0x00, 0x07, 0xB1, 0xF7}
	if _, _, err := decodeWriteMultipleCoils(pdu); !errors.Is(err, ErrInvalidData) {
		t.Fatalf("expected ErrInvalidData for qty > 1968, got %v", err)
	}
}

func TestDecodeWriteMultipleRegistersRoundTrip(t *testing.T) {
	pdu := []byte{byte(FuncWriteMultipleRegisters), 0x00, 0x01, 0x00, 0x02, 0x04, 0x00, 0x0A, 0x01, 0x02}
	addr, values, err := decodeWriteMultipleRegisters(pdu)
	if err != nil {
		t.Fatal(err)
	}
	if addr != 1 || len(values) != 2 || values[0] != 0x000A || values[1] != 0x0102 {
		t.Fatalf("addr=%d values=%v", addr, values)
	}
}

func TestDecodeReadDeviceIDRejectsWrongMEIType(t *testing.T) {
	pdu := []byte{byte(FuncEncapsulatedInterface), 0x0D, 0x01, 0x00}
	if _, err := decodeReadDeviceID(pdu); !errors.Is(err, ErrInvalidData) {
		t.Fatalf("expected ErrInvalidData, got %v", err)
	}
}

func TestEncodeReadBitsResponse(t *testing.T) {
	got := encodeReadBitsResponse(FuncReadCoils, []bool{true, false, true, true, false, false, true, true, true, false})
	want := []byte{byte(FuncReadCoils), 0x02, 0xCD, 0x01}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %x, want %x", got, want)
	}
}

func TestEncodeReadRegistersResponse(t *testing.T) {
	got := encodeReadRegistersResponse(FuncReadHoldingRegisters, []uint16{0x000A, 0x0102})
	want := []byte{byte(FuncReadHoldingRegisters), 0x04, 0x00, 0x0A, 0x01, 0x02}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %x, want %x", got, want)
	}
}

func TestEncodeWriteSingleResponseEchoesRequest(t *testing.T) {
	pdu := []byte{byte(FuncWriteSingleCoil), 0x00, 0x01, 0xFF, 0x00}
	got := encodeWriteSingleResponse(pdu)
	if !bytes.Equal(got, pdu) {
		t.Fatalf("got %x, want echo of %x", got, pdu)
	}
	// Must be a copy, not an alias.
	got[0] = 0xFF
	if pdu[0] == 0xFF {
		t.Fatal("encodeWriteSingleResponse aliased the input PDU")
	}
}

func TestEncodeException(t *testing.T) {
	got := encodeException(FuncReadHoldingRegisters, ExceptionIllegalDataAddress)
	want := []byte{0x83, 0x02}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %x, want %x", got, want)
	}
}

func TestEncodeReadDeviceIDResponse(t *testing.T) {
	objects := []deviceObject{
		{ID: DeviceObjectVendorName, Value: []byte("Edgeo SCADA")},
	}
	got := encodeReadDeviceIDResponse(DeviceIDBasic, objects)
	if got[0] != byte(FuncEncapsulatedInterface) || got[1] != MEITypeReadDeviceID {
		t.Fatalf("bad header: %x", got[:2])
	}
	if got[3] != ConformityBasic || got[4] != 0x00 || got[5] != 0x00 {
		t.Fatalf("bad conformity/more-follows/next-id: %x", got[3:6])
	}
	if got[6] != 1 {
		t.Fatalf("expected 1 object, got %d", got[6])
	}
}
