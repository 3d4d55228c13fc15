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
	"log/slog"
	"testing"
)

// panicBackend panics from ReadHoldingRegisters, used to exercise the
// dispatcher's panic-to-exception mapping.
type panicBackend struct{ ExchangeBackend }

func (b *panicBackend) ReadHoldingRegisters(addr, qty uint16) ([]uint16, error) {
	panic("boom")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, nil))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func TestDispatchReadHoldingRegisters(t *testing.T) {
	backend := NewExchangeBackend()
	backend.WriteSingleRegister(0, 0x1234)
	d := NewDispatcher(backend, discardLogger())

	pdu := []byte{byte(FuncReadHoldingRegisters), 0x00, 0x00, 0x00, 0x01}
	got := d.Dispatch(pdu, false)
	want := []byte{byte(FuncReadHoldingRegisters), 0x02, 0x12, 0x34}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %x, want %x", got, want)
	}
}

func TestDispatchUnknownFunctionIsIllegalFunction(t *testing.T) {
	d := NewDispatcher(NewExchangeBackend(), discardLogger())
	got := d.Dispatch([]byte{0x42}, false)
	want := []byte{0x42 | 0x80, byte(ExceptionIllegalFunction)}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %x, want %x", got, want)
	}
}

func TestDispatchQuantityOutOfBoundsIsIllegalDataValue(t *testing.T) {
	d := NewDispatcher(NewExchangeBackend(), discardLogger())
	pdu := []byte{byte(FuncReadHoldingRegisters), 0x00, 0x00, 0x00, 0x7E} // 126 > 125
	got := d.Dispatch(pdu, false)
	want := encodeException(FuncReadHoldingRegisters, ExceptionIllegalDataValue)
	if !bytes.Equal(got, want) {
		t.Fatalf("got %x, want %x", got, want)
	}
}

func TestDispatchAddressOverflowIsIllegalDataAddress(t *testing.T) {
	d := NewDispatcher(NewExchangeBackend(), discardLogger())
	pdu := []byte{byte(FuncReadHoldingRegisters), 0xFF, 0xFF, 0x00, 0x02} // addr 65535 + qty 2 overflows
	got := d.Dispatch(pdu, false)
	want := encodeException(FuncReadHoldingRegisters, ExceptionIllegalDataAddress)
	if !bytes.Equal(got, want) {
		t.Fatalf("got %x, want %x", got, want)
	}
}

func TestDispatchBroadcastSuppressesResponse(t *testing.T) {
	backend := NewExchangeBackend()
	d := NewDispatcher(backend, discardLogger())

	pdu := []byte{byte(FuncWriteSingleCoil), 0x00, 0x05, 0xFF, 0x00}
	got := d.Dispatch(pdu, true)
	if got != nil {
		t.Fatalf("expected nil response for broadcast, got %x", got)
	}

	coils, err := backend.ReadCoils(5, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !coils[0] {
		t.Fatal("broadcast write was not applied")
	}
}

func TestDispatchEchoesWriteSingleCoil(t *testing.T) {
	d := NewDispatcher(NewExchangeBackend(), discardLogger())
	pdu := []byte{byte(FuncWriteSingleCoil), 0x00, 0x05, 0xFF, 0x00}
	got := d.Dispatch(pdu, false)
	if !bytes.Equal(got, pdu) {
		t.Fatalf("got %x, want echo %x", got, pdu)
	}
}

func TestDispatchRecoversFromBackendPanic(t *testing.T) {
	d := NewDispatcher(&panicBackend{}, discardLogger())
	pdu := []byte{byte(FuncReadHoldingRegisters), 0x00, 0x00, 0x00, 0x01}
	got := d.Dispatch(pdu, false)
	want := encodeException(FuncReadHoldingRegisters, ExceptionServerDeviceFailure)
	if !bytes.Equal(got, want) {
		t.Fatalf("got %x, want %x", got, want)
	}
}

func TestDispatchMetricsCountSuccessAndErrors(t *testing.T) {
	d := NewDispatcher(NewExchangeBackend(), discardLogger())

	d.Dispatch([]byte{byte(FuncReadHoldingRegisters), 0x00, 0x00, 0x00, 0x01}, false)
	d.Dispatch([]byte{0x42}, false)

	m := d.Metrics()
	if m.RequestsSuccess.Value() != 1 {
		t.Fatalf("RequestsSuccess: got %d, want 1", m.RequestsSuccess.Value())
	}
	if m.RequestsErrors.Value() != 1 {
		t.Fatalf("RequestsErrors: got %d, want 1", m.RequestsErrors.Value())
	}
}

func TestDispatchReadDeviceIdentification(t *testing.T) {
	d := NewDispatcher(NewExchangeBackend(), discardLogger())
	pdu := []byte{byte(FuncEncapsulatedInterface), MEITypeReadDeviceID, DeviceIDBasic, 0x00}
	got := d.Dispatch(pdu, false)
	if got[0] != byte(FuncEncapsulatedInterface) || got[1] != MEITypeReadDeviceID {
		t.Fatalf("bad header: %x", got[:2])
	}
}
