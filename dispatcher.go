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
	"log/slog"
	"runtime/debug"
)

// Backend is the capability set a Modbus slave implementation must offer.
// There is one method per function category, taking typed addresses and
// quantities and returning either the requested data or an error. A
// returned *ProtocolError carries a specific exception code; any other
// error is reported to the master as SlaveDeviceFailure (0x04).
type Backend interface {
	ReadCoils(addr, qty uint16) ([]bool, error)
	ReadDiscreteInputs(addr, qty uint16) ([]bool, error)
	ReadHoldingRegisters(addr, qty uint16) ([]uint16, error)
	ReadInputRegisters(addr, qty uint16) ([]uint16, error)
	WriteSingleCoil(addr uint16, value bool) error
	WriteSingleRegister(addr, value uint16) error
	WriteMultipleCoils(addr uint16, values []bool) error
	WriteMultipleRegisters(addr uint16, values []uint16) error
	ReadDeviceIdentification(readCode, objectID uint8) ([]deviceObject, error)
}

// Dispatcher turns a decoded request PDU into a response PDU by validating
// bounds and calling the matching Backend method (§4.8). One Dispatcher is
// shared across every session of every transport.
type Dispatcher struct {
	backend Backend
	logger  *slog.Logger
	metrics *ServerMetrics
}

// NewDispatcher creates a Dispatcher over the given backend.
func NewDispatcher(backend Backend, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		backend: backend,
		logger:  logger,
		metrics: NewServerMetrics(),
	}
}

// Metrics returns the dispatcher's request/error counters.
func (d *Dispatcher) Metrics() *ServerMetrics {
	return d.metrics
}

// Dispatch processes one request PDU and returns the response PDU to send
// back. broadcast must be true when unit/slave id 0 addressed the request;
// per §4.8 rule 4, writes on a broadcast frame are still applied but the
// caller must not transmit the returned bytes.
func (d *Dispatcher) Dispatch(pdu []byte, broadcast bool) (resp []byte) {
	if len(pdu) < 1 {
		d.metrics.RequestsErrors.Add(1)
		return encodeException(0, ExceptionIllegalFunction)
	}

	fc := FunctionCode(pdu[0])
	d.metrics.RequestsTotal.Add(1)
	fm := d.metrics.ForFunction(fc)

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic in backend",
				slog.String("func", fc.String()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
			resp = encodeException(fc, ExceptionServerDeviceFailure)
		}
		if resp != nil && FunctionCode(resp[0]).IsException() {
			d.metrics.RequestsErrors.Add(1)
			fm.Errors.Add(1)
		} else if resp != nil {
			d.metrics.RequestsSuccess.Add(1)
		}
	}()

	fm.Requests.Add(1)
	resp = d.dispatch(fc, pdu, broadcast)
	return resp
}

func (d *Dispatcher) dispatch(fc FunctionCode, pdu []byte, broadcast bool) []byte {
	switch fc {
	case FuncReadCoils:
		return d.dispatchReadBits(fc, pdu, broadcast, d.backend.ReadCoils, MaxQuantityCoils)
	case FuncReadDiscreteInputs:
		return d.dispatchReadBits(fc, pdu, broadcast, d.backend.ReadDiscreteInputs, MaxQuantityDiscreteInputs)
	case FuncReadHoldingRegisters:
		return d.dispatchReadRegisters(fc, pdu, broadcast, d.backend.ReadHoldingRegisters, MaxQuantityRegisters)
	case FuncReadInputRegisters:
		return d.dispatchReadRegisters(fc, pdu, broadcast, d.backend.ReadInputRegisters, MaxQuantityRegisters)
	case FuncWriteSingleCoil:
		return d.dispatchWriteSingleCoil(pdu, broadcast)
	case FuncWriteSingleRegister:
		return d.dispatchWriteSingleRegister(pdu, broadcast)
	case FuncWriteMultipleCoils:
		return d.dispatchWriteMultipleCoils(pdu, broadcast)
	case FuncWriteMultipleRegisters:
		return d.dispatchWriteMultipleRegisters(pdu, broadcast)
	case FuncEncapsulatedInterface:
		return d.dispatchReadDeviceID(pdu)
	default:
		return encodeException(fc, ExceptionIllegalFunction)
	}
}

func (d *Dispatcher) dispatchReadBits(fc FunctionCode, pdu []byte, broadcast bool, read func(addr, qty uint16) ([]bool, error), maxQty uint16) []byte {
	req, err := decodeReadRequest(pdu)
	if err != nil {
		return encodeException(fc, ExceptionIllegalDataValue)
	}
	if req.Qty < 1 || req.Qty > maxQty {
		return encodeException(fc, ExceptionIllegalDataValue)
	}
	if addressSpaceOverflows(req.Addr, req.Qty) {
		return encodeException(fc, ExceptionIllegalDataAddress)
	}
	if broadcast {
		return nil
	}
	bits, err := read(req.Addr, req.Qty)
	if err != nil {
		return d.toException(fc, err)
	}
	return encodeReadBitsResponse(fc, bits)
}

func (d *Dispatcher) dispatchReadRegisters(fc FunctionCode, pdu []byte, broadcast bool, read func(addr, qty uint16) ([]uint16, error), maxQty uint16) []byte {
	req, err := decodeReadRequest(pdu)
	if err != nil {
		return encodeException(fc, ExceptionIllegalDataValue)
	}
	if req.Qty < 1 || req.Qty > maxQty {
		return encodeException(fc, ExceptionIllegalDataValue)
	}
	if addressSpaceOverflows(req.Addr, req.Qty) {
		return encodeException(fc, ExceptionIllegalDataAddress)
	}
	if broadcast {
		return nil
	}
	values, err := read(req.Addr, req.Qty)
	if err != nil {
		return d.toException(fc, err)
	}
	return encodeReadRegistersResponse(fc, values)
}

func (d *Dispatcher) dispatchWriteSingleCoil(pdu []byte, broadcast bool) []byte {
	addr, value, err := decodeWriteSingleCoil(pdu)
	if err != nil {
		return encodeException(FuncWriteSingleCoil, ExceptionIllegalDataValue)
	}
	if err := d.backend.WriteSingleCoil(addr, value); err != nil {
		return d.toException(FuncWriteSingleCoil, err)
	}
	if broadcast {
		return nil
	}
	return encodeWriteSingleResponse(pdu)
}

func (d *Dispatcher) dispatchWriteSingleRegister(pdu []byte, broadcast bool) []byte {
	addr, value, err := decodeWriteSingleRegister(pdu)
	if err != nil {
		return encodeException(FuncWriteSingleRegister, ExceptionIllegalDataValue)
	}
	if err := d.backend.WriteSingleRegister(addr, value); err != nil {
		return d.toException(FuncWriteSingleRegister, err)
	}
	if broadcast {
		return nil
	}
	return encodeWriteSingleResponse(pdu)
}

func (d *Dispatcher) dispatchWriteMultipleCoils(pdu []byte, broadcast bool) []byte {
	addr, bits, err := decodeWriteMultipleCoils(pdu)
	if err != nil {
		return encodeException(FuncWriteMultipleCoils, ExceptionIllegalDataValue)
	}
	if addressSpaceOverflows(addr, uint16(len(bits))) {
		return encodeException(FuncWriteMultipleCoils, ExceptionIllegalDataAddress)
	}
	if err := d.backend.WriteMultipleCoils(addr, bits); err != nil {
		return d.toException(FuncWriteMultipleCoils, err)
	}
	if broadcast {
		return nil
	}
	return encodeWriteMultipleResponse(FuncWriteMultipleCoils, addr, uint16(len(bits)))
}

func (d *Dispatcher) dispatchWriteMultipleRegisters(pdu []byte, broadcast bool) []byte {
	addr, values, err := decodeWriteMultipleRegisters(pdu)
	if err != nil {
		return encodeException(FuncWriteMultipleRegisters, ExceptionIllegalDataValue)
	}
	if addressSpaceOverflows(addr, uint16(len(values))) {
		return encodeException(FuncWriteMultipleRegisters, ExceptionIllegalDataAddress)
	}
	if err := d.backend.WriteMultipleRegisters(addr, values); err != nil {
		return d.toException(FuncWriteMultipleRegisters, err)
	}
	if broadcast {
		return nil
	}
	return encodeWriteMultipleResponse(FuncWriteMultipleRegisters, addr, uint16(len(values)))
}

func (d *Dispatcher) dispatchReadDeviceID(pdu []byte) []byte {
	req, err := decodeReadDeviceID(pdu)
	if err != nil {
		return encodeException(FuncEncapsulatedInterface, ExceptionIllegalDataValue)
	}
	objects, err := d.backend.ReadDeviceIdentification(req.ReadCode, req.ObjectID)
	if err != nil {
		return d.toException(FuncEncapsulatedInterface, err)
	}
	return encodeReadDeviceIDResponse(req.ReadCode, objects)
}

// toException maps a backend error to an exception response, defaulting to
// SlaveDeviceFailure for anything that isn't a *ProtocolError.
func (d *Dispatcher) toException(fc FunctionCode, err error) []byte {
	if pe, ok := err.(*ProtocolError); ok {
		return encodeException(fc, pe.ExceptionCode)
	}
	d.logger.Error("backend error", slog.String("func", fc.String()), slog.String("error", err.Error()))
	return encodeException(fc, ExceptionServerDeviceFailure)
}
