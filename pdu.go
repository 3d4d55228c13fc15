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

// readRequest is the decoded form of FC01-04: an address plus a quantity.
type readRequest struct {
	Addr uint16
	Qty  uint16
}

// decodeReadRequest decodes the common address+quantity shape shared by
// ReadCoils, ReadDiscreteInputs, ReadHoldingRegisters and ReadInputRegisters.
func decodeReadRequest(pdu []byte) (readRequest, error) {
	r := newReader(pdu[1:])
	addr, err := r.readUint16()
	if err != nil {
		return readRequest{}, err
	}
	qty, err := r.readUint16()
	if err != nil {
		return readRequest{}, err
	}
	return readRequest{Addr: addr, Qty: qty}, nil
}

// decodeWriteSingleCoil decodes FC05. The value field must be exactly
// CoilOn or CoilOff; any other value is a structural violation.
func decodeWriteSingleCoil(pdu []byte) (addr uint16, value bool, err error) {
	r := newReader(pdu[1:])
	addr, err = r.readUint16()
	if err != nil {
		return 0, false, err
	}
	raw, err := r.readUint16()
	if err != nil {
		return 0, false, err
	}
	switch raw {
	case CoilOn:
		return addr, true, nil
	case CoilOff:
		return addr, false, nil
	default:
		return 0, false, ErrInvalidData
	}
}

// decodeWriteSingleRegister decodes FC06.
func decodeWriteSingleRegister(pdu []byte) (addr, value uint16, err error) {
	r := newReader(pdu[1:])
	addr, err = r.readUint16()
	if err != nil {
		return 0, 0, err
	}
	value, err = r.readUint16()
	if err != nil {
		return 0, 0, err
	}
	return addr, value, nil
}

// decodeWriteMultipleCoils decodes FC0F, validating that the declared byte
// count matches ceil(qty/8).
func decodeWriteMultipleCoils(pdu []byte) (addr uint16, bits []bool, err error) {
	r := newReader(pdu[1:])
	addr, err = r.readUint16()
	if err != nil {
		return 0, nil, err
	}
	qty, err := r.readUint16()
	if err != nil {
		return 0, nil, err
	}
	byteCount, err := r.readUint8()
	if err != nil {
		return 0, nil, err
	}
	if qty == 0 || qty > MaxQuantityWriteCoils {
		return 0, nil, ErrInvalidData
	}
	if int(byteCount) != (int(qty)+7)/8 {
		return 0, nil, ErrInvalidData
	}
	data, err := r.readBytes(int(byteCount))
	if err != nil {
		return 0, nil, err
	}
	return addr, unpackBits(data, int(qty)), nil
}

// decodeWriteMultipleRegisters decodes FC10, validating that the declared
// byte count matches 2*qty.
func decodeWriteMultipleRegisters(pdu []byte) (addr uint16, values []uint16, err error) {
	r := newReader(pdu[1:])
	addr, err = r.readUint16()
	if err != nil {
		return 0, nil, err
	}
	qty, err := r.readUint16()
	if err != nil {
		return 0, nil, err
	}
	byteCount, err := r.readUint8()
	if err != nil {
		return 0, nil, err
	}
	if qty == 0 || qty > MaxQuantityWriteRegisters {
		return 0, nil, ErrInvalidData
	}
	if int(byteCount) != int(qty)*2 {
		return 0, nil, ErrInvalidData
	}
	data, err := r.readBytes(int(byteCount))
	if err != nil {
		return 0, nil, err
	}
	values = make([]uint16, qty)
	vr := newReader(data)
	for i := range values {
		values[i], _ = vr.readUint16()
	}
	return addr, values, nil
}

// deviceIDRequest is the decoded form of FC2B/0x0E Read Device Identification.
type deviceIDRequest struct {
	MEIType   uint8
	ReadCode  uint8
	ObjectID  uint8
}

func decodeReadDeviceID(pdu []byte) (deviceIDRequest, error) {
	r := newReader(pdu[1:])
	meiType, err := r.readUint8()
	if err != nil {
		return deviceIDRequest{}, err
	}
	readCode, err := r.readUint8()
	if err != nil {
		return deviceIDRequest{}, err
	}
	objectID, err := r.readUint8()
	if err != nil {
		return deviceIDRequest{}, err
	}
	if meiType != MEITypeReadDeviceID {
		return deviceIDRequest{}, ErrInvalidData
	}
	return deviceIDRequest{MEIType: meiType, ReadCode: readCode, ObjectID: objectID}, nil
}

// deviceObject is one (id, value) pair in a Read Device Identification reply.
type deviceObject struct {
	ID    uint8
	Value []byte
}

// encodeReadBitsResponse encodes the response to FC01/FC02.
func encodeReadBitsResponse(fc FunctionCode, bits []bool) []byte {
	packed := packBits(bits)
	w := newWriter(2 + len(packed))
	w.writeUint8(uint8(fc))
	w.writeUint8(uint8(len(packed)))
	w.writeBytes(packed)
	return w.bytes()
}

// encodeReadRegistersResponse encodes the response to FC03/FC04.
func encodeReadRegistersResponse(fc FunctionCode, values []uint16) []byte {
	w := newWriter(2 + len(values)*2)
	w.writeUint8(uint8(fc))
	w.writeUint8(uint8(len(values) * 2))
	for _, v := range values {
		w.writeUint16(v)
	}
	return w.bytes()
}

// encodeWriteSingleResponse encodes the echo response to FC05/FC06: the
// request PDU, byte-for-byte.
func encodeWriteSingleResponse(pdu []byte) []byte {
	out := make([]byte, len(pdu))
	copy(out, pdu)
	return out
}

// encodeWriteMultipleResponse encodes the response to FC0F/FC10.
func encodeWriteMultipleResponse(fc FunctionCode, addr, qty uint16) []byte {
	w := newWriter(5)
	w.writeUint8(uint8(fc))
	w.writeUint16(addr)
	w.writeUint16(qty)
	return w.bytes()
}

// encodeException encodes an exception reply: function code with its high
// bit set, followed by the exception code.
func encodeException(fc FunctionCode, ec ExceptionCode) []byte {
	return []byte{byte(fc) | byte(exceptionBit), byte(ec)}
}

// encodeReadDeviceIDResponse encodes a single-response, basic-conformity
// Read Device Identification reply (§4.2): conformity level, more-follows
// and next-object-id are always zero/basic since streaming is not offered.
func encodeReadDeviceIDResponse(readCode uint8, objects []deviceObject) []byte {
	w := newWriter(8)
	w.writeUint8(uint8(FuncEncapsulatedInterface))
	w.writeUint8(MEITypeReadDeviceID)
	w.writeUint8(readCode)
	w.writeUint8(ConformityBasic)
	w.writeUint8(0x00) // more follows
	w.writeUint8(0x00) // next object id
	w.writeUint8(uint8(len(objects)))
	for _, obj := range objects {
		w.writeUint8(obj.ID)
		w.writeUint8(uint8(len(obj.Value)))
		w.writeBytes(obj.Value)
	}
	return w.bytes()
}
