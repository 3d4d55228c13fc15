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

import "sync"

// ExchangeBackend holds the four tables described in §3: a 65536-bit vector
// for coils, another for discrete inputs, and 65536-entry u16 arrays for
// holding and input registers. The tables are global to the process, not
// keyed by unit id, so that two masters on independent connections observe
// each other's writes through the same backend instance (§8.6).
type ExchangeBackend struct {
	mu                sync.RWMutex
	coils             []bool
	discreteInputs    []bool
	holdingRegisters  []uint16
	inputRegisters    []uint16
	vendorName        string
	productCode       string
	revision          string
}

// NewExchangeBackend creates an ExchangeBackend with all tables zeroed.
func NewExchangeBackend() *ExchangeBackend {
	return &ExchangeBackend{
		coils:            make([]bool, 65536),
		discreteInputs:   make([]bool, 65536),
		holdingRegisters: make([]uint16, 65536),
		inputRegisters:   make([]uint16, 65536),
		vendorName:       "Edgeo SCADA",
		productCode:      "SLAVE-EXCHANGE",
		revision:         "1.0",
	}
}

func (b *ExchangeBackend) ReadCoils(addr, qty uint16) ([]bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]bool, qty)
	copy(out, b.coils[addr:int(addr)+int(qty)])
	return out, nil
}

func (b *ExchangeBackend) ReadDiscreteInputs(addr, qty uint16) ([]bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]bool, qty)
	copy(out, b.discreteInputs[addr:int(addr)+int(qty)])
	return out, nil
}

func (b *ExchangeBackend) ReadHoldingRegisters(addr, qty uint16) ([]uint16, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]uint16, qty)
	copy(out, b.holdingRegisters[addr:int(addr)+int(qty)])
	return out, nil
}

func (b *ExchangeBackend) ReadInputRegisters(addr, qty uint16) ([]uint16, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]uint16, qty)
	copy(out, b.inputRegisters[addr:int(addr)+int(qty)])
	return out, nil
}

func (b *ExchangeBackend) WriteSingleCoil(addr uint16, value bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.coils[addr] = value
	return nil
}

func (b *ExchangeBackend) WriteSingleRegister(addr, value uint16) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.holdingRegisters[addr] = value
	return nil
}

func (b *ExchangeBackend) WriteMultipleCoils(addr uint16, values []bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	copy(b.coils[addr:], values)
	return nil
}

func (b *ExchangeBackend) WriteMultipleRegisters(addr uint16, values []uint16) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	copy(b.holdingRegisters[addr:], values)
	return nil
}

// ReadDeviceIdentification returns a fixed basic-conformity identification.
func (b *ExchangeBackend) ReadDeviceIdentification(readCode, objectID uint8) ([]deviceObject, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return []deviceObject{
		{ID: DeviceObjectVendorName, Value: []byte(b.vendorName)},
		{ID: DeviceObjectProductCode, Value: []byte(b.productCode)},
		{ID: DeviceObjectMajorMinorRevision, Value: []byte(b.revision)},
	}, nil
}

// SetDiscreteInput sets a discrete input directly; useful for seeding a
// scenario before masters connect.
func (b *ExchangeBackend) SetDiscreteInput(addr uint16, value bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.discreteInputs[addr] = value
}

// SetInputRegister sets an input register directly.
func (b *ExchangeBackend) SetInputRegister(addr, value uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.inputRegisters[addr] = value
}
