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
	"math/rand"
	"sync"
)

// RandomBackend answers every read with freshly generated pseudo-random
// values and accepts every write without recording it (§4.10). Its RNG
// source is an explicit external collaborator the specification leaves
// unconstrained; this implementation seeds math/rand deterministically so
// that conformance runs are reproducible unless a caller supplies a
// different seed.
type RandomBackend struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomBackend creates a RandomBackend seeded with seed. Two backends
// built with the same seed produce the same sequence of responses.
func NewRandomBackend(seed int64) *RandomBackend {
	return &RandomBackend{rng: rand.New(rand.NewSource(seed))}
}

func (b *RandomBackend) ReadCoils(addr, qty uint16) ([]bool, error) {
	return b.randomBits(qty), nil
}

func (b *RandomBackend) ReadDiscreteInputs(addr, qty uint16) ([]bool, error) {
	return b.randomBits(qty), nil
}

func (b *RandomBackend) ReadHoldingRegisters(addr, qty uint16) ([]uint16, error) {
	return b.randomRegisters(qty), nil
}

func (b *RandomBackend) ReadInputRegisters(addr, qty uint16) ([]uint16, error) {
	return b.randomRegisters(qty), nil
}

func (b *RandomBackend) WriteSingleCoil(addr uint16, value bool) error {
	return nil
}

func (b *RandomBackend) WriteSingleRegister(addr, value uint16) error {
	return nil
}

func (b *RandomBackend) WriteMultipleCoils(addr uint16, values []bool) error {
	return nil
}

func (b *RandomBackend) WriteMultipleRegisters(addr uint16, values []uint16) error {
	return nil
}

// ReadDeviceIdentification returns a fixed basic-conformity identification,
// per the Open Question decision recorded in DESIGN.md: single response
// only, no streaming across multiple replies.
func (b *RandomBackend) ReadDeviceIdentification(readCode, objectID uint8) ([]deviceObject, error) {
	return []deviceObject{
		{ID: DeviceObjectVendorName, Value: []byte("Edgeo SCADA")},
		{ID: DeviceObjectProductCode, Value: []byte("SLAVE-RND")},
		{ID: DeviceObjectMajorMinorRevision, Value: []byte("1.0")},
	}, nil
}

func (b *RandomBackend) randomBits(qty uint16) []bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	bits := make([]bool, qty)
	for i := range bits {
		bits[i] = b.rng.Intn(2) == 1
	}
	return bits
}

func (b *RandomBackend) randomRegisters(qty uint16) []uint16 {
	b.mu.Lock()
	defer b.mu.Unlock()
	values := make([]uint16, qty)
	for i := range values {
		values[i] = uint16(b.rng.Intn(1 << 16))
	}
	return values
}
