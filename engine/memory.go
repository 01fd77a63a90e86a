package engine

import (
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/rb2js"
	"github.com/wippyai/rb2js/errors"
)

// Memory wraps the module's linear memory with bounds-checked accessors.
type Memory struct {
	mem api.Memory
}

// Read returns a copy of length bytes at offset.
func (m *Memory) Read(offset, length uint32) ([]byte, error) {
	data, ok := m.mem.Read(offset, length)
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseMemory, offset, length)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *Memory) Write(offset uint32, data []byte) error {
	if !m.mem.Write(offset, data) {
		return errors.OutOfBounds(errors.PhaseMemory, offset, uint32(len(data)))
	}
	return nil
}

func (m *Memory) ReadU32(offset uint32) (uint32, error) {
	v, ok := m.mem.ReadUint32Le(offset)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseMemory, offset, 4)
	}
	return v, nil
}

func (m *Memory) WriteU32(offset, value uint32) error {
	if !m.mem.WriteUint32Le(offset, value) {
		return errors.OutOfBounds(errors.PhaseMemory, offset, 4)
	}
	return nil
}

// Zero clears length bytes at offset.
func (m *Memory) Zero(offset, length uint32) error {
	return m.Write(offset, make([]byte, length))
}

// Size reports the current size of linear memory in bytes.
func (m *Memory) Size() uint32 {
	if m.mem == nil {
		return 0
	}
	return m.mem.Size()
}

var (
	_ rb2js.Memory      = (*Memory)(nil)
	_ rb2js.MemorySizer = (*Memory)(nil)
)
