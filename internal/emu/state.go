package emu

import (
	"bytes"
	"encoding/gob"
)

// machineState wraps the CPU and Bus's own serialized blobs together with
// frame bookkeeping that lives above both of them.
type machineState struct {
	CPU        []byte
	Bus        []byte
	FrameIndex uint64
}

// Snapshot encodes the full machine state (registers, memory, cartridge
// banking/RAM, PPU and APU state) into a single opaque blob.
func (m *Machine) Snapshot() []byte {
	if m.bus == nil || m.cpu == nil {
		return nil
	}
	var buf bytes.Buffer
	s := machineState{
		CPU:        m.cpu.SaveState(),
		Bus:        m.bus.SaveState(),
		FrameIndex: m.frameIndex,
	}
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

// Restore replaces the current machine state with one produced by Snapshot.
// The cartridge must already be loaded (Restore does not recreate the Bus);
// restoring into a Machine with a different ROM loaded is undefined.
func (m *Machine) Restore(data []byte) error {
	if !m.romLoaded {
		return &RuntimeError{Kind: RuntimeErrorRomNotLoaded}
	}
	var s machineState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return &RuntimeError{Kind: RuntimeErrorInternalInvariant, Msg: err.Error()}
	}
	m.cpu.LoadState(s.CPU)
	m.bus.LoadState(s.Bus)
	m.frameIndex = s.FrameIndex
	return nil
}
