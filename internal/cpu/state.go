package cpu

import (
	"bytes"
	"encoding/gob"
)

// cpuState is the gob-serializable view of CPU. Fault is intentionally not
// persisted: a save state taken while faulted is not a useful recovery point,
// and error values do not round-trip through gob.
type cpuState struct {
	A, F byte
	B, C byte
	D, E byte
	H, L byte
	SP   uint16
	PC   uint16

	IME       bool
	Halted    bool
	EIPending bool
	HaltBug   bool
}

// SaveState encodes the CPU's register file and scheduling flags.
func (c *CPU) SaveState() []byte {
	var buf bytes.Buffer
	s := cpuState{
		A: c.A, F: c.F, B: c.B, C: c.C, D: c.D, E: c.E, H: c.H, L: c.L,
		SP: c.SP, PC: c.PC,
		IME: c.IME, Halted: c.halted, EIPending: c.eiPending, HaltBug: c.haltBug,
	}
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

// LoadState restores a register file previously produced by SaveState.
func (c *CPU) LoadState(data []byte) {
	var s cpuState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	c.A, c.F, c.B, c.C, c.D, c.E, c.H, c.L = s.A, s.F, s.B, s.C, s.D, s.E, s.H, s.L
	c.SP, c.PC = s.SP, s.PC
	c.IME, c.halted, c.eiPending, c.haltBug = s.IME, s.Halted, s.EIPending, s.HaltBug
	c.Fault = nil
}
