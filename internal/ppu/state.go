package ppu

import (
	"bytes"
	"encoding/gob"
)

type ppuState struct {
	VRAM [0x2000]byte
	OAM  [0xA0]byte

	LCDC, STAT, SCY, SCX, LY, LYC byte
	BGP, OBP0, OBP1, WY, WX       byte
	Dot                           int
	WinLineCounter                byte
}

// SaveState serializes PPU register/memory state for snapshot/restore.
// The framebuffer and per-line capture cache are not persisted: they are
// fully reconstructed from register state by the next rendered frame.
func (p *PPU) SaveState() []byte {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)
	s := ppuState{
		VRAM: p.vram, OAM: p.oam,
		LCDC: p.lcdc, STAT: p.stat, SCY: p.scy, SCX: p.scx, LY: p.ly, LYC: p.lyc,
		BGP: p.bgp, OBP0: p.obp0, OBP1: p.obp1, WY: p.wy, WX: p.wx,
		Dot: p.dot, WinLineCounter: p.winLineCounter,
	}
	_ = enc.Encode(s)
	return buf.Bytes()
}

func (p *PPU) LoadState(data []byte) {
	if len(data) == 0 {
		return
	}
	dec := gob.NewDecoder(bytes.NewReader(data))
	var s ppuState
	if err := dec.Decode(&s); err != nil {
		return
	}
	p.vram, p.oam = s.VRAM, s.OAM
	p.lcdc, p.stat, p.scy, p.scx, p.ly, p.lyc = s.LCDC, s.STAT, s.SCY, s.SCX, s.LY, s.LYC
	p.bgp, p.obp0, p.obp1, p.wy, p.wx = s.BGP, s.OBP0, s.OBP1, s.WY, s.WX
	p.dot, p.winLineCounter = s.Dot, s.WinLineCounter
}
