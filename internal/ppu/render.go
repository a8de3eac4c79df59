package ppu

// vramAdapter exposes the PPU's own VRAM/OAM to the fetcher/sprite helpers
// without the CPU-facing mode gating in CPURead (the PPU may always see its
// own memory while composing a scanline).
type vramAdapter struct{ p *PPU }

func (v vramAdapter) Read(addr uint16) byte { return v.p.internalRead(addr) }

func (p *PPU) internalRead(addr uint16) byte {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		return p.vram[addr-0x8000]
	case addr >= 0xFE00 && addr <= 0xFE9F:
		return p.oam[addr-0xFE00]
	default:
		return 0xFF
	}
}

var dmgShades = [4]uint32{0xFFFFFFFF, 0xFFAAAAAA, 0xFF555555, 0xFF000000}

// scanOAMForLine returns up to 10 sprites (OAM priority order preserved)
// covering scanline ly, with X/Y already translated to screen space.
func (p *PPU) scanOAMForLine(ly int, use8x16 bool) []Sprite {
	height := 8
	if use8x16 {
		height = 16
	}
	var out []Sprite
	for i := 0; i < 40; i++ {
		base := i * 4
		oy := int(p.oam[base+0]) - 16
		ox := int(p.oam[base+1]) - 8
		tile := p.oam[base+2]
		attr := p.oam[base+3]
		if ly >= oy && ly < oy+height {
			out = append(out, Sprite{X: ox, Y: oy, Tile: tile, Attr: attr, OAMIndex: i})
			if len(out) == 10 {
				break
			}
		}
	}
	return out
}

// renderLine composes BG, window, and sprite layers for scanline ly into the
// framebuffer, using the registers captured at that line's mode-3 entry.
func (p *PPU) renderLine(ly byte) {
	lr := p.lineCap[ly]
	adapter := vramAdapter{p}

	var bgci [160]byte
	if lr.LCDC&0x01 != 0 {
		mapBase := uint16(0x9800)
		if lr.LCDC&0x08 != 0 {
			mapBase = 0x9C00
		}
		tileData8000 := lr.LCDC&0x10 != 0
		bgci = RenderBGScanlineUsingFetcher(adapter, mapBase, tileData8000, lr.SCX, lr.SCY, ly)

		if lr.WindowActive {
			mapBaseWin := uint16(0x9800)
			if lr.LCDC&0x40 != 0 {
				mapBaseWin = 0x9C00
			}
			wxStart := int(lr.WX) - 7
			winRow := RenderWindowScanlineUsingFetcher(adapter, mapBaseWin, tileData8000, wxStart, lr.WinLine)
			start := wxStart
			if start < 0 {
				start = 0
			}
			for x := start; x < 160; x++ {
				bgci[x] = winRow[x]
			}
		}
	}

	var spriteRow [160]byte
	if lr.LCDC&0x02 != 0 {
		use8x16 := lr.LCDC&0x04 != 0
		sprites := p.scanOAMForLine(int(ly), use8x16)
		spriteRow = ComposeSpriteLine(adapter, sprites, ly, bgci, use8x16)
	}

	rowOff := int(ly) * 160
	for x := 0; x < 160; x++ {
		var ci, pal byte
		if spriteRow[x] != 0 {
			ci = spriteRow[x] & 0x03
			if (spriteRow[x]>>2)&1 == 1 {
				pal = lr.OBP1
			} else {
				pal = lr.OBP0
			}
		} else {
			ci = bgci[x]
			pal = lr.BGP
		}
		shade := (pal >> (ci * 2)) & 0x03
		p.fb[rowOff+x] = dmgShades[shade]
	}
}

// Framebuffer returns the current 160x144 ARGB8888 frame, row-major.
func (p *PPU) Framebuffer() []uint32 { return p.fb[:] }
