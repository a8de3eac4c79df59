package emu

import (
	"encoding/binary"
	"testing"
)

// buildROM makes a minimal ROM with a well-formed header. content, if set,
// is copied in starting at 0x0150 (right after the header).
func buildROM(cartType byte, size int, content []byte) []byte {
	rom := make([]byte, size)
	rom[0x0147] = cartType
	rom[0x0148] = 0x00 // 32 KiB, no banking needed for ROM-only
	rom[0x0149] = 0x00
	copy(rom[0x0134:0x0144], []byte("TESTROM"))
	var gsum uint16
	for i, b := range rom {
		if i == 0x014E || i == 0x014F {
			continue
		}
		gsum += uint16(b)
	}
	binary.BigEndian.PutUint16(rom[0x014E:0x0150], gsum)
	copy(rom[0x0150:], content)
	return rom
}

func TestLoadROM_Errors(t *testing.T) {
	m := New(Config{})

	if err := m.LoadROM(nil); err == nil {
		t.Fatalf("expected error loading empty rom")
	} else if le, ok := err.(*LoadError); !ok || le.Kind != LoadErrorEmptyROM {
		t.Fatalf("got %v, want LoadErrorEmptyROM", err)
	}

	if err := m.LoadROM(make([]byte, 0x10)); err == nil {
		t.Fatalf("expected error loading too-small rom")
	} else if le, ok := err.(*LoadError); !ok || le.Kind != LoadErrorTooSmall {
		t.Fatalf("got %v, want LoadErrorTooSmall", err)
	}

	bad := buildROM(0xFE, 0x8000, nil) // no mapper implements 0xFE
	if err := m.LoadROM(bad); err == nil {
		t.Fatalf("expected error loading unsupported mapper")
	} else if le, ok := err.(*LoadError); !ok || le.Kind != LoadErrorUnsupportedMapper || le.Mapper != 0xFE {
		t.Fatalf("got %v, want LoadErrorUnsupportedMapper(0xFE)", err)
	}
}

func TestRunFrame_NOPMarch(t *testing.T) {
	// Fill the ROM with NOPs after the header so the CPU just free-runs
	// without ever hitting an illegal opcode or looping into itself weirdly.
	content := make([]byte, 0x8000-0x0150)
	for i := range content {
		content[i] = 0x00
	}
	rom := buildROM(0x00, 0x8000, content)

	m := New(Config{})
	if err := m.LoadROM(rom); err != nil {
		t.Fatalf("LoadROM: %v", err)
	}

	f, err := m.RunFrame(Input{})
	if err != nil {
		t.Fatalf("RunFrame: %v", err)
	}
	if f.Stats.Cycles != cyclesPerFrame {
		t.Fatalf("Stats.Cycles = %d, want %d", f.Stats.Cycles, cyclesPerFrame)
	}
	if f.Stats.FrameIndex != 1 {
		t.Fatalf("Stats.FrameIndex = %d, want 1", f.Stats.FrameIndex)
	}
}

func TestRunFrame_IllegalOpcode(t *testing.T) {
	rom := buildROM(0x00, 0x8000, nil)
	rom[0x0100] = 0xD3 // illegal opcode, right at PC=0x0100

	m := New(Config{})
	if err := m.LoadROM(rom); err != nil {
		t.Fatalf("LoadROM: %v", err)
	}

	_, err := m.RunFrame(Input{})
	if err == nil {
		t.Fatalf("expected RuntimeError from illegal opcode")
	}
	re, ok := err.(*RuntimeError)
	if !ok || re.Kind != RuntimeErrorIllegalOpcode {
		t.Fatalf("got %v, want RuntimeErrorIllegalOpcode", err)
	}
	if re.PC != 0x0100 || re.Opcode != 0xD3 {
		t.Fatalf("got pc=%04X op=%02X, want pc=0100 op=D3", re.PC, re.Opcode)
	}
}

func TestRunFrame_NoROM(t *testing.T) {
	m := New(Config{})
	if _, err := m.RunFrame(Input{}); err == nil {
		t.Fatalf("expected RuntimeErrorRomNotLoaded")
	} else if re, ok := err.(*RuntimeError); !ok || re.Kind != RuntimeErrorRomNotLoaded {
		t.Fatalf("got %v, want RuntimeErrorRomNotLoaded", err)
	}
}

func TestSnapshotRestore_RoundTrip(t *testing.T) {
	content := make([]byte, 0x8000-0x0150)
	rom := buildROM(0x00, 0x8000, content)

	m := New(Config{})
	if err := m.LoadROM(rom); err != nil {
		t.Fatalf("LoadROM: %v", err)
	}
	if _, err := m.RunFrame(Input{}); err != nil {
		t.Fatalf("RunFrame: %v", err)
	}

	snap := m.Snapshot()
	if len(snap) == 0 {
		t.Fatalf("Snapshot returned empty data")
	}

	if _, err := m.RunFrame(Input{}); err != nil {
		t.Fatalf("RunFrame: %v", err)
	}
	if m.frameIndex != 2 {
		t.Fatalf("frameIndex = %d, want 2 before restore", m.frameIndex)
	}

	if err := m.Restore(snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if m.frameIndex != 1 {
		t.Fatalf("frameIndex = %d, want 1 after restoring a 1-frame snapshot", m.frameIndex)
	}
}

func TestFramebuffer_ARGBToRGBA(t *testing.T) {
	rom := buildROM(0x00, 0x8000, make([]byte, 0x8000-0x0150))
	m := New(Config{})
	if err := m.LoadROM(rom); err != nil {
		t.Fatalf("LoadROM: %v", err)
	}
	fb := m.Framebuffer()
	if len(fb) != 160*144*4 {
		t.Fatalf("Framebuffer length = %d, want %d", len(fb), 160*144*4)
	}

	if _, err := m.RunFrame(Input{}); err != nil {
		t.Fatalf("RunFrame: %v", err)
	}
	fb = m.Framebuffer()
	// After at least one scanline has been captured, every pixel must come
	// from the DMG shade table, which always sets the alpha byte to 0xFF.
	for i := 3; i < len(fb); i += 4 {
		if fb[i] != 0xFF {
			t.Fatalf("pixel alpha at byte %d = %02x, want ff", i, fb[i])
		}
	}
}
