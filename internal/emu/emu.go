package emu

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nollgb/dmgcore/internal/bus"
	"github.com/nollgb/dmgcore/internal/cart"
	"github.com/nollgb/dmgcore/internal/cpu"
)

// cyclesPerFrame is the number of CPU T-cycles in one DMG frame: 154
// scanlines of 456 cycles each.
const cyclesPerFrame = 70224

// Buttons is the joypad state for a single frame.
type Buttons struct {
	A, B, Start, Select   bool
	Up, Down, Left, Right bool
}

// Input is the externally-facing name for a frame's button state.
type Input = Buttons

// FrameStats carries bookkeeping about the frame just produced.
type FrameStats struct {
	FrameIndex uint64
	Cycles     int
}

// Frame is a single rendered video/audio unit handed back by RunFrame.
type Frame struct {
	Pixels [160 * 144]uint32 // ARGB8888, row-major, index 0 is top-left
	Audio  []int16           // interleaved L,R at 44100 Hz
	Stats  FrameStats
}

// Machine ties together a CPU, Bus and cartridge into a runnable console.
type Machine struct {
	cfg Config

	cpu *cpu.CPU
	bus *bus.Bus

	romLoaded bool
	romPath   string
	bootROM   []byte

	frameIndex uint64

	// rgba is reused across Framebuffer() calls so it doesn't allocate
	// every frame.
	rgba []byte
}

// New constructs a Machine with no cartridge loaded. Call LoadROM (or
// LoadCartridge/LoadROMFromFile) before stepping frames.
func New(cfg Config) *Machine {
	return &Machine{cfg: cfg}
}

// supportedMapper reports whether cartType is a mapper NewCartridge actually
// emulates, as opposed to one it silently falls back to ROM-only for.
func supportedMapper(cartType byte) bool {
	switch cartType {
	case 0x00,
		0x01, 0x02, 0x03,
		0x0F, 0x10, 0x11, 0x12, 0x13,
		0x19, 0x1A, 0x1B, 0x1C, 0x1D, 0x1E:
		return true
	default:
		return false
	}
}

// LoadROM validates and loads a raw ROM image, wiring a fresh CPU and Bus.
// Any previously set boot ROM is re-applied to the new Bus.
func (m *Machine) LoadROM(rom []byte) error {
	if len(rom) == 0 {
		return &LoadError{Kind: LoadErrorEmptyROM}
	}
	h, err := cart.ParseHeader(rom)
	if err != nil {
		return &LoadError{Kind: LoadErrorTooSmall}
	}
	if !supportedMapper(h.CartType) {
		return &LoadError{Kind: LoadErrorUnsupportedMapper, Mapper: h.CartType}
	}

	b := bus.NewWithCartridge(cart.NewCartridge(rom))
	c := cpu.New(b)
	if len(m.bootROM) >= 0x100 {
		b.SetBootROM(m.bootROM)
		c.SetPC(0x0000)
	} else {
		c.ResetNoBoot()
		c.SetPC(0x0100)
		applyPostBootIO(b)
	}

	m.bus = b
	m.cpu = c
	m.romLoaded = true
	m.frameIndex = 0
	return nil
}

// applyPostBootIO writes the IO register values the DMG boot ROM leaves
// behind, for the no-boot-ROM startup path.
func applyPostBootIO(b *bus.Bus) {
	b.Write(0xFF00, 0xCF)
	b.Write(0xFF05, 0x00) // TIMA
	b.Write(0xFF06, 0x00) // TMA
	b.Write(0xFF07, 0x00) // TAC
	b.Write(0xFF40, 0x91) // LCDC on with BG, tile data at 0x8000, sprites off
	b.Write(0xFF42, 0x00) // SCY
	b.Write(0xFF43, 0x00) // SCX
	b.Write(0xFF45, 0x00) // LYC
	b.Write(0xFF47, 0xFC) // BGP
	b.Write(0xFF48, 0xFF) // OBP0
	b.Write(0xFF49, 0xFF) // OBP1
	b.Write(0xFF4A, 0x00) // WY
	b.Write(0xFF4B, 0x00) // WX
	b.Write(0xFFFF, 0x00) // IE
}

// LoadCartridge is a lower-level entry point taking both rom and an
// optional boot ROM image in one call.
func (m *Machine) LoadCartridge(rom []byte, boot []byte) error {
	if len(boot) >= 0x100 {
		m.bootROM = append([]byte(nil), boot...)
	}
	return m.LoadROM(rom)
}

// LoadROMFromFile reads rom from disk, loads it, and records the path so
// save-RAM and save-state files can be derived from it.
func (m *Machine) LoadROMFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := m.LoadROM(data); err != nil {
		return err
	}
	m.romPath = path
	return nil
}

// SetBootROM stashes a boot ROM image to be mapped in on the next LoadROM.
func (m *Machine) SetBootROM(data []byte) {
	if len(data) >= 0x100 {
		m.bootROM = append([]byte(nil), data...)
	}
}

// ROMPath returns the path LoadROMFromFile was called with, or "".
func (m *Machine) ROMPath() string { return m.romPath }

// ROMTitle returns the cartridge header title, or "" if nothing is loaded.
func (m *Machine) ROMTitle() string {
	if !m.romLoaded {
		return ""
	}
	h, err := cart.ParseHeader(m.readROMHeaderBytes())
	if err != nil {
		return ""
	}
	return h.Title
}

// readROMHeaderBytes reconstructs the 0x150-byte header region straight off
// the bus; the cartridge doesn't keep the raw image around for us to re-read.
func (m *Machine) readROMHeaderBytes() []byte {
	buf := make([]byte, 0x0150)
	for i := range buf {
		buf[i] = m.bus.Read(uint16(i))
	}
	return buf
}

// Reset re-applies post-boot register/IO state to the currently loaded
// cartridge without reloading it.
func (m *Machine) Reset() error {
	if !m.romLoaded {
		return &RuntimeError{Kind: RuntimeErrorRomNotLoaded}
	}
	m.cpu.ResetNoBoot()
	m.cpu.SetPC(0x0100)
	applyPostBootIO(m.bus)
	m.frameIndex = 0
	return nil
}

// ResetPostBoot is an alias for Reset kept for callers that spell it this way.
func (m *Machine) ResetPostBoot() error { return m.Reset() }

// ResetWithBoot restarts the machine at the boot ROM's entry point (PC=0x0000)
// if a boot ROM was supplied, falling back to a normal post-boot reset
// otherwise.
func (m *Machine) ResetWithBoot() error {
	if !m.romLoaded {
		return &RuntimeError{Kind: RuntimeErrorRomNotLoaded}
	}
	if len(m.bootROM) >= 0x100 {
		m.bus.SetBootROM(m.bootROM)
		m.cpu.SetPC(0x0000)
		m.frameIndex = 0
		return nil
	}
	return m.Reset()
}

// SetSerialWriter routes bytes written to the serial port (SB/SC) to w.
func (m *Machine) SetSerialWriter(w io.Writer) {
	if m.bus != nil {
		m.bus.SetSerialWriter(w)
	}
}

// SetButtons updates which joypad buttons are currently held.
func (m *Machine) SetButtons(btn Buttons) {
	if m.bus == nil {
		return
	}
	var mask byte
	if btn.A {
		mask |= bus.JoypA
	}
	if btn.B {
		mask |= bus.JoypB
	}
	if btn.Select {
		mask |= bus.JoypSelectBtn
	}
	if btn.Start {
		mask |= bus.JoypStart
	}
	if btn.Up {
		mask |= bus.JoypUp
	}
	if btn.Down {
		mask |= bus.JoypDown
	}
	if btn.Left {
		mask |= bus.JoypLeft
	}
	if btn.Right {
		mask |= bus.JoypRight
	}
	m.bus.SetJoypadState(mask)
}

// stepCycles runs the CPU for at least cyclesPerFrame T-cycles, stopping
// early (and surfacing a RuntimeError) on the first illegal opcode.
func (m *Machine) stepCycles() error {
	cycles := 0
	for cycles < cyclesPerFrame {
		cyc := m.cpu.Step()
		cycles += cyc
		if m.cpu.Fault != nil {
			if ioe, ok := m.cpu.Fault.(*cpu.IllegalOpcodeError); ok {
				return &RuntimeError{Kind: RuntimeErrorIllegalOpcode, PC: ioe.PC, Opcode: ioe.Opcode}
			}
			return &RuntimeError{Kind: RuntimeErrorInternalInvariant, Msg: m.cpu.Fault.Error()}
		}
	}
	return nil
}

// StepFrame advances emulation by one frame; the PPU composites its
// framebuffer as it goes, so this and StepFrameNoRender differ only in
// whether the caller intends to look at pixels afterward.
func (m *Machine) StepFrame() error {
	if !m.romLoaded {
		return &RuntimeError{Kind: RuntimeErrorRomNotLoaded}
	}
	err := m.stepCycles()
	m.frameIndex++
	return err
}

// StepFrameNoRender advances emulation by one frame. Headless throughput
// tests (blargg-style ROMs driven over serial) use this name to make clear
// they don't care about the framebuffer.
func (m *Machine) StepFrameNoRender() error {
	return m.StepFrame()
}

// RunFrame applies input, advances one frame, and returns the resulting
// pixels/audio/stats in a single call.
func (m *Machine) RunFrame(input Input) (Frame, error) {
	if !m.romLoaded {
		return Frame{}, &RuntimeError{Kind: RuntimeErrorRomNotLoaded}
	}
	m.SetButtons(input)
	if err := m.stepCycles(); err != nil {
		m.frameIndex++
		return Frame{}, err
	}
	m.frameIndex++

	var f Frame
	copy(f.Pixels[:], m.bus.PPU().Framebuffer())
	f.Audio = m.bus.APU().PullStereo(m.bus.APU().StereoAvailable())
	f.Stats = FrameStats{FrameIndex: m.frameIndex, Cycles: cyclesPerFrame}
	return f, nil
}

// Framebuffer returns the last composited frame as packed RGBA8888 bytes,
// suitable for handing straight to an ebiten.Image via WritePixels.
func (m *Machine) Framebuffer() []byte {
	if m.bus == nil {
		return nil
	}
	px := m.bus.PPU().Framebuffer()
	if cap(m.rgba) < len(px)*4 {
		m.rgba = make([]byte, len(px)*4)
	}
	m.rgba = m.rgba[:len(px)*4]
	for i, argb := range px {
		o := i * 4
		m.rgba[o+0] = byte(argb >> 16) // R
		m.rgba[o+1] = byte(argb >> 8)  // G
		m.rgba[o+2] = byte(argb)       // B
		m.rgba[o+3] = byte(argb >> 24) // A
	}
	return m.rgba
}

// LoadBattery restores external RAM from data, if the loaded cartridge has any.
func (m *Machine) LoadBattery(data []byte) bool {
	if m.bus == nil || len(data) == 0 {
		return false
	}
	bb, ok := m.bus.Cart().(cart.BatteryBacked)
	if !ok {
		return false
	}
	bb.LoadRAM(data)
	return true
}

// SaveBattery returns the loaded cartridge's external RAM, if it has any.
func (m *Machine) SaveBattery() ([]byte, bool) {
	if m.bus == nil {
		return nil, false
	}
	bb, ok := m.bus.Cart().(cart.BatteryBacked)
	if !ok {
		return nil, false
	}
	data := bb.SaveRAM()
	return data, len(data) > 0
}

// APUBufferedStereo returns the number of buffered stereo sample pairs
// waiting to be pulled.
func (m *Machine) APUBufferedStereo() int {
	if m.bus == nil {
		return 0
	}
	return m.bus.APU().StereoAvailable()
}

// APUPullStereo drains up to max buffered stereo frames as interleaved
// [L0,R0,L1,R1,...] int16 samples.
func (m *Machine) APUPullStereo(max int) []int16 {
	if m.bus == nil {
		return nil
	}
	return m.bus.APU().PullStereo(max)
}

// APUCapBufferedStereo drops buffered audio down to at most n frames; used
// by a host to bound playback latency after a pause or a slow frame.
func (m *Machine) APUCapBufferedStereo(n int) {
	if m.bus == nil {
		return
	}
	avail := m.bus.APU().StereoAvailable()
	if avail > n {
		m.bus.APU().PullStereo(avail - n)
	}
}

// APUClearAudioLatency drops all currently buffered audio.
func (m *Machine) APUClearAudioLatency() {
	if m.bus == nil {
		return
	}
	m.bus.APU().PullStereo(m.bus.APU().StereoAvailable())
}

// SetUseFetcherBG is accepted for config-surface compatibility; the fetcher
// path is the only background renderer this core implements.
func (m *Machine) SetUseFetcherBG(bool) {}

func stateFilePath(romPath string) string {
	ext := filepath.Ext(romPath)
	return romPath[:len(romPath)-len(ext)] + ".state"
}

// SaveStateToFile snapshots the machine and writes it to path. An empty
// path derives one from the loaded ROM's path.
func (m *Machine) SaveStateToFile(path string) error {
	if path == "" {
		if m.romPath == "" {
			return fmt.Errorf("save state: no path available")
		}
		path = stateFilePath(m.romPath)
	}
	return os.WriteFile(path, m.Snapshot(), 0o644)
}

// LoadStateFromFile restores a snapshot previously written by SaveStateToFile.
func (m *Machine) LoadStateFromFile(path string) error {
	if path == "" {
		if m.romPath == "" {
			return fmt.Errorf("load state: no path available")
		}
		path = stateFilePath(m.romPath)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return m.Restore(data)
}
