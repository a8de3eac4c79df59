package apu

import "testing"

func TestAPU_SilenceWhenNR51Zero(t *testing.T) {
	a := New(48000)
	a.CPUWrite(0xFF25, 0x00) // NR51: route nothing anywhere
	a.CPUWrite(0xFF24, 0x77) // NR50: master volume up
	// Turn on channel 1 at max volume so there's something to (not) hear.
	a.CPUWrite(0xFF12, 0xF0) // NR12: vol=15, envelope down
	a.CPUWrite(0xFF14, 0x80) // NR14: trigger

	a.Tick(cpuHz / 100)

	for i, s := range a.sL {
		if s != 0 {
			t.Fatalf("sL[%d] = %d, want silence with NR51=0", i, s)
		}
	}
	for i, s := range a.sR {
		if s != 0 {
			t.Fatalf("sR[%d] = %d, want silence with NR51=0", i, s)
		}
	}
}

func TestAPU_SampleRateFixedPoint(t *testing.T) {
	a := New(44100)
	want := (int64(cpuHz) << 16) / 44100
	if a.cyclesPerSampleQ != want {
		t.Fatalf("cyclesPerSampleQ = %d, want %d", a.cyclesPerSampleQ, want)
	}

	a.CPUWrite(0xFF25, 0xFF)
	a.CPUWrite(0xFF24, 0x77)
	a.CPUWrite(0xFF12, 0xF0)
	a.CPUWrite(0xFF14, 0x80)

	// Tick a second of CPU cycles in small slices, draining the ring buffer
	// between slices so it never overflows, and count total frames produced.
	const slice = cpuHz / 256
	total := 0
	for done := 0; done < cpuHz; done += slice {
		a.Tick(slice)
		total += len(a.PullStereo(a.StereoAvailable())) / 2
	}
	// One second at 44100 Hz should produce ~44100 stereo frames, give or
	// take the rounding in the Q16.16 accumulator.
	if total < 44095 || total > 44105 {
		t.Fatalf("stereo frames produced in one second = %d, want ~44100", total)
	}
}

func TestAPU_PowerOffClearsState(t *testing.T) {
	a := New(48000)
	a.CPUWrite(0xFF12, 0xF0)
	a.CPUWrite(0xFF14, 0x80)
	if !a.ch1.enabled {
		t.Fatalf("channel 1 should be enabled after trigger")
	}
	a.CPUWrite(0xFF26, 0x00) // power off
	if a.enabled {
		t.Fatalf("APU should report disabled after NR52 power-off write")
	}
	if a.ch1.enabled {
		t.Fatalf("channel 1 should be cleared by power-off")
	}
}
