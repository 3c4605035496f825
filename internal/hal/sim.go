package hal

import (
	"fmt"
	"math"
	"sync"
)

// Sim is an in-memory Board used by tests and by rfacqd when no real board
// device is configured. It synthesizes a configurable reference-channel
// waveform and advances its write pointer by a fixed step each call, so the
// acquisition pipeline can be exercised without touching hardware.
type Sim struct {
	mu sync.Mutex

	triggerArmed bool
	wp           uint32

	decimation    int
	triggerDelay  int
	genAmp        float64
	genPhaseDeg   float64
	genFreqHz     float64
	genWaveform   []float32
	genEnabled    bool
	ao            map[int]float64

	// StepPerCall advances the simulated write pointer by this many samples
	// on every AcqGetWritePointer call, wrapping modulo HWRing.
	StepPerCall uint32

	// RefAmplitude/RefPhaseDeg/RefPeriod parameterise the synthesized
	// reference-channel sine fed back by AcqReadRaw.
	RefAmplitude float64
	RefPhaseDeg  float64
	RefPeriod    int
}

// NewSim returns a Sim with reasonable defaults: no pointer advance until the
// caller sets StepPerCall, a unit-amplitude reference sine.
func NewSim() *Sim {
	return &Sim{
		ao:           make(map[int]float64),
		RefAmplitude: 1,
		RefPeriod:    32,
	}
}

func (s *Sim) GenReset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.genAmp, s.genPhaseDeg, s.genFreqHz = 0, 0, 0
	s.genWaveform = nil
	s.genEnabled = false
	return nil
}

func (s *Sim) GenSetWaveform(samples []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.genWaveform = append([]float32(nil), samples...)
	return nil
}

func (s *Sim) GenSetFreq(hz float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.genFreqHz = hz
	return nil
}

func (s *Sim) GenSetAmp(volts float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.genAmp = volts
	return nil
}

func (s *Sim) GenSetPhaseDeg(deg float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.genPhaseDeg = deg
	return nil
}

func (s *Sim) GenEnable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.genEnabled = true
	return nil
}

func (s *Sim) GenDisable() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.genEnabled = false
	return nil
}

func (s *Sim) AcqReset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wp = 0
	return nil
}

func (s *Sim) AcqSetDecimation(d int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decimation = d
	return nil
}

func (s *Sim) AcqSetTriggerDelay(n int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triggerDelay = n
	return nil
}

func (s *Sim) AcqSetTriggerSrc(src TriggerSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if src == TriggerSrcExtPositiveEdge || src == TriggerSrcNow {
		s.triggerArmed = true
	}
	return nil
}

func (s *Sim) AcqStart() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triggerArmed = true
	return nil
}

func (s *Sim) AcqStop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.triggerArmed = false
	return nil
}

func (s *Sim) AcqGetWritePointer() (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wp = (s.wp + s.StepPerCall) % HWRing
	return s.wp, nil
}

// SetWritePointer parks the simulated write pointer at an arbitrary
// position, for tests that need to force a wrap at a specific offset rather
// than waiting for HWRing calls to reach it naturally.
func (s *Sim) SetWritePointer(wp uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wp = wp % HWRing
}

func (s *Sim) AcqGetTriggerState() (TriggerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.triggerArmed {
		return TriggerTriggered, nil
	}
	return TriggerIdle, nil
}

// AcqReadRaw synthesizes samples rather than reading real DMA memory: channel
// ChannelReference gets RefAmplitude*sin(2*pi*k/RefPeriod + RefPhaseDeg),
// ChannelMeasurement gets a smaller-amplitude copy, both scaled into int16
// counts. start_pos anchors the phase so repeated calls are continuous.
func (s *Sim) AcqReadRaw(ch Channel, startPos uint32, count int) ([]int16, error) {
	if count > HWRing {
		return nil, fmt.Errorf("hal/sim: read count %d exceeds HWRing %d", count, HWRing)
	}
	s.mu.Lock()
	amp, phase, period := s.RefAmplitude, s.RefPhaseDeg, s.RefPeriod
	s.mu.Unlock()
	if period <= 0 {
		period = 1
	}
	out := make([]int16, count)
	scale := amp
	if ch == ChannelMeasurement {
		scale = amp * 0.5
	}
	for i := 0; i < count; i++ {
		k := int(startPos) + i
		v := scale * math.Sin(2*math.Pi*float64(k)/float64(period)+phase*math.Pi/180)
		out[i] = int16(v * 10000)
	}
	return out, nil
}

func (s *Sim) DioSetDirection(pin int, dir PinDirection) error { return nil }

func (s *Sim) DioSet(pin int, high bool) error { return nil }

func (s *Sim) AoSet(channel int, volts float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ao[channel] = volts
	return nil
}

// AOValue returns the last value written to an AO channel, for tests.
func (s *Sim) AOValue(channel int) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ao[channel]
}

// GenAmp returns the last amplitude passed to GenSetAmp, for tests.
func (s *Sim) GenAmp() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.genAmp
}

// GenPhaseDeg returns the last phase passed to GenSetPhaseDeg, for tests.
func (s *Sim) GenPhaseDeg() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.genPhaseDeg
}
