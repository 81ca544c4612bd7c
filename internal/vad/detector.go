package vad

import (
	"encoding/binary"
	"math"

	"github.com/mirovoy/companion/internal/config"
)

// Detector is a pure-Go voice activity detector driven by RMS energy.
// Hysteresis (separate enter/exit thresholds plus consecutive-frame
// counts) keeps it from flickering between speech and silence on
// breath noise.
type Detector struct {
	speechThreshold  float64
	silenceThreshold float64
	speechFrames     int
	silenceFrames    int

	inSpeech     bool
	speechCount  int
	silenceCount int
}

// NewDetector builds a detector from configuration. Defaults are tuned
// for 16kHz mono 20ms frames.
func NewDetector(cfg config.VADConfig) *Detector {
	return &Detector{
		speechThreshold:  cfg.SpeechThreshold,
		silenceThreshold: cfg.SilenceThreshold,
		speechFrames:     cfg.SpeechFrames,
		silenceFrames:    cfg.SilenceFrames,
	}
}

// IsSpeech feeds one s16le PCM frame and reports whether the detector
// currently considers the stream to be inside a speech run.
func (d *Detector) IsSpeech(frame []byte) bool {
	level := rms(frame)

	if d.inSpeech {
		if level < d.silenceThreshold {
			d.silenceCount++
			d.speechCount = 0
			if d.silenceCount >= d.silenceFrames {
				d.inSpeech = false
				d.silenceCount = 0
			}
		} else {
			d.silenceCount = 0
		}
	} else {
		if level >= d.speechThreshold {
			d.speechCount++
			d.silenceCount = 0
			if d.speechCount >= d.speechFrames {
				d.inSpeech = true
				d.speechCount = 0
			}
		} else {
			d.speechCount = 0
		}
	}

	return d.inSpeech
}

// Reset clears the hysteresis state.
func (d *Detector) Reset() {
	d.inSpeech = false
	d.speechCount = 0
	d.silenceCount = 0
}

// rms computes the normalized root-mean-square level of an s16le
// frame, in [0, 1].
func rms(frame []byte) float64 {
	samples := len(frame) / 2
	if samples == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < samples; i++ {
		s := int16(binary.LittleEndian.Uint16(frame[i*2 : i*2+2]))
		v := float64(s) / math.MaxInt16
		sum += v * v
	}
	return math.Sqrt(sum / float64(samples))
}
