package vad

import (
	"bytes"

	"github.com/mirovoy/companion/internal/config"
)

// Segmenter turns a continuous frame stream into bounded utterances:
// it buffers a short preroll so the first syllable is not clipped,
// accumulates frames while the detector reports speech, and emits the
// whole segment once the speech run ends.
type Segmenter struct {
	detector *Detector
	preroll  int

	prebuf  [][]byte
	segment bytes.Buffer
	active  bool
}

// NewSegmenter builds a segmenter over a fresh detector.
func NewSegmenter(cfg config.VADConfig) *Segmenter {
	return &Segmenter{
		detector: NewDetector(cfg),
		preroll:  cfg.PrerollFrames,
	}
}

// Push feeds one capture frame. When a speech run just ended, the
// complete utterance (preroll included) is returned with ok=true;
// otherwise ok is false.
func (s *Segmenter) Push(frame []byte) (utterance []byte, ok bool) {
	speaking := s.detector.IsSpeech(frame)

	switch {
	case speaking && !s.active:
		// Speech started: replay the preroll into the segment.
		s.active = true
		s.segment.Reset()
		for _, pre := range s.prebuf {
			s.segment.Write(pre)
		}
		s.prebuf = s.prebuf[:0]
		s.segment.Write(frame)

	case speaking:
		s.segment.Write(frame)

	case s.active:
		// Speech just ended: hand the segment over.
		s.active = false
		s.segment.Write(frame)
		utterance = make([]byte, s.segment.Len())
		copy(utterance, s.segment.Bytes())
		s.segment.Reset()
		return utterance, true

	default:
		s.pushPreroll(frame)
	}

	return nil, false
}

func (s *Segmenter) pushPreroll(frame []byte) {
	if s.preroll <= 0 {
		return
	}
	copied := make([]byte, len(frame))
	copy(copied, frame)
	s.prebuf = append(s.prebuf, copied)
	if len(s.prebuf) > s.preroll {
		s.prebuf = s.prebuf[1:]
	}
}

// Reset drops any partial segment and clears detector state.
func (s *Segmenter) Reset() {
	s.detector.Reset()
	s.prebuf = s.prebuf[:0]
	s.segment.Reset()
	s.active = false
}
