package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/mirovoy/companion/internal/analysis/emotion"
	"github.com/mirovoy/companion/internal/audio"
	"github.com/mirovoy/companion/internal/backend"
	"github.com/mirovoy/companion/internal/config"
	"github.com/mirovoy/companion/internal/model/chat"
	"github.com/mirovoy/companion/internal/vad"
)

// State is the controller's conversation state. Exactly one holds at
// any time; there are no independent boolean flags to fall out of
// sync.
type State int

const (
	// StateIdle means no conversation is running.
	StateIdle State = iota
	// StateListening means the microphone is live and the segmenter is
	// watching for an utterance.
	StateListening
	// StateProcessing means one captured utterance is at the backend.
	// No new listening cycle starts until it resolves.
	StateProcessing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateProcessing:
		return "processing"
	default:
		return "unknown"
	}
}

// errorReplyText is appended as a synthetic assistant message when a
// turn fails, mirroring what the backend would have said.
const errorReplyText = "Sorry, I had trouble processing that. Please try again."

// Microphone is the capture handle the controller owns for the
// lifetime of a conversation.
type Microphone interface {
	ReadFrame(p []byte) (int, error)
	Close() error
}

// MicrophoneOpener acquires the capture handle at session start.
// Acquisition failure keeps the controller Idle.
type MicrophoneOpener func() (Microphone, error)

// Uploader sends one WAV-wrapped utterance to the backend.
type Uploader interface {
	ProcessAudio(ctx context.Context, wavData []byte) (*backend.TurnResult, error)
}

// Player renders one audio reply to completion.
type Player interface {
	Play(ctx context.Context, data []byte) error
}

// Controller drives the conversation lifecycle:
// Idle -> Listening -> Processing -> (Listening | Idle). It owns the
// microphone and segmenter exclusively and keeps at most one upload in
// flight by construction (the capture loop is synchronous).
type Controller struct {
	audioCfg config.AudioConfig
	vadCfg   config.VADConfig

	openMic  MicrophoneOpener
	uploader Uploader
	player   Player

	transcript *chat.Transcript
	segmenter  *vad.Segmenter

	// OnMessage and OnStateChange are optional UI hooks. Set them
	// before the first Start; they are invoked without internal locks
	// held.
	OnMessage     func(chat.Message)
	OnStateChange func(State)

	mu      sync.Mutex
	state   State
	emotion string
	mic     Microphone
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewController wires the controller to its collaborators.
func NewController(audioCfg config.AudioConfig, vadCfg config.VADConfig, openMic MicrophoneOpener, uploader Uploader, player Player) *Controller {
	return &Controller{
		audioCfg:   audioCfg,
		vadCfg:     vadCfg,
		openMic:    openMic,
		uploader:   uploader,
		player:     player,
		transcript: chat.NewTranscript(),
		segmenter:  vad.NewSegmenter(vadCfg),
		state:      StateIdle,
		emotion:    string(emotion.Neutral),
	}
}

// Transcript exposes the session's message sequence.
func (c *Controller) Transcript() *chat.Transcript {
	return c.transcript
}

// State returns the current conversation state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Emotion returns the current emotion label, "neutral" by default.
func (c *Controller) Emotion() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.emotion
}

// Start transitions Idle -> Listening: it acquires the microphone,
// resets the segmenter, and launches the capture loop. Starting an
// already running conversation is a no-op. On acquisition failure the
// controller stays Idle and the error is returned for the UI to
// surface.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return nil
	}

	mic, err := c.openMic()
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("acquire microphone: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	c.mic = mic
	c.cancel = cancel
	c.done = make(chan struct{})
	c.segmenter.Reset()
	c.state = StateListening
	done := c.done
	c.mu.Unlock()

	c.notifyState(StateListening)
	go c.captureLoop(runCtx, mic, done)

	return nil
}

// Stop transitions any state to Idle and releases the microphone and
// detector. Idempotent. A turn already at the backend is abandoned via
// context cancellation.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.state == StateIdle && c.mic == nil {
		c.mu.Unlock()
		return
	}

	cancel := c.cancel
	mic := c.mic
	done := c.done
	c.cancel = nil
	c.mic = nil
	c.done = nil
	c.segmenter.Reset()
	c.state = StateIdle
	c.mu.Unlock()

	c.notifyState(StateIdle)

	if cancel != nil {
		cancel()
	}
	if mic != nil {
		_ = mic.Close()
	}
	if done != nil {
		<-done
	}
}

// releaseCapture returns the controller to Idle from inside the
// capture loop after the stream dies, so a later Start can reacquire
// the microphone. Unlike Stop it must not wait for the loop to exit.
func (c *Controller) releaseCapture() {
	c.mu.Lock()
	if c.state == StateIdle && c.mic == nil {
		c.mu.Unlock()
		return
	}
	cancel := c.cancel
	mic := c.mic
	c.cancel = nil
	c.mic = nil
	c.done = nil
	c.segmenter.Reset()
	c.state = StateIdle
	c.mu.Unlock()

	c.notifyState(StateIdle)
	if cancel != nil {
		cancel()
	}
	if mic != nil {
		_ = mic.Close()
	}
}

// captureLoop reads frames until the microphone closes or the session
// context ends. It runs utterance handling inline, so Processing
// blocks the next listening cycle by construction.
func (c *Controller) captureLoop(ctx context.Context, mic Microphone, done chan struct{}) {
	defer close(done)

	frame := make([]byte, c.audioCfg.FrameBytes())
	for {
		if ctx.Err() != nil {
			return
		}

		n, err := mic.ReadFrame(frame)
		if n > 0 {
			if segment, ok := c.pushFrame(frame[:n]); ok {
				c.handleUtterance(ctx, segment)
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				log.Printf("[session] capture stream failed: %v", err)
				c.failTurn()
			} else {
				log.Printf("[session] capture stream ended")
			}
			c.releaseCapture()
			return
		}
	}
}

func (c *Controller) pushFrame(frame []byte) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateListening {
		return nil, false
	}
	return c.segmenter.Push(frame)
}

// handleUtterance runs one turn: threshold check, upload, transcript
// updates, playback. Whatever happens, the controller leaves
// Processing before returning.
func (c *Controller) handleUtterance(ctx context.Context, segment []byte) {
	if len(segment) < c.vadCfg.MinUtteranceSize {
		log.Printf("[session] discarding %d byte segment below %d byte threshold", len(segment), c.vadCfg.MinUtteranceSize)
		return
	}

	if !c.enterProcessing() {
		return
	}
	defer c.exitProcessing()

	wavData := audio.EncodeWAV(segment, c.audioCfg.SampleRate)
	result, err := c.uploader.ProcessAudio(ctx, wavData)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Printf("[session] turn failed: %v", err)
		c.failTurn()
		return
	}

	label := strings.ToLower(strings.TrimSpace(result.Emotion))
	if !emotion.Known(label) {
		label = string(emotion.Analyze(result.Transcription, result.Response).Emotion)
	}

	c.mu.Lock()
	c.emotion = label
	c.mu.Unlock()

	c.appendMessage(chat.Message{Role: chat.RoleUser, Text: result.Transcription, Emotion: label})
	c.appendMessage(chat.Message{Role: chat.RoleAssistant, Text: result.Response, Emotion: label})

	replyAudio, err := result.ReplyAudio()
	if err != nil {
		log.Printf("[session] dropping undecodable reply audio: %v", err)
		c.appendMessage(chat.Message{
			Role:    chat.RoleAssistant,
			Text:    "(reply audio could not be played)",
			Emotion: string(emotion.Neutral),
		})
		return
	}
	if len(replyAudio) > 0 && c.player != nil {
		if err := c.player.Play(ctx, replyAudio); err != nil && ctx.Err() == nil {
			log.Printf("[session] reply playback failed: %v", err)
			c.appendMessage(chat.Message{
				Role:    chat.RoleAssistant,
				Text:    "(reply audio could not be played)",
				Emotion: string(emotion.Neutral),
			})
		}
	}
}

// enterProcessing moves Listening -> Processing, refusing when the
// conversation stopped meanwhile.
func (c *Controller) enterProcessing() bool {
	c.mu.Lock()
	if c.state != StateListening {
		c.mu.Unlock()
		return false
	}
	c.state = StateProcessing
	c.mu.Unlock()

	c.notifyState(StateProcessing)
	return true
}

// exitProcessing returns to Listening when the conversation is still
// active, Idle otherwise. Processing is never a resting state.
func (c *Controller) exitProcessing() {
	c.mu.Lock()
	if c.state != StateProcessing {
		c.mu.Unlock()
		return
	}
	next := StateIdle
	if c.mic != nil {
		next = StateListening
	}
	c.state = next
	c.mu.Unlock()

	c.notifyState(next)
}

// failTurn surfaces one failed exchange as a synthetic assistant
// message, per the no-retry error policy.
func (c *Controller) failTurn() {
	c.appendMessage(chat.Message{
		Role:    chat.RoleAssistant,
		Text:    errorReplyText,
		Emotion: string(emotion.Neutral),
	})
}

func (c *Controller) appendMessage(message chat.Message) {
	stored := c.transcript.Append(message)
	if c.OnMessage != nil {
		c.OnMessage(stored)
	}
}

func (c *Controller) notifyState(state State) {
	if c.OnStateChange != nil {
		c.OnStateChange(state)
	}
}
