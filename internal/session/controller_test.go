package session

import (
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/mirovoy/companion/internal/backend"
	"github.com/mirovoy/companion/internal/config"
	"github.com/mirovoy/companion/internal/model/chat"
)

func testAudioConfig() config.AudioConfig {
	return config.AudioConfig{SampleRate: 16000, FrameMs: 20}
}

func testVADConfig(minUtteranceSize int) config.VADConfig {
	return config.VADConfig{
		SpeechThreshold:  0.015,
		SilenceThreshold: 0.008,
		SpeechFrames:     2,
		SilenceFrames:    3,
		PrerollFrames:    2,
		MinUtteranceSize: minUtteranceSize,
	}
}

// scriptedMic feeds pre-built frames to the capture loop and unblocks
// readers when closed, the way killing ffmpeg ends its stdout stream.
type scriptedMic struct {
	frames  chan []byte
	closed  chan struct{}
	once    sync.Once
	failErr error // returned instead of io.EOF when the frame feed closes
}

func newScriptedMic() *scriptedMic {
	return &scriptedMic{
		frames: make(chan []byte, 64),
		closed: make(chan struct{}),
	}
}

func (m *scriptedMic) ReadFrame(p []byte) (int, error) {
	select {
	case frame, ok := <-m.frames:
		if !ok {
			if m.failErr != nil {
				return 0, m.failErr
			}
			return 0, io.EOF
		}
		return copy(p, frame), nil
	case <-m.closed:
		return 0, io.EOF
	}
}

func (m *scriptedMic) Close() error {
	m.once.Do(func() { close(m.closed) })
	return nil
}

func (m *scriptedMic) wasClosed() bool {
	select {
	case <-m.closed:
		return true
	default:
		return false
	}
}

type fakeUploader struct {
	mu       sync.Mutex
	requests [][]byte
	result   *backend.TurnResult
	err      error
	block    chan struct{}
}

func (u *fakeUploader) ProcessAudio(ctx context.Context, wavData []byte) (*backend.TurnResult, error) {
	u.mu.Lock()
	u.requests = append(u.requests, wavData)
	u.mu.Unlock()

	if u.block != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-u.block:
		}
	}
	if u.err != nil {
		return nil, u.err
	}
	return u.result, nil
}

func (u *fakeUploader) calls() [][]byte {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([][]byte(nil), u.requests...)
}

type fakePlayer struct {
	mu     sync.Mutex
	played [][]byte
	err    error
}

func (p *fakePlayer) Play(ctx context.Context, data []byte) error {
	p.mu.Lock()
	p.played = append(p.played, append([]byte(nil), data...))
	p.mu.Unlock()
	return p.err
}

func (p *fakePlayer) plays() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]byte(nil), p.played...)
}

func pcmFrame(amplitude int16, samples int) []byte {
	buf := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(amplitude))
	}
	return buf
}

// feedUtterance pushes a burst of loud frames followed by enough
// silence for the segmenter to emit one utterance.
func feedUtterance(mic *scriptedMic) {
	for i := 0; i < 10; i++ {
		mic.frames <- pcmFrame(3000, 320)
	}
	for i := 0; i < 3; i++ {
		mic.frames <- pcmFrame(50, 320)
	}
}

func waitState(t *testing.T, states <-chan State, want State) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case got := <-states:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %v", want)
		}
	}
}

func waitMessage(t *testing.T, messages <-chan chat.Message) chat.Message {
	t.Helper()
	select {
	case message := <-messages:
		return message
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a transcript message")
		return chat.Message{}
	}
}

func TestStartIsIdempotentWhileRunning(t *testing.T) {
	mic := newScriptedMic()
	opened := 0
	controller := NewController(testAudioConfig(), testVADConfig(4096), func() (Microphone, error) {
		opened++
		return mic, nil
	}, &fakeUploader{}, &fakePlayer{})

	if err := controller.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer controller.Stop()

	if err := controller.Start(context.Background()); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}
	if opened != 1 {
		t.Fatalf("microphone opened %d times, want 1", opened)
	}
	if got := controller.State(); got != StateListening {
		t.Fatalf("State() = %v, want %v", got, StateListening)
	}
}

func TestStartFailureStaysIdle(t *testing.T) {
	controller := NewController(testAudioConfig(), testVADConfig(4096), func() (Microphone, error) {
		return nil, errors.New("device busy")
	}, &fakeUploader{}, &fakePlayer{})

	if err := controller.Start(context.Background()); err == nil {
		t.Fatal("Start() succeeded without a microphone")
	}
	if got := controller.State(); got != StateIdle {
		t.Fatalf("State() = %v, want %v", got, StateIdle)
	}
}

func TestShortSegmentDiscarded(t *testing.T) {
	mic := newScriptedMic()
	uploader := &fakeUploader{}
	controller := NewController(testAudioConfig(), testVADConfig(1<<20), func() (Microphone, error) {
		return mic, nil
	}, uploader, &fakePlayer{})

	var mu sync.Mutex
	var transitions []State
	controller.OnStateChange = func(state State) {
		mu.Lock()
		transitions = append(transitions, state)
		mu.Unlock()
	}

	if err := controller.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	feedUtterance(mic)
	close(mic.frames)
	controller.Stop()

	if calls := uploader.calls(); len(calls) != 0 {
		t.Fatalf("uploaded %d segments, want 0", len(calls))
	}
	if got := controller.Transcript().Len(); got != 0 {
		t.Fatalf("transcript has %d messages, want 0", got)
	}
	mu.Lock()
	defer mu.Unlock()
	for _, state := range transitions {
		if state == StateProcessing {
			t.Fatal("short segment reached the processing state")
		}
	}
}

func TestUtteranceUploadedAndTranscribed(t *testing.T) {
	replyAudio := []byte("mp3-reply-bytes")
	mic := newScriptedMic()
	uploader := &fakeUploader{result: &backend.TurnResult{
		Transcription: "hi",
		Response:      "hello",
		Emotion:       "happy",
		Voice:         "nova",
		Audio:         base64.StdEncoding.EncodeToString(replyAudio),
	}}
	player := &fakePlayer{}
	controller := NewController(testAudioConfig(), testVADConfig(4096), func() (Microphone, error) {
		return mic, nil
	}, uploader, player)

	messages := make(chan chat.Message, 8)
	controller.OnMessage = func(message chat.Message) { messages <- message }

	if err := controller.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	feedUtterance(mic)

	userMessage := waitMessage(t, messages)
	assistantMessage := waitMessage(t, messages)
	controller.Stop()

	if userMessage.Role != chat.RoleUser || userMessage.Text != "hi" || userMessage.Emotion != "happy" {
		t.Fatalf("user message = %+v, want role %q text %q emotion %q", userMessage, chat.RoleUser, "hi", "happy")
	}
	if userMessage.ID == "" || userMessage.CreatedAt.IsZero() {
		t.Fatalf("user message missing identity fields: %+v", userMessage)
	}
	if assistantMessage.Role != chat.RoleAssistant || assistantMessage.Text != "hello" || assistantMessage.Emotion != "happy" {
		t.Fatalf("assistant message = %+v, want role %q text %q emotion %q", assistantMessage, chat.RoleAssistant, "hello", "happy")
	}
	if got := controller.Transcript().Len(); got != 2 {
		t.Fatalf("transcript has %d messages, want 2", got)
	}
	if got := controller.Emotion(); got != "happy" {
		t.Fatalf("Emotion() = %q, want %q", got, "happy")
	}

	calls := uploader.calls()
	if len(calls) != 1 {
		t.Fatalf("uploaded %d segments, want 1", len(calls))
	}
	wavData := calls[0]
	if len(wavData) <= 44 || string(wavData[:4]) != "RIFF" {
		t.Fatalf("upload payload is not a WAV file (%d bytes)", len(wavData))
	}
	if (len(wavData)-44)%640 != 0 {
		t.Fatalf("PCM payload of %d bytes is not frame aligned", len(wavData)-44)
	}

	plays := player.plays()
	if len(plays) != 1 || string(plays[0]) != string(replyAudio) {
		t.Fatalf("played %v, want the decoded reply audio once", plays)
	}
}

func TestUnknownEmotionFallsBackToKeywords(t *testing.T) {
	mic := newScriptedMic()
	uploader := &fakeUploader{result: &backend.TurnResult{
		Transcription: "i feel so sad and lonely today",
		Response:      "that sounds hard, I am here with you",
		Emotion:       "confused",
	}}
	controller := NewController(testAudioConfig(), testVADConfig(4096), func() (Microphone, error) {
		return mic, nil
	}, uploader, &fakePlayer{})

	messages := make(chan chat.Message, 8)
	controller.OnMessage = func(message chat.Message) { messages <- message }

	if err := controller.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	feedUtterance(mic)

	userMessage := waitMessage(t, messages)
	waitMessage(t, messages)
	controller.Stop()

	if userMessage.Emotion != "sad" {
		t.Fatalf("fallback emotion = %q, want %q", userMessage.Emotion, "sad")
	}
	if got := controller.Emotion(); got != "sad" {
		t.Fatalf("Emotion() = %q, want %q", got, "sad")
	}
}

func TestTurnFailureRecoversToListening(t *testing.T) {
	mic := newScriptedMic()
	uploader := &fakeUploader{err: errors.New("backend unavailable")}
	controller := NewController(testAudioConfig(), testVADConfig(4096), func() (Microphone, error) {
		return mic, nil
	}, uploader, &fakePlayer{})

	messages := make(chan chat.Message, 8)
	controller.OnMessage = func(message chat.Message) { messages <- message }
	states := make(chan State, 16)
	controller.OnStateChange = func(state State) { states <- state }

	if err := controller.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	waitState(t, states, StateListening)
	feedUtterance(mic)
	waitState(t, states, StateProcessing)

	errorMessage := waitMessage(t, messages)
	if errorMessage.Role != chat.RoleAssistant || errorMessage.Text != errorReplyText {
		t.Fatalf("error message = %+v, want assistant %q", errorMessage, errorReplyText)
	}
	if errorMessage.Emotion != "neutral" {
		t.Fatalf("error message emotion = %q, want %q", errorMessage.Emotion, "neutral")
	}

	waitState(t, states, StateListening)
	if got := controller.Transcript().Len(); got != 1 {
		t.Fatalf("transcript has %d messages, want 1", got)
	}
	controller.Stop()
	if got := controller.State(); got != StateIdle {
		t.Fatalf("State() = %v, want %v", got, StateIdle)
	}
}

func TestCaptureFailureReleasesSessionForRestart(t *testing.T) {
	first := newScriptedMic()
	first.failErr = errors.New("ffmpeg died")
	opened := 0
	controller := NewController(testAudioConfig(), testVADConfig(4096), func() (Microphone, error) {
		opened++
		if opened == 1 {
			return first, nil
		}
		return newScriptedMic(), nil
	}, &fakeUploader{}, &fakePlayer{})

	messages := make(chan chat.Message, 8)
	controller.OnMessage = func(message chat.Message) { messages <- message }
	states := make(chan State, 16)
	controller.OnStateChange = func(state State) { states <- state }

	if err := controller.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	close(first.frames) // capture stream dies mid-session

	errorMessage := waitMessage(t, messages)
	if errorMessage.Role != chat.RoleAssistant || errorMessage.Text != errorReplyText {
		t.Fatalf("error message = %+v, want assistant %q", errorMessage, errorReplyText)
	}
	waitState(t, states, StateIdle)
	if !first.wasClosed() {
		t.Fatal("dead microphone handle was not released")
	}

	// The session is restartable after the stream failure.
	if err := controller.Start(context.Background()); err != nil {
		t.Fatalf("restart after capture failure error = %v", err)
	}
	defer controller.Stop()
	if opened != 2 {
		t.Fatalf("microphone opened %d times, want 2", opened)
	}
	if got := controller.State(); got != StateListening {
		t.Fatalf("State() after restart = %v, want %v", got, StateListening)
	}
}

func TestBackendEmotionLabelNormalized(t *testing.T) {
	mic := newScriptedMic()
	uploader := &fakeUploader{result: &backend.TurnResult{
		Transcription: "hi",
		Response:      "hello",
		Emotion:       " Happy ",
	}}
	controller := NewController(testAudioConfig(), testVADConfig(4096), func() (Microphone, error) {
		return mic, nil
	}, uploader, &fakePlayer{})

	messages := make(chan chat.Message, 8)
	controller.OnMessage = func(message chat.Message) { messages <- message }

	if err := controller.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	feedUtterance(mic)

	userMessage := waitMessage(t, messages)
	waitMessage(t, messages)
	controller.Stop()

	if userMessage.Emotion != "happy" {
		t.Fatalf("stored emotion = %q, want %q", userMessage.Emotion, "happy")
	}
	if got := controller.Emotion(); got != "happy" {
		t.Fatalf("Emotion() = %q, want %q", got, "happy")
	}
}

func TestStopDuringProcessingAbandonsTurn(t *testing.T) {
	mic := newScriptedMic()
	uploader := &fakeUploader{block: make(chan struct{})}
	controller := NewController(testAudioConfig(), testVADConfig(4096), func() (Microphone, error) {
		return mic, nil
	}, uploader, &fakePlayer{})

	states := make(chan State, 16)
	controller.OnStateChange = func(state State) { states <- state }

	if err := controller.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	feedUtterance(mic)
	waitState(t, states, StateProcessing)

	controller.Stop()

	if got := controller.State(); got != StateIdle {
		t.Fatalf("State() = %v, want %v", got, StateIdle)
	}
	if got := controller.Transcript().Len(); got != 0 {
		t.Fatalf("transcript has %d messages after an abandoned turn, want 0", got)
	}
	if !mic.wasClosed() {
		t.Fatal("Stop() left the microphone open")
	}
}

func TestStopIsIdempotentAndAllowsRestart(t *testing.T) {
	var mics []*scriptedMic
	controller := NewController(testAudioConfig(), testVADConfig(4096), func() (Microphone, error) {
		mic := newScriptedMic()
		mics = append(mics, mic)
		return mic, nil
	}, &fakeUploader{}, &fakePlayer{})

	controller.Stop()
	if got := controller.State(); got != StateIdle {
		t.Fatalf("State() after Stop on idle = %v, want %v", got, StateIdle)
	}

	if err := controller.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	controller.Stop()
	controller.Stop()
	if !mics[0].wasClosed() {
		t.Fatal("first microphone was not released")
	}

	if err := controller.Start(context.Background()); err != nil {
		t.Fatalf("restart error = %v", err)
	}
	if got := controller.State(); got != StateListening {
		t.Fatalf("State() after restart = %v, want %v", got, StateListening)
	}
	controller.Stop()
	if len(mics) != 2 || !mics[1].wasClosed() {
		t.Fatalf("expected two acquired and released microphones, got %d", len(mics))
	}
}
