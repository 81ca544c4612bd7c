package audio

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"

	"github.com/mirovoy/companion/internal/config"
)

// ErrFFmpegMissing is returned when microphone capture cannot start
// because ffmpeg is not on PATH.
var ErrFFmpegMissing = errors.New("ffmpeg is required for microphone capture (install ffmpeg and ensure it is in PATH)")

// Microphone captures mono s16le PCM from the system default input by
// piping an ffmpeg subprocess.
type Microphone struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
}

// OpenMicrophone starts the capture subprocess. The caller owns the
// returned handle and must Close it.
func OpenMicrophone(cfg config.AudioConfig) (*Microphone, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, ErrFFmpegMissing
	}

	args, err := captureArgs(runtime.GOOS, cfg)
	if err != nil {
		return nil, err
	}

	cmd := exec.Command("ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open ffmpeg stdout: %w", err)
	}
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg capture: %w", err)
	}

	return &Microphone{cmd: cmd, stdout: stdout}, nil
}

func captureArgs(goos string, cfg config.AudioConfig) ([]string, error) {
	device := cfg.Device

	switch goos {
	case "darwin":
		if device == "" {
			device = ":0"
		}
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "avfoundation", "-i", device,
			"-ac", "1", "-ar", fmt.Sprintf("%d", cfg.SampleRate),
			"-f", "s16le", "-",
		}, nil
	case "linux":
		if device == "" {
			device = "default"
		}
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "pulse", "-i", device,
			"-ac", "1", "-ar", fmt.Sprintf("%d", cfg.SampleRate),
			"-f", "s16le", "-",
		}, nil
	default:
		return nil, fmt.Errorf("microphone capture is not implemented for %s; supported platforms: darwin, linux", goos)
	}
}

// ReadFrame fills p with captured PCM, blocking until a full frame is
// available or the stream ends.
func (m *Microphone) ReadFrame(p []byte) (int, error) {
	if m == nil || m.stdout == nil {
		return 0, io.EOF
	}
	return io.ReadFull(m.stdout, p)
}

// Close stops the capture subprocess. Safe to call more than once.
func (m *Microphone) Close() error {
	if m == nil || m.cmd == nil {
		return nil
	}
	if m.cmd.Process != nil {
		_ = m.cmd.Process.Kill()
		_ = m.cmd.Wait()
	}
	m.cmd = nil
	m.stdout = nil
	return nil
}
