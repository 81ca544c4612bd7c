package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
)

// ErrFFplayMissing is returned when reply playback cannot run because
// ffplay is not on PATH.
var ErrFFplayMissing = errors.New("ffplay is required for reply playback (install ffmpeg/ffplay and ensure it is in PATH)")

// Player plays complete audio replies through an ffplay subprocess.
// Each Play call runs one subprocess to completion, so the caller can
// treat it as a play-to-completion primitive.
type Player struct{}

// NewPlayer verifies that playback is possible on this machine.
func NewPlayer() (*Player, error) {
	if _, err := exec.LookPath("ffplay"); err != nil {
		return nil, ErrFFplayMissing
	}
	return &Player{}, nil
}

// Play renders one encoded reply (the backend sends MP3) and returns
// after playback finishes. Cancelling the context kills the
// subprocess.
func (p *Player) Play(ctx context.Context, data []byte) error {
	if len(data) == 0 {
		return nil
	}

	cmd := exec.CommandContext(ctx, "ffplay",
		"-nodisp",
		"-autoexit",
		"-loglevel", "error",
		"-i", "pipe:0",
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open ffplay stdin: %w", err)
	}
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffplay: %w", err)
	}

	if _, err := stdin.Write(data); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("write reply audio: %w", err)
	}
	if err := stdin.Close(); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("close ffplay stdin: %w", err)
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("playback failed: %w", err)
	}
	return nil
}
