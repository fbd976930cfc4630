package tts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Soln1shko/AI-HR/internal/logger"
)

// Player renders synthesized audio. Play returns when playback has finished.
type Player interface {
	Play(ctx context.Context, audio []byte) error
}

// FFplayPlayer pipes audio into ffplay without a display window.
type FFplayPlayer struct {
	Bin string
	log *logrus.Entry
}

func NewFFplayPlayer(bin string, log logrus.FieldLogger) *FFplayPlayer {
	if bin == "" {
		bin = "ffplay"
	}
	return &FFplayPlayer{Bin: bin, log: logger.Component(log, "player")}
}

func (p *FFplayPlayer) Args() []string {
	return []string{"-nodisp", "-autoexit", "-hide_banner", "-loglevel", "error", "-i", "pipe:0"}
}

func (p *FFplayPlayer) Play(ctx context.Context, audio []byte) error {
	if len(audio) == 0 {
		return errors.New("no audio to play")
	}

	cmd := exec.CommandContext(ctx, p.Bin, p.Args()...)
	cmd.Stdin = bytes.NewReader(audio)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	p.log.WithField("audio_bytes", len(audio)).Debug("playback started")
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("ffplay: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	p.log.Debug("playback finished")
	return nil
}

// NopPlayer discards audio, for headless runs without an output device.
type NopPlayer struct{}

func (NopPlayer) Play(context.Context, []byte) error { return nil }
