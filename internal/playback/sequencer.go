package playback

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/talgya/atlas-live/internal/broadcast"
)

// DefaultMsPerChar paces silent subtitles.
const DefaultMsPerChar = 60

// Synthesizer turns text into playable audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceHint string) (Speech, error)
}

// Config tunes playback timing.
type Config struct {
	MsPerChar int
	MinHold   time.Duration
	Voices    map[broadcast.Role]string
}

// Sequencer plays plans one line at a time.
type Sequencer struct {
	hub   *Hub
	tts   Synthesizer
	cfg   Config
	sleep func(ctx context.Context, d time.Duration) error

	speaking atomic.Bool
	music    atomic.Bool
}

// NewSequencer wires playback. tts may be nil for subtitles only.
func NewSequencer(hub *Hub, tts Synthesizer, cfg Config) *Sequencer {
	if cfg.MsPerChar <= 0 {
		cfg.MsPerChar = DefaultMsPerChar
	}
	if cfg.MinHold <= 0 {
		cfg.MinHold = time.Second
	}
	if hub == nil {
		hub = NewHub(0)
	}
	return &Sequencer{hub: hub, tts: tts, cfg: cfg, sleep: sleepCtx}
}

// Hub returns the cue hub.
func (s *Sequencer) Hub() *Hub { return s.hub }

// Speaking reports whether a voice plan is on air.
func (s *Sequencer) Speaking() bool { return s.speaking.Load() }

// MusicPlaying reports the renderer's last music state.
func (s *Sequencer) MusicPlaying() bool { return s.music.Load() }

// SetMusic records whether the renderer is playing music.
func (s *Sequencer) SetMusic(on bool) { s.music.Store(on) }

// Play runs plan to completion. TTS failures degrade to timed subtitles; only
// cancellation is returned as an error.
func (s *Sequencer) Play(ctx context.Context, plan broadcast.Plan) error {
	if plan.Action == broadcast.ActionVisual {
		return s.playVisual(ctx, plan)
	}

	s.speaking.Store(true)
	defer s.speaking.Store(false)

	for _, line := range plan.Script {
		hold := s.holdFor(line.Text)

		if s.tts != nil {
			speech, err := s.tts.Synthesize(ctx, line.Text, s.cfg.Voices[line.Role])
			if err != nil {
				slog.Warn("tts failed, using silent subtitle", "plan", plan.ID, "role", line.Role, "error", err)
			} else {
				if speech.Duration > 0 {
					hold = speech.Duration
				}
				s.hub.Publish(Cue{Kind: CueAudio, PlanID: plan.ID, Role: line.Role, AudioURL: speech.URL, HoldMS: hold.Milliseconds()})
			}
		}

		s.hub.Publish(Cue{Kind: CueSubtitle, PlanID: plan.ID, Role: line.Role, Text: line.Text, Focus: plan.Focus, HoldMS: hold.Milliseconds()})
		if err := s.sleep(ctx, hold); err != nil {
			return err
		}
	}

	s.hub.Publish(Cue{Kind: CueDone, PlanID: plan.ID})
	return nil
}

func (s *Sequencer) playVisual(ctx context.Context, plan broadcast.Plan) error {
	text := ""
	if len(plan.Script) > 0 {
		text = plan.Script[0].Text
	}
	hold := s.holdFor(text)
	s.hub.Publish(Cue{Kind: CueVisual, PlanID: plan.ID, Text: text, Focus: plan.Focus, HoldMS: hold.Milliseconds()})
	if err := s.sleep(ctx, hold); err != nil {
		return err
	}
	s.hub.Publish(Cue{Kind: CueDone, PlanID: plan.ID})
	return nil
}

func (s *Sequencer) holdFor(text string) time.Duration {
	d := time.Duration(len(text)*s.cfg.MsPerChar) * time.Millisecond
	if d < s.cfg.MinHold {
		d = s.cfg.MinHold
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
