package sound

import (
	"io"
	"math"
	"os"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
	"github.com/rs/zerolog"
)

const sampleRate = beep.SampleRate(44100)

// Tone is a plain sine beep.
type Tone struct {
	FrequencyHz float64
	Duration    time.Duration
	Volume      float64
}

var (
	DetectTone   = Tone{FrequencyHz: 880, Duration: 120 * time.Millisecond, Volume: 0.4}
	CompleteTone = Tone{FrequencyHz: 1320, Duration: 400 * time.Millisecond, Volume: 0.4}
)

type request struct {
	path string
	tone Tone
}

// Player plays sounds on a background goroutine so callers never block on
// the speaker.
type Player struct {
	requests chan request
	log      zerolog.Logger
	done     chan struct{}
}

func NewPlayer(log zerolog.Logger) *Player {
	p := &Player{
		requests: make(chan request),
		log:      log,
		done:     make(chan struct{}),
	}
	go p.loop()
	return p
}

// Beep plays the detection tone.
func (p *Player) Beep() {
	p.enqueue(request{tone: DetectTone})
}

func (p *Player) PlayTone(t Tone) {
	p.enqueue(request{tone: t})
}

// Play plays a WAV file.
func (p *Player) Play(path string) {
	p.enqueue(request{path: path})
}

func (p *Player) Close() {
	close(p.requests)
	<-p.done
}

func (p *Player) enqueue(r request) {
	defer func() {
		recover() // Don't die if the channel is already closed.
	}()
	select {
	case p.requests <- r:
		return
	case <-time.After(10 * time.Millisecond):
		p.log.Warn().Str("path", r.path).Float64("hz", r.tone.FrequencyHz).Msg("Timed out trying to play sound")
	}
}

func (p *Player) loop() {
	defer close(p.done)
	defer func() {
		if r := recover(); r != nil {
			p.log.Error().Interface("panic", r).Msg("Sound player crashed")
		}
		for r := range p.requests {
			p.log.Debug().Str("path", r.path).Msg("Unable to play")
		}
	}()

	err := speaker.Init(sampleRate, sampleRate.N(time.Second/10))
	if err != nil {
		p.log.Warn().Err(err).Msg("Failed to open speaker")
		return
	}

	var ctrl *beep.Ctrl
	var s beep.StreamSeekCloser
	for r := range p.requests {
		if ctrl != nil {
			speaker.Lock()
			ctrl.Paused = true
			ctrl.Streamer = nil
			speaker.Unlock()
			ctrl = nil
		}
		if s != nil {
			s.Close()
			s = nil
		}

		var streamer beep.Streamer
		if r.path != "" {
			f, err := os.Open(r.path)
			if err != nil {
				p.log.Warn().Err(err).Msg("Failed to open sound")
				continue
			}
			s, err = decodeWAV(f)
			if err != nil {
				p.log.Warn().Err(err).Str("path", r.path).Msg("Failed to decode sound")
				continue
			}
			streamer = s
		} else {
			streamer = ToneStreamer(sampleRate, r.tone)
		}
		ctrl = &beep.Ctrl{Streamer: streamer}
		speaker.Play(ctrl)
	}
}

// decodeWAV takes ownership of rc: the returned streamer closes it, and
// wav.Decode closes it itself when decoding fails.
func decodeWAV(rc io.ReadCloser) (beep.StreamSeekCloser, error) {
	s, _, err := wav.Decode(rc)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// ToneStreamer renders t as a finite stereo stream.
func ToneStreamer(sr beep.SampleRate, t Tone) beep.Streamer {
	var pos int
	step := 2 * math.Pi * t.FrequencyHz / float64(sr)
	return beep.Take(sr.N(t.Duration), beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		for i := range samples {
			v := t.Volume * math.Sin(step*float64(pos))
			samples[i][0], samples[i][1] = v, v
			pos++
		}
		return len(samples), true
	}))
}
