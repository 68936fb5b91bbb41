package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gregcmartin/claw-voice/internal/observe"
)

const (
	// defaultSilenceWindow is D_silence: the gap after the last received
	// frame that finalizes an utterance.
	defaultSilenceWindow = 1000 * time.Millisecond

	// defaultMinDuration is D_min: utterances shorter than this are discarded.
	defaultMinDuration = 300 * time.Millisecond

	// defaultRMSFloor is the RMS energy floor (±32768 scale) below which an
	// utterance is discarded as noise.
	defaultRMSFloor = 500.0

	// defaultBargeInWindow is D_barge: sustained speech required while
	// assistant audio is playing before it is treated as a barge-in.
	defaultBargeInWindow = 600 * time.Millisecond

	// outputSampleRate is the rate utterances are downsampled to before
	// transcription, when they were captured at 48 kHz.
	outputSampleRate = 16000
)

// PlaybackController is the subset of [PlaybackQueue] the segmenter needs to
// detect and act on barge-in.
type PlaybackController interface {
	IsPlaying() bool
	Clear()
}

// SegmenterConfig configures a [Segmenter].
type SegmenterConfig struct {
	AllowedSpeakers map[string]struct{}
	SilenceWindow   time.Duration
	MinDuration     time.Duration
	RMSFloor        float64
	BargeInWindow   time.Duration
}

func (c *SegmenterConfig) setDefaults() {
	if c.SilenceWindow <= 0 {
		c.SilenceWindow = defaultSilenceWindow
	}
	if c.MinDuration <= 0 {
		c.MinDuration = defaultMinDuration
	}
	if c.RMSFloor <= 0 {
		c.RMSFloor = defaultRMSFloor
	}
	if c.BargeInWindow <= 0 {
		c.BargeInWindow = defaultBargeInWindow
	}
}

// speakerState tracks the in-flight capture for one speaker.
type speakerState struct {
	cancel     context.CancelFunc
	bargeTimer *time.Timer
}

// Segmenter implements the audio segmenter (C1): it turns per-speaker opus
// frames, decoded to PCM by the platform, into completed [Utterance] values
// on silence, and detects barge-in while assistant audio is playing.
//
// Segmenter is safe for concurrent use.
type Segmenter struct {
	cfg      SegmenterConfig
	platform VoicePlatform
	playback PlaybackController

	out chan Utterance

	mu              sync.Mutex
	active          map[string]*speakerState
	allowedSpeakers map[string]struct{}

	wg sync.WaitGroup
}

// NewSegmenter constructs a [Segmenter]. Zero-valued fields in cfg fall back
// to the spec's recommended defaults.
func NewSegmenter(platform VoicePlatform, playback PlaybackController, cfg SegmenterConfig) *Segmenter {
	cfg.setDefaults()
	return &Segmenter{
		cfg:             cfg,
		platform:        platform,
		playback:        playback,
		out:             make(chan Utterance, 8),
		active:          make(map[string]*speakerState),
		allowedSpeakers: cfg.AllowedSpeakers,
	}
}

// SetAllowedSpeakers replaces the set of speaker IDs the segmenter admits,
// for live config reload (§ PlatformConfig.AllowedUsers). An empty or nil
// map allows no one; pass every configured ID explicitly.
func (s *Segmenter) SetAllowedSpeakers(allowed map[string]struct{}) {
	s.mu.Lock()
	s.allowedSpeakers = allowed
	s.mu.Unlock()
}

// Utterances returns the channel of completed utterances. Closed when ctx
// passed to [Segmenter.Run] is cancelled and all in-flight captures drain.
func (s *Segmenter) Utterances() <-chan Utterance {
	return s.out
}

// Run consumes speaking events from the platform until ctx is cancelled.
// Run blocks; call it in its own goroutine.
func (s *Segmenter) Run(ctx context.Context) {
	defer func() {
		s.wg.Wait()
		close(s.out)
	}()

	events := s.platform.Speaking()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			s.mu.Lock()
			_, allowed := s.allowedSpeakers[ev.SpeakerID]
			s.mu.Unlock()
			if !allowed {
				continue
			}
			if ev.Start {
				s.onSpeakingStart(ctx, ev.SpeakerID)
			} else {
				s.onSpeakingEnd(ev.SpeakerID)
			}
		}
	}
}

// onSpeakingStart opens a capture buffer for speakerID and arms the barge-in
// timer if assistant audio is currently playing. A duplicate speaking-start
// for a speaker already being captured is ignored.
func (s *Segmenter) onSpeakingStart(parent context.Context, speakerID string) {
	s.mu.Lock()
	if _, exists := s.active[speakerID]; exists {
		s.mu.Unlock()
		return
	}

	capCtx, cancel := context.WithCancel(parent)
	st := &speakerState{cancel: cancel}

	if s.playback.IsPlaying() {
		st.bargeTimer = time.AfterFunc(s.cfg.BargeInWindow, func() {
			s.mu.Lock()
			_, stillSpeaking := s.active[speakerID]
			s.mu.Unlock()
			if stillSpeaking {
				s.playback.Clear()
			}
		})
	}

	s.active[speakerID] = st
	s.mu.Unlock()

	s.wg.Add(1)
	go s.capture(capCtx, speakerID)
}

// onSpeakingEnd cancels the capture goroutine for speakerID, which finalizes
// whatever has been buffered, and stops a pending barge-in timer — a
// sub-D_barge burst is echo, not a real interrupt.
func (s *Segmenter) onSpeakingEnd(speakerID string) {
	s.mu.Lock()
	st, ok := s.active[speakerID]
	s.mu.Unlock()
	if !ok {
		return
	}
	if st.bargeTimer != nil {
		st.bargeTimer.Stop()
	}
	st.cancel()
}

// capture accumulates PCM for speakerID until ctx is cancelled (speaking-end
// or segmenter shutdown) or SilenceWindow elapses with no new frame, then
// finalizes the utterance.
func (s *Segmenter) capture(ctx context.Context, speakerID string) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.active, speakerID)
		s.mu.Unlock()
	}()

	frames := s.platform.Frames(speakerID)
	var pcm []byte
	sampleRate := 0
	start := time.Now()

	timer := time.NewTimer(s.cfg.SilenceWindow)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.finalize(speakerID, pcm, sampleRate, start)
			return
		case frame, ok := <-frames:
			if !ok {
				s.finalize(speakerID, pcm, sampleRate, start)
				return
			}
			if sampleRate == 0 {
				sampleRate = frame.SampleRate
			}
			pcm = append(pcm, frame.Data...)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(s.cfg.SilenceWindow)
		case <-timer.C:
			s.finalize(speakerID, pcm, sampleRate, start)
			return
		}
	}
}

// finalize discards buffers shorter than MinDuration or below the RMS floor,
// optionally downsamples to 16 kHz, and emits the resulting [Utterance].
func (s *Segmenter) finalize(speakerID string, pcm []byte, sampleRate int, start time.Time) {
	if len(pcm) == 0 {
		return
	}
	if sampleRate == 0 {
		sampleRate = outputSampleRate
	}

	duration := pcmDuration(len(pcm), sampleRate)
	if duration < s.cfg.MinDuration {
		slog.Debug("segmenter: discarding short utterance", "speaker", speakerID, "duration", duration)
		return
	}
	if rms(pcm) < s.cfg.RMSFloor {
		slog.Debug("segmenter: discarding low-energy utterance", "speaker", speakerID)
		return
	}

	if sampleRate == 48000 {
		pcm = downsample3to1(pcm)
		sampleRate = outputSampleRate
		duration = pcmDuration(len(pcm), sampleRate)
	}

	u := Utterance{
		SpeakerID:  speakerID,
		PCM:        pcm,
		SampleRate: sampleRate,
		CapturedAt: start,
		Duration:   duration,
	}

	select {
	case s.out <- u:
		observe.DefaultMetrics().UtterancesSegmented.Add(context.Background(), 1)
	default:
		slog.Warn("segmenter: output channel full, dropping utterance", "speaker", speakerID)
	}
}

// pcmDuration returns the playback duration of n bytes of 16-bit mono PCM at
// sampleRate Hz.
func pcmDuration(n, sampleRate int) time.Duration {
	if sampleRate == 0 {
		return 0
	}
	samples := n / 2
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// rms computes the root-mean-square energy of 16-bit little-endian mono PCM.
func rms(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}
	var sumSquares float64
	for i := 0; i+1 < len(pcm); i += 2 {
		s := int16(uint16(pcm[i]) | uint16(pcm[i+1])<<8)
		v := float64(s)
		sumSquares += v * v
	}
	return sqrt(sumSquares / float64(samples))
}

// downsample3to1 averages every 3 consecutive 16-bit samples into one,
// converting 48 kHz mono PCM to 16 kHz mono PCM.
func downsample3to1(pcm []byte) []byte {
	samples := len(pcm) / 2
	outSamples := samples / 3
	out := make([]byte, outSamples*2)
	for i := 0; i < outSamples; i++ {
		base := i * 3
		var sum int32
		for j := 0; j < 3; j++ {
			idx := (base + j) * 2
			s := int16(uint16(pcm[idx]) | uint16(pcm[idx+1])<<8)
			sum += int32(s)
		}
		avg := int16(sum / 3)
		out[i*2] = byte(avg)
		out[i*2+1] = byte(avg >> 8)
	}
	return out
}

// sqrt is a tiny Newton's-method square root to avoid importing math for a
// single call site.
func sqrt(x float64) float64 {
	if x <= 0 {
		return 0
	}
	z := x
	for range 12 {
		z -= (z*z - x) / (2 * z)
	}
	return z
}
