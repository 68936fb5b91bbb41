package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/gregcmartin/claw-voice/internal/config"
	"github.com/gregcmartin/claw-voice/internal/health"
	"github.com/gregcmartin/claw-voice/internal/pipeline"
	"github.com/gregcmartin/claw-voice/internal/platform/discord"
	"github.com/gregcmartin/claw-voice/internal/transcript"
	"github.com/gregcmartin/claw-voice/internal/transcript/phonetic"
	"github.com/gregcmartin/claw-voice/pkg/provider/tts"
)

// pruneInterval governs how often idle per-speaker conversations (§4.5) are
// swept from the task manager. The sweep uses the task manager's fixed
// 30-minute idle limit; Session.IdleTTL is not consulted.
const pruneInterval = 30 * time.Second

// Session wires every pipeline component (C1-C10) into one running voice
// bridge: the Discord platform adapter, the STT/TTS provider cascades, the
// brain client, and the ingest loop connecting the segmenter through task
// dispatch. Construct with [NewSession]; start with [Session.Run].
type Session struct {
	cfg    *config.Config
	logger *slog.Logger

	discordSession *discordgo.Session
	bridge         *VoiceBridge
	reconnector    *Reconnector

	segmenter   *pipeline.Segmenter
	transcriber *pipeline.Transcriber
	gate        *pipeline.Gate
	router      *pipeline.CommandRouter
	tasks       *pipeline.TaskManager
	handoff     *pipeline.HandoffRouter
	alerts      *pipeline.AlertInbox
	playback    *pipeline.PlaybackQueue

	watcher *config.Watcher

	health *health.Handler
}

// NewSession constructs every pipeline component from cfg and opens the
// Discord gateway session, but does not yet join the configured voice
// channel; call [Session.Run] to start serving. configPath is watched for
// changes (§ Watcher) so the hot-reloadable subset of the config — log
// level, gate wake-word settings, the allowed-speaker list, and the
// streaming-TTS toggle — can be applied without a restart; logLevel backs
// the process logger's handler so a log-level change takes effect
// immediately.
func NewSession(cfg *config.Config, configPath string, logLevel *slog.LevelVar, logger *slog.Logger) (*Session, error) {
	reg := NewProviderRegistry()

	sttProvider, err := buildSTT(reg, cfg.Providers.STT)
	if err != nil {
		return nil, err
	}
	ttsProvider, err := buildTTS(reg, cfg.Providers.TTS)
	if err != nil {
		return nil, err
	}

	// No dedicated vocabulary list exists in configuration (spec.md is
	// silent on where C2's corrected-vocabulary terms come from). The
	// configured wake phrases are the only short, externally supplied
	// phrase list available and are exactly the kind of proper-noun-ish
	// term STT providers most often mishear, so they double as the seed
	// vocabulary rather than leaving the corrector with nothing to match.
	corrector := transcript.NewCorrector(phonetic.New())
	transcriber := pipeline.NewTranscriber(sttProvider, corrector, cfg.Gate.WakeWordPhrases, "")

	discordSession, err := discordgo.New("Bot " + cfg.Platform.Token)
	if err != nil {
		return nil, fmt.Errorf("app: create discord session: %w", err)
	}
	discordSession.Identify.Intents |= discordgo.IntentGuildVoiceStates | discordgo.IntentGuilds
	if err := discordSession.Open(); err != nil {
		return nil, fmt.Errorf("app: open discord gateway session: %w", err)
	}

	discordPlatform := discord.New(discordSession, cfg.Platform.TextChannelID)
	bridge := NewVoiceBridge(discordPlatform, sessionTTSSampleRate)

	playback := pipeline.NewPlaybackQueue(bridge)
	voice := tts.VoiceProfile{ID: cfg.Providers.TTS.VoiceID, Provider: cfg.Providers.TTS.Name}
	synth := pipeline.NewSynthesizer(ttsProvider, voice, playback)

	brain := pipeline.NewBrainClient(cfg.Brain.URL, cfg.Brain.Token, cfg.Brain.Model, cfg.Session.SessionUser)

	gate := pipeline.NewGate(cfg.Gate.WakeWordEnabled, cfg.Gate.WakeWordPhrases, cfg.Gate.ConversationWindow)

	tasks := pipeline.NewTaskManager(brain, synth, playback, 0, cfg.Session.StreamingTTSEnabled, gate.MarkAssistantResponded)

	alerts := pipeline.NewAlertInbox()

	responder := NewSystemResponder(synth, playback, sessionTTSSampleRate)
	router := pipeline.NewCommandRouter(tasks, playback, responder, gate.MarkAssistantResponded)

	allowed := make(map[string]struct{}, len(cfg.Platform.AllowedUsers))
	for _, id := range cfg.Platform.AllowedUsers {
		allowed[id] = struct{}{}
	}
	segmenter := pipeline.NewSegmenter(bridge, playback, pipeline.SegmenterConfig{AllowedSpeakers: allowed})

	handoff := pipeline.NewHandoffRouter(bridge, designatedSpeaker(cfg.Platform.AllowedUsers), tasks, playback, alerts, synth, true)
	tasks.SetHandoff(handoff)

	reconnector := NewReconnector(
		func(ctx context.Context) error {
			return bridge.Join(ctx, cfg.Platform.ServerID, cfg.Platform.VoiceChannelID)
		},
		func() {
			logger.Info("app: voice channel reconnected")
		},
	)
	bridge.SetOnDisconnect(reconnector.NotifyDisconnect)

	checkers := []health.Checker{
		{Name: "voice_connection", Check: func(ctx context.Context) error {
			if bridge.connection() == nil {
				return fmt.Errorf("not connected to a voice channel")
			}
			return nil
		}},
	}

	onConfigChange := func(old, updated *config.Config) {
		diff := config.Diff(old, updated)
		if !diff.HasChanges() {
			return
		}
		if diff.LogLevelChanged {
			logLevel.Set(diff.NewLogLevel.SlogLevel())
			logger.Info("app: log level reloaded", "level", diff.NewLogLevel)
		}
		if diff.GateChanged {
			gate.SetWakeConfig(diff.NewGate.WakeWordEnabled, diff.NewGate.WakeWordPhrases, diff.NewGate.ConversationWindow)
			logger.Info("app: gate config reloaded", "wake_word_enabled", diff.NewGate.WakeWordEnabled)
		}
		if diff.AllowedUsersChanged {
			allowed := make(map[string]struct{}, len(diff.NewAllowedUsers))
			for _, id := range diff.NewAllowedUsers {
				allowed[id] = struct{}{}
			}
			segmenter.SetAllowedSpeakers(allowed)
			logger.Info("app: allowed-speaker list reloaded", "count", len(allowed))
		}
		if diff.StreamingTTSChanged {
			tasks.SetStreamingTTS(diff.NewStreamingTTS)
			logger.Info("app: streaming TTS setting reloaded", "enabled", diff.NewStreamingTTS)
		}
	}

	watcher, err := config.NewWatcher(configPath, onConfigChange)
	if err != nil {
		return nil, fmt.Errorf("app: start config watcher: %w", err)
	}

	return &Session{
		cfg:            cfg,
		logger:         logger,
		discordSession: discordSession,
		bridge:         bridge,
		reconnector:    reconnector,
		segmenter:      segmenter,
		transcriber:    transcriber,
		gate:           gate,
		router:         router,
		tasks:          tasks,
		handoff:        handoff,
		alerts:         alerts,
		playback:       playback,
		watcher:        watcher,
		health:         health.New(checkers...),
	}, nil
}

// Health returns the health handler so the alert-ingress server (or a
// dedicated mux) can register /healthz and /readyz.
func (s *Session) Health() *health.Handler { return s.health }

// Alerts returns the alert inbox so the alert-ingress HTTP server can push
// incoming webhook alerts onto it.
func (s *Session) Alerts() *pipeline.AlertInbox { return s.alerts }

// Presence returns the handoff router as an [alertserver.PresenceChecker],
// so the alert-ingress server can report voice-channel attendance.
func (s *Session) Presence() *pipeline.HandoffRouter { return s.handoff }

// Run joins the configured voice channel and blocks, running the ingest
// pipeline (segmenter -> transcriber -> gate -> router -> task dispatch)
// until ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	if err := s.reconnector.Connect(ctx); err != nil {
		return fmt.Errorf("app: initial voice channel join: %w", err)
	}

	go s.reconnector.Monitor(ctx)
	go s.segmenter.Run(ctx)
	go s.handoff.Run(ctx)
	go s.pruneLoop(ctx)

	s.ingestLoop(ctx)
	return nil
}

// ingestLoop drains the segmenter's utterances through transcription, the
// wake-word gate, the command router's fast paths, and finally task
// dispatch (§2 control flow: frames -> C1 -> C2 -> C3 -> C4 -> (fast-path
// C8, or C5 -> C6 -> C7 -> C8)).
func (s *Session) ingestLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case u, ok := <-s.segmenter.Utterances():
			if !ok {
				return
			}
			s.handleUtterance(ctx, u)
		}
	}
}

func (s *Session) handleUtterance(ctx context.Context, u pipeline.Utterance) {
	tr, ok := s.transcriber.Transcribe(ctx, u)
	if !ok {
		return
	}

	now := time.Now()
	admit, cleaned := s.gate.Admit(tr.Text, tr.Utterance.SpeakerID, now)
	if !admit {
		return
	}

	if s.router.Handle(ctx, cleaned, tr.Utterance.SpeakerID, now) {
		return
	}

	s.tasks.Dispatch(ctx, tr.Utterance.SpeakerID, cleaned)
}

func (s *Session) pruneLoop(ctx context.Context) {
	ticker := time.NewTicker(pruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.tasks.PruneIdle(now)
		}
	}
}

// Shutdown cancels in-flight tasks, disconnects from the voice channel, and
// closes the Discord gateway session.
func (s *Session) Shutdown(ctx context.Context) error {
	s.watcher.Stop()
	s.reconnector.Stop()
	s.tasks.CancelAll()
	s.playback.Clear()

	if err := s.bridge.Close(); err != nil {
		s.logger.Warn("app: voice channel disconnect error", "error", err)
	}
	return s.discordSession.Close()
}

// designatedSpeaker returns the first entry of allowedUsers as the handoff
// router's watched speaker, or "" if the allow-list is empty (no presence
// tracking to do when no speaker is admitted).
func designatedSpeaker(allowedUsers []string) string {
	if len(allowedUsers) == 0 {
		return ""
	}
	return allowedUsers[0]
}
