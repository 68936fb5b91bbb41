package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; provider
// endpoint/channel identity changes require a restart and are not diffed.
type ConfigDiff struct {
	LogLevelChanged     bool
	NewLogLevel         LogLevel
	GateChanged         bool
	NewGate             GateConfig
	AllowedUsersChanged bool
	NewAllowedUsers     []string
	StreamingTTSChanged bool
	NewStreamingTTS     bool
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Gate.WakeWordEnabled != new.Gate.WakeWordEnabled ||
		old.Gate.ConversationWindow != new.Gate.ConversationWindow ||
		!stringsEqual(old.Gate.WakeWordPhrases, new.Gate.WakeWordPhrases) {
		d.GateChanged = true
		d.NewGate = new.Gate
	}

	if !stringsEqual(old.Platform.AllowedUsers, new.Platform.AllowedUsers) {
		d.AllowedUsersChanged = true
		d.NewAllowedUsers = new.Platform.AllowedUsers
	}

	if old.Session.StreamingTTSEnabled != new.Session.StreamingTTSEnabled {
		d.StreamingTTSChanged = true
		d.NewStreamingTTS = new.Session.StreamingTTSEnabled
	}

	return d
}

// HasChanges reports whether d describes any difference at all.
func (d ConfigDiff) HasChanges() bool {
	return d.LogLevelChanged || d.GateChanged || d.AllowedUsersChanged || d.StreamingTTSChanged
}

func stringsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
