package slacklog

// UnsetEmoji is used when neither the configuration nor the default table
// has a marker for a level.
const UnsetEmoji = "📣"

var defaultEmojis = map[Level]string{
	LevelCritical: "🔥",
	LevelError:    "❌",
	LevelWarn:     "⚠️",
	LevelInfo:     "🔔",
	LevelDebug:    "🔬",
	LevelTrace:    "🔎",
	LevelNotSet:   UnsetEmoji,
}

// DefaultEmojis returns a copy of the built-in level→marker table.
func DefaultEmojis() map[Level]string {
	out := make(map[Level]string, len(defaultEmojis))
	for k, v := range defaultEmojis {
		out[k] = v
	}
	return out
}

// ResolveEmoji looks the level up in cfg, then in the default table, and
// finally falls back to UnsetEmoji. cfg may be nil.
func ResolveEmoji(cfg *Configuration, l Level) string {
	if cfg != nil {
		if e, ok := cfg.emojis[l]; ok {
			return e
		}
	}
	if e, ok := defaultEmojis[l]; ok {
		return e
	}
	return UnsetEmoji
}
