package model

// Tone selects the bot's personality preset.
type Tone string

const (
	ToneFriendly Tone = "friendly"
	ToneFormal   Tone = "formal"
	ToneSales    Tone = "sales"
	ToneLuxury   Tone = "luxury"
)

// Valid reports whether t is one of the known presets.
func (t Tone) Valid() bool {
	switch t {
	case ToneFriendly, ToneFormal, ToneSales, ToneLuxury:
		return true
	}
	return false
}

// BotSettings is the singleton personality configuration.
type BotSettings struct {
	Tone Tone

	// CustomPhrases is free text appended to the system prompt, one
	// instruction per line.
	CustomPhrases string

	// FollowUpEnabled turns suggested follow-up questions on or off
	FollowUpEnabled bool
}

// DefaultBotSettings returns the settings used before the owner ever
// saves the personality form.
func DefaultBotSettings() BotSettings {
	return BotSettings{Tone: ToneFriendly, FollowUpEnabled: true}
}
