package store

import (
	"database/sql"
	"fmt"
	"strconv"

	"github.com/bizbot-il/bizbot/model"
)

// Settings keys. Both singletons live in the settings key/value table.
const (
	keyVacationActive  = "vacation_active"
	keyVacationEndDate = "vacation_end_date"
	keyVacationMessage = "vacation_custom_message"

	keyBotTone         = "bot_tone"
	keyCustomPhrases   = "bot_custom_phrases"
	keyFollowUpEnabled = "bot_follow_up_enabled"
)

// getSetting reads one settings value, "" when the key was never set.
// Callers hold s.mu.
func (s *Store) getSetting(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return value, nil
}

// setSetting writes one settings value. Callers hold s.mu.
func (s *Store) setSetting(key, value string) error {
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}

// Vacation returns the singleton vacation-mode state.
func (s *Store) Vacation() (model.Vacation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var v model.Vacation
	active, err := s.getSetting(keyVacationActive)
	if err != nil {
		return v, err
	}
	v.Active = active == "1"

	if v.EndDate, err = s.getSetting(keyVacationEndDate); err != nil {
		return v, err
	}
	if v.CustomMessage, err = s.getSetting(keyVacationMessage); err != nil {
		return v, err
	}
	return v, nil
}

// SetVacation replaces the singleton vacation-mode state.
func (s *Store) SetVacation(v model.Vacation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := "0"
	if v.Active {
		active = "1"
	}
	if err := s.setSetting(keyVacationActive, active); err != nil {
		return err
	}
	if err := s.setSetting(keyVacationEndDate, v.EndDate); err != nil {
		return err
	}
	return s.setSetting(keyVacationMessage, v.CustomMessage)
}

// BotSettings returns the personality singleton, defaults for any key
// never saved.
func (s *Store) BotSettings() (model.BotSettings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	settings := model.DefaultBotSettings()

	tone, err := s.getSetting(keyBotTone)
	if err != nil {
		return settings, err
	}
	if t := model.Tone(tone); t.Valid() {
		settings.Tone = t
	}

	if settings.CustomPhrases, err = s.getSetting(keyCustomPhrases); err != nil {
		return settings, err
	}

	followUp, err := s.getSetting(keyFollowUpEnabled)
	if err != nil {
		return settings, err
	}
	if followUp != "" {
		if enabled, err := strconv.ParseBool(followUp); err == nil {
			settings.FollowUpEnabled = enabled
		}
	}
	return settings, nil
}

// SetBotSettings replaces the personality singleton.
func (s *Store) SetBotSettings(settings model.BotSettings) error {
	if !settings.Tone.Valid() {
		return fmt.Errorf("unknown tone %q", settings.Tone)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.setSetting(keyBotTone, string(settings.Tone)); err != nil {
		return err
	}
	if err := s.setSetting(keyCustomPhrases, settings.CustomPhrases); err != nil {
		return err
	}
	return s.setSetting(keyFollowUpEnabled, strconv.FormatBool(settings.FollowUpEnabled))
}
