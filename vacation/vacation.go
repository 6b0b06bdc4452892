// Package vacation gates booking and agent-request flows while the
// business is away. Informational questions keep flowing to the LLM;
// the hours context carries the vacation marker for those.
package vacation

import (
	"fmt"
	"strings"

	"github.com/bizbot-il/bizbot/log"
	"github.com/bizbot-il/bizbot/model"
	"github.com/bizbot-il/bizbot/store"
)

// Service answers vacation-mode questions from the settings store.
type Service struct {
	db *store.Store
}

func New(db *store.Store) *Service {
	return &Service{db: db}
}

// Active reports whether vacation mode is on. Store errors read as
// not-active so a broken settings row never blocks the bot.
func (s *Service) Active() bool {
	v, err := s.db.Vacation()
	if err != nil {
		log.Log.Errorf("[Vacation] failed to read vacation mode: %v", err)
		return false
	}
	return v.Active
}

// Settings returns the full vacation state.
func (s *Service) Settings() (model.Vacation, error) {
	return s.db.Vacation()
}

// Set replaces the vacation state.
func (s *Service) Set(v model.Vacation) error {
	return s.db.SetVacation(v)
}

// BookingMessage is the reply for a customer trying to book during
// vacation. A custom message overrides the template.
func (s *Service) BookingMessage() string {
	v, err := s.db.Vacation()
	if err != nil {
		log.Log.Errorf("[Vacation] failed to read vacation mode: %v", err)
	}

	if custom := strings.TrimSpace(v.CustomMessage); custom != "" {
		return custom
	}

	if end := strings.TrimSpace(v.EndDate); end != "" {
		return fmt.Sprintf(
			"אנחנו בחופשה עד %s.\nניתן לקבוע תורים החל מ-%s.\nבינתיים, אתם מוזמנים לשאול אותי כל שאלה על השירותים שלנו!",
			end, end)
	}

	return "אנחנו כרגע בחופשה.\nנחזור בקרוב — עקבו אחרי העדכונים שלנו.\nבינתיים, אתם מוזמנים לשאול אותי כל שאלה על השירותים שלנו!"
}

// AgentMessage is the reply for a customer asking for a human during
// vacation.
func (s *Service) AgentMessage() string {
	v, err := s.db.Vacation()
	if err != nil {
		log.Log.Errorf("[Vacation] failed to read vacation mode: %v", err)
	}

	if end := strings.TrimSpace(v.EndDate); end != "" {
		return fmt.Sprintf(
			"אנחנו בחופשה עד %s.\nניצור קשר כשנחזור.\nבינתיים, אני יכול לענות על שאלות לגבי השירותים שלנו!",
			end)
	}

	return "אנחנו כרגע בחופשה.\nניצור קשר כשנחזור.\nבינתיים, אני יכול לענות על שאלות לגבי השירותים שלנו!"
}
