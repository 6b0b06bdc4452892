// Package referral implements the share-a-friend program: code
// generation, referred registration via deep link, completion credits
// and the high-engagement trigger that offers active users a code.
package referral

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"

	"github.com/bizbot-il/bizbot/config"
	"github.com/bizbot-il/bizbot/log"
	"github.com/bizbot-il/bizbot/model"
	"github.com/bizbot-il/bizbot/store"
)

const (
	codePrefix = "REF_"
	codeLength = 8

	// Both sides of a completed referral get this discount, valid for
	// creditValidity from completion.
	creditPercent  = 10
	creditValidity = 60 * 24 * time.Hour

	referrerCreditReason = "הפניית חבר שהשלים תור"
	referredCreditReason = "הצטרפות דרך קוד הפניה"

	maxCodeAttempts = 5
)

// SendFunc delivers the referral message to the user, returning an
// error when delivery failed.
type SendFunc func(text string) error

// Service drives the referral lifecycle against the store.
type Service struct {
	db  *store.Store
	cfg *config.Config
	now func() time.Time
}

func New(db *store.Store, cfg *config.Config) *Service {
	return &Service{db: db, cfg: cfg, now: time.Now}
}

// GenerateCode returns the user's share code, creating a pending
// referral row on first call. Idempotent.
func (s *Service) GenerateCode(userID int64) (string, error) {
	existing, err := s.db.ReferralByReferrer(userID)
	if err != nil {
		return "", err
	}
	if existing != nil {
		return existing.Code, nil
	}

	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		code := deriveCode(userID, s.now().UnixNano()+int64(attempt))
		if _, err := s.db.CreateReferral(userID, code); err == nil {
			return code, nil
		}
		// Insert failed: either a code collision or a concurrent call
		// created the user's row first.
		if existing, lookupErr := s.db.ReferralByReferrer(userID); lookupErr == nil && existing != nil {
			return existing.Code, nil
		}
	}
	return "", fmt.Errorf("failed to generate referral code for user %d after %d attempts", userID, maxCodeAttempts)
}

// deriveCode hashes (user, timestamp) into a short uppercase token.
func deriveCode(userID, salt int64) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%d:%d", userID, salt)))
	return codePrefix + strings.ToUpper(fmt.Sprintf("%x", sum[:])[:codeLength])
}

// IsCode reports whether a deep-link start payload looks like a
// referral code.
func IsCode(payload string) bool {
	return strings.HasPrefix(payload, codePrefix)
}

// Register binds a new user to a referral code. Self-referrals, used
// codes and already-referred users all no-op.
func (s *Service) Register(code string, newUserID int64) (bool, error) {
	ok, err := s.db.RegisterReferred(code, newUserID)
	if err != nil {
		return false, err
	}
	if ok {
		log.Log.Infof("[Referral] user %d registered via code %s", newUserID, code)
	}
	return ok, nil
}

// Complete finishes the referral of a referred user after their
// confirmed appointment, minting a credit for each side. Returns false
// when the user has no pending referral.
func (s *Service) Complete(referredUserID int64) (bool, error) {
	ref, err := s.db.ReferralByReferred(referredUserID)
	if err != nil {
		return false, err
	}
	if ref == nil || ref.Status != model.ReferralPending {
		return false, nil
	}

	expires := s.now().Add(creditValidity)
	ok, err := s.db.CompleteReferral(ref.ID, creditPercent, expires, referrerCreditReason, referredCreditReason)
	if err != nil {
		return false, err
	}
	if ok {
		log.Log.Infof("[Referral] referral %d completed, credits minted for %d and %d",
			ref.ID, ref.ReferrerID, referredUserID)
	}
	return ok, nil
}

// MessageText is the share message for a code; one source of truth for
// the bot and the admin panel.
func (s *Service) MessageText(code string) string {
	return fmt.Sprintf(
		"🎁 רוצים לשתף עם חבר/ה?\n\nשלחו להם את הלינק הזה:\n%s\n\nכשהם יקבעו וישלימו תור — גם אתם וגם הם תקבלו 10%% הנחה לחודשיים!",
		s.cfg.DeepLink(code))
}

// TrySendCode runs the atomic send flow: generate, mark sent, deliver,
// unmark on failure. Returns true only when this call delivered the
// message; an already-sent code returns false without sending.
func (s *Service) TrySendCode(userID int64, send SendFunc) bool {
	code, err := s.GenerateCode(userID)
	if err != nil {
		log.Log.Errorf("[Referral] failed to generate code for %d: %v", userID, err)
		return false
	}

	ref, err := s.db.ReferralByReferrer(userID)
	if err != nil || ref == nil {
		return false
	}

	marked, err := s.db.MarkReferralSent(ref.ID)
	if err != nil {
		log.Log.Errorf("[Referral] failed to mark code sent for %d: %v", userID, err)
		return false
	}
	if !marked {
		return false
	}

	if err := send(s.MessageText(code)); err != nil {
		log.Log.Errorf("[Referral] failed to send code to %d, flag reset: %v", userID, err)
		if unmarkErr := s.db.UnmarkReferralSent(ref.ID); unmarkErr != nil {
			log.Log.Errorf("[Referral] failed to unmark sent flag for %d: %v", userID, unmarkErr)
		}
		return false
	}
	return true
}

// CheckEngagement offers a code to highly active users: no code yet
// and either threshold of recent messages met.
func (s *Service) CheckEngagement(userID int64, send SendFunc) {
	ref, err := s.db.ReferralByReferrer(userID)
	if err != nil {
		log.Log.Errorf("[Referral] engagement check failed for %d: %v", userID, err)
		return
	}
	if ref != nil {
		return
	}

	now := s.now()
	last30m, err := s.db.CountUserMessagesSince(userID, now.Add(-30*time.Minute))
	if err != nil {
		log.Log.Errorf("[Referral] failed to count recent messages for %d: %v", userID, err)
		return
	}
	last24h, err := s.db.CountUserMessagesSince(userID, now.Add(-24*time.Hour))
	if err != nil {
		log.Log.Errorf("[Referral] failed to count daily messages for %d: %v", userID, err)
		return
	}

	if last30m < s.cfg.Referral.Engaged30m && last24h < s.cfg.Referral.Engaged24h {
		return
	}

	if s.TrySendCode(userID, send) {
		log.Log.Infof("[Referral] engagement code sent to %d (%d msgs/30m, %d msgs/24h)",
			userID, last30m, last24h)
	}
}

// Credits returns the user's usable and historical credits.
func (s *Service) Credits(userID int64) ([]model.Credit, error) {
	return s.db.UserCredits(userID)
}
