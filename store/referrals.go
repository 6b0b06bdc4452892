package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/bizbot-il/bizbot/model"
)

// ReferralByReferrer returns the user's referral row as referrer, nil
// when they never generated a code.
func (s *Store) ReferralByReferrer(referrerID int64) (*model.Referral, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryReferral(`WHERE referrer_id = ?`, referrerID)
}

// ReferralByReferred returns the row in which the user appears as the
// referred friend, nil when they were never referred.
func (s *Store) ReferralByReferred(referredID int64) (*model.Referral, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryReferral(`WHERE referred_id = ?`, referredID)
}

// ReferralByCode resolves a share code, nil when unknown.
func (s *Store) ReferralByCode(code string) (*model.Referral, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryReferral(`WHERE code = ?`, code)
}

func (s *Store) queryReferral(where string, args ...interface{}) (*model.Referral, error) {
	var r model.Referral
	var referredID sql.NullInt64
	var status string
	var codeSent int
	var createdAt int64
	var completedAt sql.NullInt64

	err := s.db.QueryRow(
		`SELECT id, referrer_id, referred_id, code, status, code_sent, created_at, completed_at
		 FROM referrals `+where, args...,
	).Scan(&r.ID, &r.ReferrerID, &referredID, &r.Code, &status, &codeSent, &createdAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query referral: %w", err)
	}
	r.ReferredID = referredID.Int64
	r.Status = model.ReferralStatus(status)
	r.Sent = codeSent != 0
	r.CreatedAt = time.Unix(createdAt, 0).UTC()
	r.CompletedAt = unixOrZero(completedAt)
	return &r, nil
}

// CreateReferral inserts a fresh pending referral row for the
// referrer. Fails on a duplicate code or a second row for the same
// referrer; the service retries with a new code on collision.
func (s *Store) CreateReferral(referrerID int64, code string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`INSERT INTO referrals (referrer_id, code, status, created_at) VALUES (?, ?, ?, ?)`,
		referrerID, code, string(model.ReferralPending), time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create referral: %w", err)
	}
	return res.LastInsertId()
}

// RegisterReferred binds the referred friend to a code. All conditions
// are checked inside one UPDATE so concurrent registrations cannot
// double-attribute: the code must exist and be unused, the friend must
// not be the referrer, and the friend must not already be referred
// anywhere. Returns false when any condition fails.
func (s *Store) RegisterReferred(code string, referredID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`UPDATE referrals SET referred_id = ?
		 WHERE code = ?
		   AND referred_id IS NULL
		   AND referrer_id != ?
		   AND status = ?
		   AND NOT EXISTS (SELECT 1 FROM referrals WHERE referred_id = ?)`,
		referredID, code, referredID, string(model.ReferralPending), referredID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to register referred user: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// CompleteReferral marks the referral completed and mints both credits
// in one transaction. Completing an already-completed referral returns
// false without side effects.
func (s *Store) CompleteReferral(referralID int64, amount int, expiresAt time.Time, referrerReason, referredReason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	res, err := tx.Exec(
		`UPDATE referrals SET status = ?, completed_at = ?
		 WHERE id = ? AND status = ? AND referred_id IS NOT NULL`,
		string(model.ReferralCompleted), now, referralID, string(model.ReferralPending),
	)
	if err != nil {
		return false, fmt.Errorf("failed to complete referral: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return false, nil
	}

	var referrerID, referredID int64
	if err := tx.QueryRow(
		`SELECT referrer_id, referred_id FROM referrals WHERE id = ?`, referralID,
	).Scan(&referrerID, &referredID); err != nil {
		return false, fmt.Errorf("failed to read completed referral: %w", err)
	}

	credits := []struct {
		userID int64
		typ    model.CreditType
		reason string
	}{
		{referrerID, model.CreditReferrer, referrerReason},
		{referredID, model.CreditReferred, referredReason},
	}
	for _, c := range credits {
		if _, err := tx.Exec(
			`INSERT INTO referral_credits (user_id, amount, type, reason, used, expires_at, created_at)
			 VALUES (?, ?, ?, ?, 0, ?, ?)`,
			c.userID, amount, string(c.typ), c.reason, expiresAt.Unix(), now,
		); err != nil {
			return false, fmt.Errorf("failed to mint credit: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit referral completion: %w", err)
	}
	return true, nil
}

// MarkReferralSent flips the code_sent flag from unsent to sent.
// Returns false when the flag was already set, which aborts a
// duplicate delivery.
func (s *Store) MarkReferralSent(referralID int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`UPDATE referrals SET code_sent = 1 WHERE id = ? AND code_sent = 0`,
		referralID,
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark referral sent: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// UnmarkReferralSent rolls the code_sent flag back after a failed
// delivery so a later attempt can try again.
func (s *Store) UnmarkReferralSent(referralID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`UPDATE referrals SET code_sent = 0 WHERE id = ?`, referralID)
	if err != nil {
		return fmt.Errorf("failed to unmark referral sent: %w", err)
	}
	return nil
}

// UserCredits returns a user's credits, newest first.
func (s *Store) UserCredits(userID int64) ([]model.Credit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, user_id, amount, type, reason, used, expires_at, created_at
		 FROM referral_credits WHERE user_id = ? ORDER BY id DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query credits: %w", err)
	}
	defer rows.Close()

	var credits []model.Credit
	for rows.Next() {
		var c model.Credit
		var typ string
		var reason sql.NullString
		var used int
		var expiresAt, createdAt int64
		if err := rows.Scan(&c.ID, &c.UserID, &c.Amount, &typ, &reason, &used, &expiresAt, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan credit: %w", err)
		}
		c.Type = model.CreditType(typ)
		c.Reason = reason.String
		c.Used = used != 0
		c.ExpiresAt = time.Unix(expiresAt, 0).UTC()
		c.CreatedAt = time.Unix(createdAt, 0).UTC()
		credits = append(credits, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating credits: %w", err)
	}
	return credits, nil
}

// CountReferrals counts referral rows with the given status, or all
// when status is empty.
func (s *Store) CountReferrals(status string) (int, error) {
	return s.countWithStatus(`referrals`, status)
}

// ReferrerStat is one row of the admin top-referrers board.
type ReferrerStat struct {
	UserID    int64
	Username  string
	Completed int
}

// TopReferrers returns referrers ordered by completed referrals. With
// one row per referrer the count is 0 or 1, but the query keeps the
// board correct if that constraint is ever relaxed.
func (s *Store) TopReferrers(limit int) ([]ReferrerStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT r.referrer_id, COALESCE(sub.username, ''), COUNT(*)
		 FROM referrals r
		 LEFT JOIN subscribers sub ON sub.user_id = r.referrer_id
		 WHERE r.status = ?
		 GROUP BY r.referrer_id
		 ORDER BY COUNT(*) DESC, r.referrer_id
		 LIMIT ?`,
		string(model.ReferralCompleted), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query top referrers: %w", err)
	}
	defer rows.Close()

	var stats []ReferrerStat
	for rows.Next() {
		var st ReferrerStat
		if err := rows.Scan(&st.UserID, &st.Username, &st.Completed); err != nil {
			return nil, fmt.Errorf("failed to scan referrer stat: %w", err)
		}
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating referrer stats: %w", err)
	}
	return stats, nil
}

// ListReferrals returns referral rows newest first, up to limit.
func (s *Store) ListReferrals(limit int) ([]model.Referral, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, referrer_id, referred_id, code, status, code_sent, created_at, completed_at
		 FROM referrals ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query referrals: %w", err)
	}
	defer rows.Close()

	var referrals []model.Referral
	for rows.Next() {
		var r model.Referral
		var referredID sql.NullInt64
		var status string
		var codeSent int
		var createdAt int64
		var completedAt sql.NullInt64
		if err := rows.Scan(&r.ID, &r.ReferrerID, &referredID, &r.Code, &status, &codeSent, &createdAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan referral: %w", err)
		}
		r.ReferredID = referredID.Int64
		r.Status = model.ReferralStatus(status)
		r.Sent = codeSent != 0
		r.CreatedAt = time.Unix(createdAt, 0).UTC()
		r.CompletedAt = unixOrZero(completedAt)
		referrals = append(referrals, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating referrals: %w", err)
	}
	return referrals, nil
}
