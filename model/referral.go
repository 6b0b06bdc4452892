package model

import "time"

// ReferralStatus is the lifecycle state of a referral.
type ReferralStatus string

const (
	ReferralPending   ReferralStatus = "pending"
	ReferralCompleted ReferralStatus = "completed"
)

// Referral links a referrer to the friend who used their code. A user
// owns at most one row as referrer; a user may appear as ReferredID in
// at most one row; self-referral is forbidden.
type Referral struct {
	ID int64

	// Code is the unique share code, "REF_" plus eight characters
	Code string

	ReferrerID int64

	// ReferredID is zero until a friend registers with the code
	ReferredID int64

	Status ReferralStatus

	// Sent records whether the code was already delivered to the
	// referrer, so engagement checks offer it at most once.
	Sent bool

	CreatedAt   time.Time
	CompletedAt time.Time // zero until completed
}

// CreditType says which side of a completed referral earned the credit.
type CreditType string

const (
	CreditReferrer CreditType = "referrer"
	CreditReferred CreditType = "referred"
)

// Credit is a discount credit minted when a referral completes.
type Credit struct {
	ID     int64
	UserID int64

	// Amount is the discount percentage
	Amount int

	Type   CreditType
	Reason string
	Used   bool

	ExpiresAt time.Time
	CreatedAt time.Time
}

// Usable reports whether the credit can still be redeemed at the given
// instant.
func (c Credit) Usable(now time.Time) bool {
	return !c.Used && c.ExpiresAt.After(now)
}
