package model

import "time"

// AppointmentStatus is the lifecycle state of an appointment request.
type AppointmentStatus string

const (
	AppointmentPending   AppointmentStatus = "pending"
	AppointmentConfirmed AppointmentStatus = "confirmed"
	AppointmentCancelled AppointmentStatus = "cancelled"
)

// Appointment is an appointment request collected by the booking flow.
// Date and time are free text exactly as the customer typed them; the
// owner interprets them when confirming.
type Appointment struct {
	ID             int64
	UserID         int64
	Username       string
	PlatformHandle string

	Service       string
	PreferredDate string
	PreferredTime string
	Notes         string

	Status    AppointmentStatus
	CreatedAt time.Time
}

// AgentRequestStatus is the lifecycle state of a human-agent request.
type AgentRequestStatus string

const (
	AgentRequestPending   AgentRequestStatus = "pending"
	AgentRequestHandled   AgentRequestStatus = "handled"
	AgentRequestDismissed AgentRequestStatus = "dismissed"
)

// AgentRequest records that a customer asked for (or was handed off to)
// a human agent. Reason carries the triggering message or context.
type AgentRequest struct {
	ID             int64
	UserID         int64
	Username       string
	PlatformHandle string
	Reason         string

	Status    AgentRequestStatus
	CreatedAt time.Time
	HandledAt time.Time // zero until handled or dismissed
}

// QuestionStatus is the lifecycle state of an unanswered question.
type QuestionStatus string

const (
	QuestionOpen     QuestionStatus = "open"
	QuestionResolved QuestionStatus = "resolved"
)

// UnansweredQuestion is a customer question the bot could not answer
// from the knowledge base, logged for the owner to review.
type UnansweredQuestion struct {
	ID       int64
	UserID   int64
	Username string
	Question string

	Status     QuestionStatus
	CreatedAt  time.Time
	ResolvedAt time.Time // zero while open
}
