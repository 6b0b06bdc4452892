package store

import (
	"github.com/bizbot-il/bizbot/model"
)

// DashboardStats is the counter set shown on the admin dashboard.
type DashboardStats struct {
	Conversations        int `json:"conversations"`
	Messages             int `json:"messages"`
	PendingAppointments  int `json:"pending_appointments"`
	PendingAgentRequests int `json:"pending_agent_requests"`
	OpenQuestions        int `json:"open_questions"`
	ActiveLiveChats      int `json:"active_live_chats"`
	Subscribers          int `json:"subscribers"`
	KBEntries            int `json:"kb_entries"`
	CompletedReferrals   int `json:"completed_referrals"`
}

// Stats gathers the dashboard counters in one call.
func (s *Store) Stats() (DashboardStats, error) {
	var stats DashboardStats
	var err error

	if stats.Conversations, err = s.CountConversations(); err != nil {
		return stats, err
	}
	if stats.Messages, err = s.CountMessages(); err != nil {
		return stats, err
	}
	if stats.PendingAppointments, err = s.CountAppointments(string(model.AppointmentPending)); err != nil {
		return stats, err
	}
	if stats.PendingAgentRequests, err = s.CountAgentRequests(string(model.AgentRequestPending)); err != nil {
		return stats, err
	}
	if stats.OpenQuestions, err = s.CountUnansweredQuestions(string(model.QuestionOpen)); err != nil {
		return stats, err
	}

	chats, err := s.ListActiveLiveChats()
	if err != nil {
		return stats, err
	}
	stats.ActiveLiveChats = len(chats)

	if stats.Subscribers, err = s.CountSubscribers(); err != nil {
		return stats, err
	}
	if stats.KBEntries, err = s.CountKBEntries(false); err != nil {
		return stats, err
	}
	if stats.CompletedReferrals, err = s.CountReferrals(string(model.ReferralCompleted)); err != nil {
		return stats, err
	}
	return stats, nil
}
