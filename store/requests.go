package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/bizbot-il/bizbot/model"
)

// CreateAgentRequest logs a human-agent request and returns its id.
func (s *Store) CreateAgentRequest(userID int64, username, handle, reason string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`INSERT INTO agent_requests (user_id, username, platform_handle, reason, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		userID, username, handle, reason, string(model.AgentRequestPending), time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create agent request: %w", err)
	}
	return res.LastInsertId()
}

// ListAgentRequests returns requests newest first, filtered by status
// when status is non-empty.
func (s *Store) ListAgentRequests(status string) ([]model.AgentRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, user_id, username, platform_handle, reason, status, created_at, handled_at
	          FROM agent_requests`
	var args []interface{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY id DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query agent requests: %w", err)
	}
	defer rows.Close()

	var requests []model.AgentRequest
	for rows.Next() {
		var r model.AgentRequest
		var username, handle, reason sql.NullString
		var st string
		var createdAt int64
		var handledAt sql.NullInt64
		if err := rows.Scan(&r.ID, &r.UserID, &username, &handle, &reason, &st, &createdAt, &handledAt); err != nil {
			return nil, fmt.Errorf("failed to scan agent request: %w", err)
		}
		r.Username = username.String
		r.PlatformHandle = handle.String
		r.Reason = reason.String
		r.Status = model.AgentRequestStatus(st)
		r.CreatedAt = time.Unix(createdAt, 0).UTC()
		r.HandledAt = unixOrZero(handledAt)
		requests = append(requests, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating agent requests: %w", err)
	}
	return requests, nil
}

// UpdateAgentRequestStatus moves a request through its lifecycle and
// stamps handled_at when it leaves pending.
func (s *Store) UpdateAgentRequestStatus(id int64, status model.AgentRequestStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var handledAt interface{}
	if status != model.AgentRequestPending {
		handledAt = time.Now().Unix()
	}
	res, err := s.db.Exec(
		`UPDATE agent_requests SET status = ?, handled_at = ? WHERE id = ?`,
		string(status), handledAt, id,
	)
	if err != nil {
		return fmt.Errorf("failed to update agent request: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("agent request %d not found", id)
	}
	return nil
}

// CountAgentRequests counts requests with the given status, or all
// when status is empty.
func (s *Store) CountAgentRequests(status string) (int, error) {
	return s.countWithStatus(`agent_requests`, status)
}

// CreateAppointment persists a pending appointment request.
func (s *Store) CreateAppointment(a model.Appointment) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`INSERT INTO appointments (user_id, username, platform_handle, service, preferred_date, preferred_time, notes, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.UserID, a.Username, a.PlatformHandle, a.Service, a.PreferredDate, a.PreferredTime, a.Notes,
		string(model.AppointmentPending), time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create appointment: %w", err)
	}
	return res.LastInsertId()
}

// GetAppointment returns one appointment, nil when it does not exist.
func (s *Store) GetAppointment(id int64) (*model.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var a model.Appointment
	var username, handle, notes sql.NullString
	var st string
	var createdAt int64
	err := s.db.QueryRow(
		`SELECT id, user_id, username, platform_handle, service, preferred_date, preferred_time, notes, status, created_at
		 FROM appointments WHERE id = ?`, id,
	).Scan(&a.ID, &a.UserID, &username, &handle, &a.Service, &a.PreferredDate, &a.PreferredTime, &notes, &st, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query appointment: %w", err)
	}
	a.Username = username.String
	a.PlatformHandle = handle.String
	a.Notes = notes.String
	a.Status = model.AppointmentStatus(st)
	a.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &a, nil
}

// ListAppointments returns appointments newest first, filtered by
// status when status is non-empty.
func (s *Store) ListAppointments(status string) ([]model.Appointment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, user_id, username, platform_handle, service, preferred_date, preferred_time, notes, status, created_at
	          FROM appointments`
	var args []interface{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY id DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query appointments: %w", err)
	}
	defer rows.Close()

	var appointments []model.Appointment
	for rows.Next() {
		var a model.Appointment
		var username, handle, notes sql.NullString
		var st string
		var createdAt int64
		if err := rows.Scan(&a.ID, &a.UserID, &username, &handle, &a.Service, &a.PreferredDate, &a.PreferredTime, &notes, &st, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		a.Username = username.String
		a.PlatformHandle = handle.String
		a.Notes = notes.String
		a.Status = model.AppointmentStatus(st)
		a.CreatedAt = time.Unix(createdAt, 0).UTC()
		appointments = append(appointments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating appointments: %w", err)
	}
	return appointments, nil
}

// UpdateAppointmentStatus moves an appointment through its lifecycle.
func (s *Store) UpdateAppointmentStatus(id int64, status model.AppointmentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`UPDATE appointments SET status = ? WHERE id = ?`,
		string(status), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update appointment: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("appointment %d not found", id)
	}
	return nil
}

// CountAppointments counts appointments with the given status, or all
// when status is empty.
func (s *Store) CountAppointments(status string) (int, error) {
	return s.countWithStatus(`appointments`, status)
}

// CreateUnansweredQuestion logs a question the bot had no grounded
// answer for.
func (s *Store) CreateUnansweredQuestion(userID int64, username, question string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`INSERT INTO unanswered_questions (user_id, username, question, status, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		userID, username, question, string(model.QuestionOpen), time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create unanswered question: %w", err)
	}
	return res.LastInsertId()
}

// ListUnansweredQuestions returns questions newest first, filtered by
// status when status is non-empty.
func (s *Store) ListUnansweredQuestions(status string) ([]model.UnansweredQuestion, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, user_id, username, question, status, created_at, resolved_at
	          FROM unanswered_questions`
	var args []interface{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY id DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query unanswered questions: %w", err)
	}
	defer rows.Close()

	var questions []model.UnansweredQuestion
	for rows.Next() {
		var q model.UnansweredQuestion
		var username sql.NullString
		var st string
		var createdAt int64
		var resolvedAt sql.NullInt64
		if err := rows.Scan(&q.ID, &q.UserID, &username, &q.Question, &st, &createdAt, &resolvedAt); err != nil {
			return nil, fmt.Errorf("failed to scan unanswered question: %w", err)
		}
		q.Username = username.String
		q.Status = model.QuestionStatus(st)
		q.CreatedAt = time.Unix(createdAt, 0).UTC()
		q.ResolvedAt = unixOrZero(resolvedAt)
		questions = append(questions, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating unanswered questions: %w", err)
	}
	return questions, nil
}

// ResolveUnansweredQuestion marks a question handled.
func (s *Store) ResolveUnansweredQuestion(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`UPDATE unanswered_questions SET status = ?, resolved_at = ? WHERE id = ?`,
		string(model.QuestionResolved), time.Now().Unix(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to resolve unanswered question: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("unanswered question %d not found", id)
	}
	return nil
}

// CountUnansweredQuestions counts questions with the given status, or
// all when status is empty.
func (s *Store) CountUnansweredQuestions(status string) (int, error) {
	return s.countWithStatus(`unanswered_questions`, status)
}

// countWithStatus counts rows in table, optionally filtered by status.
// The table name is always one of our own constants, never user input.
func (s *Store) countWithStatus(table, status string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT COUNT(*) FROM ` + table
	var args []interface{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	var n int
	if err := s.db.QueryRow(query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}
