package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/bizbot-il/bizbot/model"
)

// BusinessHours returns the weekly schedule ordered Sunday to Saturday.
// Days never written yet are simply absent.
func (s *Store) BusinessHours() ([]model.DayHours, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT day_of_week, open_time, close_time, closed FROM business_hours ORDER BY day_of_week`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query business hours: %w", err)
	}
	defer rows.Close()

	var hours []model.DayHours
	for rows.Next() {
		var h model.DayHours
		var open, close_ sql.NullString
		var closed int
		if err := rows.Scan(&h.Day, &open, &close_, &closed); err != nil {
			return nil, fmt.Errorf("failed to scan business hours: %w", err)
		}
		h.Open = open.String
		h.Close = close_.String
		h.Closed = closed != 0
		hours = append(hours, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating business hours: %w", err)
	}
	return hours, nil
}

// DayHoursFor returns the schedule row for one weekday, nil when the
// day was never configured.
func (s *Store) DayHoursFor(day int) (*model.DayHours, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var h model.DayHours
	var open, close_ sql.NullString
	var closed int
	err := s.db.QueryRow(
		`SELECT day_of_week, open_time, close_time, closed FROM business_hours WHERE day_of_week = ?`,
		day,
	).Scan(&h.Day, &open, &close_, &closed)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query business hours: %w", err)
	}
	h.Open = open.String
	h.Close = close_.String
	h.Closed = closed != 0
	return &h, nil
}

// SetDayHours writes one weekday's schedule. Day follows the business
// convention, 0 = Sunday.
func (s *Store) SetDayHours(h model.DayHours) error {
	if h.Day < 0 || h.Day > 6 {
		return fmt.Errorf("day_of_week %d out of range", h.Day)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO business_hours (day_of_week, open_time, close_time, closed)
		 VALUES (?, ?, ?, ?)`,
		h.Day, h.Open, h.Close, boolToInt(h.Closed),
	)
	if err != nil {
		return fmt.Errorf("failed to set business hours: %w", err)
	}
	return nil
}

// SpecialDayFor returns the override for one calendar date, nil when
// there is none. date is "YYYY-MM-DD".
func (s *Store) SpecialDayFor(date string) (*model.SpecialDay, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var d model.SpecialDay
	var name, open, close_, notes sql.NullString
	var closed int
	var createdAt int64
	err := s.db.QueryRow(
		`SELECT id, date, name, open_time, close_time, closed, notes, created_at
		 FROM special_days WHERE date = ?`, date,
	).Scan(&d.ID, &d.Date, &name, &open, &close_, &closed, &notes, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query special day: %w", err)
	}
	d.Name = name.String
	d.Open = open.String
	d.Close = close_.String
	d.Closed = closed != 0
	d.Notes = notes.String
	d.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &d, nil
}

// ListSpecialDays returns overrides on or after fromDate, soonest
// first.
func (s *Store) ListSpecialDays(fromDate string) ([]model.SpecialDay, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT id, date, name, open_time, close_time, closed, notes, created_at
		 FROM special_days WHERE date >= ? ORDER BY date ASC`, fromDate,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query special days: %w", err)
	}
	defer rows.Close()

	var days []model.SpecialDay
	for rows.Next() {
		var d model.SpecialDay
		var name, open, close_, notes sql.NullString
		var closed int
		var createdAt int64
		if err := rows.Scan(&d.ID, &d.Date, &name, &open, &close_, &closed, &notes, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan special day: %w", err)
		}
		d.Name = name.String
		d.Open = open.String
		d.Close = close_.String
		d.Closed = closed != 0
		d.Notes = notes.String
		d.CreatedAt = time.Unix(createdAt, 0).UTC()
		days = append(days, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating special days: %w", err)
	}
	return days, nil
}

// CreateSpecialDay inserts or replaces the override for its date.
func (s *Store) CreateSpecialDay(d model.SpecialDay) (int64, error) {
	if d.Date == "" {
		return 0, fmt.Errorf("special day requires a date")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`INSERT OR REPLACE INTO special_days (date, name, open_time, close_time, closed, notes, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.Date, d.Name, d.Open, d.Close, boolToInt(d.Closed), d.Notes, time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create special day: %w", err)
	}
	return res.LastInsertId()
}

// DeleteSpecialDay removes one override by id.
func (s *Store) DeleteSpecialDay(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM special_days WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete special day: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return fmt.Errorf("special day %d not found", id)
	}
	return nil
}
