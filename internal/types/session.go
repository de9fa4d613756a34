package types

import (
	"fmt"
	"time"
)

// WorkSession is a span of time a developer spent on a task.
// An open session has a nil EndTime.
type WorkSession struct {
	ID        string     `json:"id" yaml:"id"`
	TaskID    string     `json:"task_id" yaml:"task_id"`
	UserID    string     `json:"user_id" yaml:"user_id"`
	StartTime time.Time  `json:"start_time" yaml:"start_time"`
	EndTime   *time.Time `json:"end_time,omitempty" yaml:"end_time"`
}

// Validate checks if the session has valid field values
func (s *WorkSession) Validate() error {
	if s.TaskID == "" {
		return fmt.Errorf("task_id is required")
	}
	if s.UserID == "" {
		return fmt.Errorf("user_id is required")
	}
	if s.StartTime.IsZero() {
		return fmt.Errorf("start_time is required")
	}
	if s.EndTime != nil && !s.EndTime.After(s.StartTime) {
		return fmt.Errorf("end_time must be after start_time (start=%s end=%s)",
			s.StartTime.Format(time.RFC3339), s.EndTime.Format(time.RFC3339))
	}
	return nil
}

// IsClosed reports whether the session has ended.
func (s *WorkSession) IsClosed() bool {
	return s.EndTime != nil
}

// DurationMinutes is derived from the endpoints; open sessions report 0.
func (s *WorkSession) DurationMinutes() float64 {
	if s.EndTime == nil {
		return 0
	}
	d := s.EndTime.Sub(s.StartTime)
	if d < 0 {
		return 0
	}
	return d.Minutes()
}

// DurationHours is DurationMinutes expressed in hours.
func (s *WorkSession) DurationHours() float64 {
	return s.DurationMinutes() / 60
}
