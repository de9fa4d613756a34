package types

import (
	"fmt"
	"strings"
	"time"
)

// RequisitionStatus tracks a job requisition through hiring
type RequisitionStatus string

const (
	RequisitionPending RequisitionStatus = "pending"
	RequisitionReady   RequisitionStatus = "ready"
	RequisitionPosted  RequisitionStatus = "posted"
	RequisitionClosed  RequisitionStatus = "closed"
)

// IsValid checks if the requisition status value is valid
func (s RequisitionStatus) IsValid() bool {
	switch s {
	case RequisitionPending, RequisitionReady, RequisitionPosted, RequisitionClosed:
		return true
	}
	return false
}

// JobRequisition is raised when no developer can take a task.
type JobRequisition struct {
	ID                      string            `json:"id"`
	TaskID                  string            `json:"task_id"`
	SuggestedTitle          string            `json:"suggested_title"`
	Description             string            `json:"description"`
	RequiredSkills          []string          `json:"required_skills"`
	MissingSkills           []string          `json:"missing_skills,omitempty"`
	RequiredExperienceYears int               `json:"required_experience_years,omitempty"`
	Status                  RequisitionStatus `json:"status"`
	CreatedAt               time.Time         `json:"created_at"`
	UpdatedAt               time.Time         `json:"updated_at"`
}

// Validate checks if the requisition has valid field values
func (j *JobRequisition) Validate() error {
	if j.TaskID == "" {
		return fmt.Errorf("task_id is required")
	}
	if strings.TrimSpace(j.SuggestedTitle) == "" {
		return fmt.Errorf("suggested_title is required")
	}
	if !j.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", j.Status)
	}
	if j.RequiredExperienceYears < 0 {
		return fmt.Errorf("required_experience_years cannot be negative (got %d)", j.RequiredExperienceYears)
	}
	return nil
}
