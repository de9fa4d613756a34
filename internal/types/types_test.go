package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPriorityEscalation(t *testing.T) {
	tests := []struct {
		in       Priority
		up, down Priority
	}{
		{PriorityLow, PriorityMedium, PriorityLow},
		{PriorityMedium, PriorityHigh, PriorityLow},
		{PriorityHigh, PriorityCritical, PriorityMedium},
		{PriorityCritical, PriorityCritical, PriorityHigh},
	}
	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.up, tt.in.Escalate())
			assert.Equal(t, tt.down, tt.in.Deescalate())
		})
	}
}

func TestMergeSkillsCaseInsensitive(t *testing.T) {
	got := MergeSkills([]string{"Go", "PostgreSQL"}, []string{"go", "Kubernetes", " ", "postgresql", "Docker"})
	assert.Equal(t, []string{"Go", "PostgreSQL", "Kubernetes", "Docker"}, got)
}

func TestMergeSkillsEmpty(t *testing.T) {
	assert.Empty(t, MergeSkills(nil, nil))
}

func TestWorkSessionValidate(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	later := start.Add(90 * time.Minute)
	same := start

	tests := []struct {
		name    string
		session WorkSession
		wantErr bool
	}{
		{"open session", WorkSession{TaskID: "t", UserID: "u", StartTime: start}, false},
		{"closed session", WorkSession{TaskID: "t", UserID: "u", StartTime: start, EndTime: &later}, false},
		{"end equals start", WorkSession{TaskID: "t", UserID: "u", StartTime: start, EndTime: &same}, true},
		{"missing task", WorkSession{UserID: "u", StartTime: start}, true},
		{"missing start", WorkSession{TaskID: "t", UserID: "u"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.session.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestWorkSessionDuration(t *testing.T) {
	start := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	end := start.Add(90 * time.Minute)

	s := WorkSession{StartTime: start}
	assert.Equal(t, 0.0, s.DurationMinutes())
	assert.False(t, s.IsClosed())

	s.EndTime = &end
	assert.Equal(t, 90.0, s.DurationMinutes())
	assert.Equal(t, 1.5, s.DurationHours())
}

func TestTaskValidate(t *testing.T) {
	task := Task{Title: "Fix login", Status: StatusTodo, Priority: PriorityHigh}
	assert.NoError(t, task.Validate())

	task.Status = "closed"
	assert.Error(t, task.Validate())

	task.Status = StatusTodo
	task.Title = " "
	assert.Error(t, task.Validate())
}

func TestDescriptionText(t *testing.T) {
	assert.Equal(t, "Login fails. Users see 500", DescriptionText("Login fails", "Users see 500"))
	assert.Equal(t, "Login fails", DescriptionText("Login fails", ""))
	assert.Equal(t, "body", DescriptionText("", "body"))
}

func TestUserProfileText(t *testing.T) {
	u := User{WorkProfileText: "Backend engineer", Skills: []string{"Go", "SQL"}}
	assert.Equal(t, "Backend engineer\nSkills: Go, SQL", u.ProfileText())

	u.WorkProfileText = ""
	assert.Equal(t, "Skills: Go, SQL", u.ProfileText())
}

func TestEmbeddingClone(t *testing.T) {
	e := Embedding{Values: []float32{1, 2, 3}}
	c := e.Clone()
	c.Values[0] = 9
	assert.Equal(t, float32(1), e.Values[0])
	assert.True(t, e.Usable())
	assert.False(t, Embedding{Values: []float32{1}, Fallback: true}.Usable())
	assert.False(t, Embedding{}.Usable())
}

func TestCommitValidate(t *testing.T) {
	c := Commit{Hash: "abc123", LinesAdded: 10}
	assert.NoError(t, c.Validate())
	assert.Equal(t, 10, c.TotalLines())
	assert.True(t, c.IsUntracked())

	c.LinesDeleted = -1
	assert.Error(t, c.Validate())
}
