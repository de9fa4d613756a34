package analytics

import (
	"github.com/coresight/coresight/internal/types"
)

// BudgetStatus compares a task's actual cost to its prorated budget.
type BudgetStatus string

const (
	StatusOverBudget  BudgetStatus = "over_budget"
	StatusUnderBudget BudgetStatus = "under_budget"
)

// UserCost is one developer's share of a task's cost.
type UserCost struct {
	UserID     string  `json:"user_id"`
	UserName   string  `json:"user_name"`
	HourlyRate float64 `json:"hourly_rate"`
	Hours      float64 `json:"hours_worked"`
	Cost       float64 `json:"total_cost"`
	Sessions   int     `json:"session_count"`
}

// BudgetAnalysis compares a task against its share of the project budget.
type BudgetAnalysis struct {
	ProjectID      string       `json:"project_id"`
	ProjectName    string       `json:"project_name"`
	TotalBudget    float64      `json:"project_total_budget"`
	TaskCount      int          `json:"task_count_in_project"`
	ProratedBudget float64      `json:"prorated_task_budget"`
	Variance       float64      `json:"budget_variance"`
	VariancePct    float64      `json:"budget_variance_percentage"`
	Status         BudgetStatus `json:"status"`
}

// TaskCostReport is the true cost of a task.
type TaskCostReport struct {
	TaskID            string     `json:"task_id"`
	TaskTitle         string     `json:"task_title"`
	TaskStatus        string     `json:"task_status"`
	TotalCost         float64    `json:"total_cost"`
	TotalHours        float64    `json:"total_hours"`
	AverageHourlyRate float64    `json:"average_hourly_rate"`
	Users             []UserCost `json:"user_breakdown"`
	// Budget is nil when the task has no project
	Budget *BudgetAnalysis `json:"budget_analysis,omitempty"`
	// OpenSessions counts sessions left out because they have not ended
	OpenSessions int `json:"open_sessions"`
	// UnknownUserSessions counts sessions whose user could not be found
	UnknownUserSessions int `json:"unknown_user_sessions"`
}

// TaskCost sums closed sessions of task at each developer's hourly rate
// and compares the total with project's budget divided by taskCount.
// Sessions for other tasks are ignored. A zero variance is under budget.
func TaskCost(task *types.Task, sessions []*types.WorkSession, users map[string]*types.User, project *types.Project, taskCount int) TaskCostReport {
	report := TaskCostReport{
		TaskID:     task.ID,
		TaskTitle:  task.Title,
		TaskStatus: string(task.Status),
		Users:      []UserCost{},
	}

	index := make(map[string]int)
	for _, s := range sessions {
		if s.TaskID != task.ID {
			continue
		}
		if !s.IsClosed() {
			report.OpenSessions++
			continue
		}
		u, ok := users[s.UserID]
		if !ok || u == nil {
			report.UnknownUserSessions++
			continue
		}

		hours := s.DurationHours()
		cost := hours * u.HourlyRate
		i, seen := index[u.ID]
		if !seen {
			i = len(report.Users)
			index[u.ID] = i
			report.Users = append(report.Users, UserCost{UserID: u.ID, UserName: u.Name, HourlyRate: u.HourlyRate})
		}
		report.Users[i].Hours += hours
		report.Users[i].Cost += cost
		report.Users[i].Sessions++

		report.TotalHours += hours
		report.TotalCost += cost
	}
	if report.TotalHours > 0 {
		report.AverageHourlyRate = report.TotalCost / report.TotalHours
	}

	if project != nil {
		report.Budget = budget(report.TotalCost, project, taskCount)
	}
	return report
}

func budget(actual float64, project *types.Project, taskCount int) *BudgetAnalysis {
	b := &BudgetAnalysis{
		ProjectID:   project.ID,
		ProjectName: project.Name,
		TotalBudget: project.TotalBudget,
		TaskCount:   taskCount,
	}
	if taskCount > 0 {
		b.ProratedBudget = project.TotalBudget / float64(taskCount)
	}
	b.Variance = actual - b.ProratedBudget
	if b.ProratedBudget > 0 {
		b.VariancePct = b.Variance / b.ProratedBudget * 100
	}
	b.Status = StatusUnderBudget
	if b.Variance > 0 {
		b.Status = StatusOverBudget
	}
	return b
}
