package analytics

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/coresight/coresight/internal/types"
)

// RiskLevel is a developer's context switching burnout risk.
type RiskLevel string

const (
	RiskHigh   RiskLevel = "high"
	RiskMedium RiskLevel = "medium"
	RiskLow    RiskLevel = "low"
)

func (r RiskLevel) order() int {
	switch r {
	case RiskHigh:
		return 0
	case RiskMedium:
		return 1
	}
	return 2
}

const (
	// DefaultSwitchThreshold is the switches per day that count as a
	// high-risk day.
	DefaultSwitchThreshold = 4
	// highRiskDayShare of the window's days being high risk makes the
	// developer high risk regardless of the average.
	highRiskDayShare = 0.4
	// mediumRiskFactor of the threshold is the medium-risk average.
	mediumRiskFactor = 0.7
)

const dayLayout = "2006-01-02"

// Window is the analysis period. Sessions starting in [Start, End] count.
type Window struct {
	Start time.Time
	End   time.Time
}

// LastDays returns the window of the given number of days ending at end.
func LastDays(end time.Time, days int) Window {
	return Window{Start: end.Add(-time.Duration(days) * 24 * time.Hour), End: end}
}

// Days is the window length in whole days, rounded up.
func (w Window) Days() int {
	d := w.End.Sub(w.Start)
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Hours() / 24))
}

func (w Window) contains(t time.Time) bool {
	return !t.Before(w.Start) && !t.After(w.End)
}

// DaySwitches is one calendar day of a developer's work.
type DaySwitches struct {
	Date        string `json:"date"`
	UniqueTasks int    `json:"unique_tasks"`
	Switches    int    `json:"context_switches"`
	HighRisk    bool   `json:"high_risk"`
}

// UserFocus is a developer's context switching summary.
type UserFocus struct {
	UserID        string    `json:"user_id"`
	UserName      string    `json:"user_name"`
	TotalSwitches int       `json:"total_context_switches"`
	AvgSwitches   float64   `json:"average_switches_per_day"`
	MaxSwitches   int       `json:"max_switches_in_day"`
	HighRiskDays  int       `json:"high_risk_days"`
	DaysAnalyzed  int       `json:"days_analyzed"`
	Risk          RiskLevel `json:"risk_level"`
	// Days is newest first
	Days []DaySwitches `json:"daily_breakdown"`
}

// TeamSummary aggregates risk across the team.
type TeamSummary struct {
	UsersAnalyzed      int     `json:"total_users_analyzed"`
	HighRisk           int     `json:"high_risk_users"`
	MediumRisk         int     `json:"medium_risk_users"`
	LowRisk            int     `json:"low_risk_users"`
	TotalSwitches      int     `json:"total_context_switches"`
	AvgSwitchesPerUser float64 `json:"average_switches_per_user"`
}

// Alert names the developers flagged as high risk.
type Alert struct {
	Threshold    int      `json:"high_risk_threshold"`
	UsersFlagged []string `json:"users_flagged"`
	Message      string   `json:"message"`
}

// FocusReport is the team focus health report.
type FocusReport struct {
	WindowDays int         `json:"window_days"`
	Start      time.Time   `json:"start"`
	End        time.Time   `json:"end"`
	Summary    TeamSummary `json:"team_summary"`
	Alert      Alert       `json:"alert"`
	// Users is ordered high risk first, then by average switches descending
	Users []UserFocus `json:"user_details"`
}

// FocusHealth counts context switches per developer per UTC calendar day.
// A day's switches are its distinct tasks minus one. names maps user id to
// display name; unknown ids are reported as "Unknown".
func FocusHealth(sessions []*types.WorkSession, names map[string]string, window Window, threshold int) FocusReport {
	if threshold <= 0 {
		threshold = DefaultSwitchThreshold
	}
	report := FocusReport{
		WindowDays: window.Days(),
		Start:      window.Start,
		End:        window.End,
		Alert:      Alert{Threshold: threshold, UsersFlagged: []string{}},
		Users:      []UserFocus{},
	}

	// user -> day -> distinct tasks
	daily := make(map[string]map[string]map[string]bool)
	for _, s := range sessions {
		if s.StartTime.IsZero() || !window.contains(s.StartTime) {
			continue
		}
		day := s.StartTime.UTC().Format(dayLayout)
		if daily[s.UserID] == nil {
			daily[s.UserID] = make(map[string]map[string]bool)
		}
		if daily[s.UserID][day] == nil {
			daily[s.UserID][day] = make(map[string]bool)
		}
		daily[s.UserID][day][s.TaskID] = true
	}

	for userID, days := range daily {
		u := userFocus(userID, days, threshold, report.WindowDays)
		u.UserName = names[userID]
		if u.UserName == "" {
			u.UserName = "Unknown"
		}
		report.Users = append(report.Users, u)
	}
	sort.Slice(report.Users, func(i, j int) bool {
		a, b := report.Users[i], report.Users[j]
		if a.Risk != b.Risk {
			return a.Risk.order() < b.Risk.order()
		}
		if a.AvgSwitches != b.AvgSwitches {
			return a.AvgSwitches > b.AvgSwitches
		}
		return a.UserID < b.UserID
	})

	s := &report.Summary
	s.UsersAnalyzed = len(report.Users)
	for _, u := range report.Users {
		s.TotalSwitches += u.TotalSwitches
		switch u.Risk {
		case RiskHigh:
			s.HighRisk++
			report.Alert.UsersFlagged = append(report.Alert.UsersFlagged, u.UserName)
		case RiskMedium:
			s.MediumRisk++
		default:
			s.LowRisk++
		}
	}
	if s.UsersAnalyzed > 0 {
		s.AvgSwitchesPerUser = float64(s.TotalSwitches) / float64(s.UsersAnalyzed)
	}
	report.Alert.Message = "Team focus health is good"
	if s.HighRisk > 0 {
		report.Alert.Message = fmt.Sprintf("%d user(s) showing signs of context switching overload", s.HighRisk)
	}
	return report
}

func userFocus(userID string, days map[string]map[string]bool, threshold, windowDays int) UserFocus {
	u := UserFocus{UserID: userID, DaysAnalyzed: len(days)}
	for day, tasks := range days {
		switches := max(len(tasks)-1, 0)
		high := switches >= threshold
		u.Days = append(u.Days, DaySwitches{
			Date:        day,
			UniqueTasks: len(tasks),
			Switches:    switches,
			HighRisk:    high,
		})
		u.TotalSwitches += switches
		u.MaxSwitches = max(u.MaxSwitches, switches)
		if high {
			u.HighRiskDays++
		}
	}
	sort.Slice(u.Days, func(i, j int) bool { return u.Days[i].Date > u.Days[j].Date })

	if u.DaysAnalyzed > 0 {
		u.AvgSwitches = float64(u.TotalSwitches) / float64(u.DaysAnalyzed)
	}
	u.Risk = riskFor(u.AvgSwitches, u.HighRiskDays, threshold, windowDays)
	return u
}

func riskFor(avg float64, highRiskDays, threshold, windowDays int) RiskLevel {
	t := float64(threshold)
	switch {
	case avg >= t:
		return RiskHigh
	case windowDays > 0 && float64(highRiskDays) >= highRiskDayShare*float64(windowDays):
		return RiskHigh
	case avg >= mediumRiskFactor*t:
		return RiskMedium
	default:
		return RiskLow
	}
}
