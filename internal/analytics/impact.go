package analytics

import (
	"sort"
	"time"

	"github.com/coresight/coresight/internal/types"
)

// Category classifies a single commit by its refactor ratio.
type Category string

const (
	CategoryNewFeature  Category = "new_feature"
	CategoryRefactoring Category = "refactoring"
	CategoryCleanup     Category = "cleanup"
)

// Label summarizes a developer's commit mix.
type Label string

const (
	LabelMaker    Label = "maker"
	LabelMender   Label = "mender"
	LabelCleaner  Label = "cleaner"
	LabelBalanced Label = "balanced"
)

// Category boundaries on the refactor ratio
const (
	newFeatureBelow = 0.3
	cleanupAbove    = 0.6
)

// RefactorRatio is (deleted+modified)/(added+deleted+modified), 0 for an
// empty diff. The result is always in [0, 1].
func RefactorRatio(added, deleted, modified int) float64 {
	total := added + deleted + modified
	if total <= 0 {
		return 0
	}
	return float64(deleted+modified) / float64(total)
}

// CategoryFor maps a refactor ratio to its category. 0.3 and 0.6 are both
// refactoring.
func CategoryFor(ratio float64) Category {
	switch {
	case ratio < newFeatureBelow:
		return CategoryNewFeature
	case ratio <= cleanupAbove:
		return CategoryRefactoring
	default:
		return CategoryCleanup
	}
}

// ClassifyCommit returns the commit's refactor ratio and category.
func ClassifyCommit(c *types.Commit) (float64, Category) {
	ratio := RefactorRatio(c.LinesAdded, c.LinesDeleted, c.LinesModified)
	return ratio, CategoryFor(ratio)
}

// LabelFor picks the profile label from category percentages. Maker is
// checked first, then mender, then cleaner.
func LabelFor(newFeaturePct, refactoringPct, cleanupPct float64) Label {
	switch {
	case newFeaturePct >= 50:
		return LabelMaker
	case refactoringPct >= 40:
		return LabelMender
	case cleanupPct >= 40:
		return LabelCleaner
	default:
		return LabelBalanced
	}
}

// CategoryShare is a category's count and percentage of all commits.
type CategoryShare struct {
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// CommitImpact is the classification of one commit.
type CommitImpact struct {
	Hash          string    `json:"hash"`
	Message       string    `json:"message"`
	LinesAdded    int       `json:"lines_added"`
	LinesDeleted  int       `json:"lines_deleted"`
	LinesModified int       `json:"lines_modified"`
	RefactorRatio float64   `json:"refactor_ratio"`
	Category      Category  `json:"category"`
	Timestamp     time.Time `json:"timestamp"`
}

// ImpactReport is a developer's maker vs mender breakdown.
type ImpactReport struct {
	UserID               string                     `json:"user_id"`
	TotalCommits         int                        `json:"total_commits"`
	TotalLinesAdded      int                        `json:"total_lines_added"`
	TotalLinesDeleted    int                        `json:"total_lines_deleted"`
	TotalLinesModified   int                        `json:"total_lines_modified"`
	OverallRefactorRatio float64                    `json:"overall_refactor_ratio"`
	Label                Label                      `json:"label"`
	Breakdown            map[Category]CategoryShare `json:"category_breakdown"`
	// RecentCommits holds the latest commits, newest first
	RecentCommits []CommitImpact `json:"recent_commits"`
}

// DefaultRecentCommits is how many commits an impact report details.
const DefaultRecentCommits = 10

// ImpactBreakdown classifies userID's commits. An empty history yields a
// balanced report with zero totals.
func ImpactBreakdown(userID string, commits []*types.Commit, recent int) ImpactReport {
	report := ImpactReport{
		UserID: userID,
		Label:  LabelBalanced,
		Breakdown: map[Category]CategoryShare{
			CategoryNewFeature:  {},
			CategoryRefactoring: {},
			CategoryCleanup:     {},
		},
		RecentCommits: []CommitImpact{},
	}
	if len(commits) == 0 {
		return report
	}

	ordered := make([]*types.Commit, len(commits))
	copy(ordered, commits)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.After(ordered[j].Timestamp)
	})

	counts := make(map[Category]int, 3)
	for _, c := range ordered {
		report.TotalLinesAdded += c.LinesAdded
		report.TotalLinesDeleted += c.LinesDeleted
		report.TotalLinesModified += c.LinesModified

		ratio, category := ClassifyCommit(c)
		counts[category]++
		if recent <= 0 || len(report.RecentCommits) < recent {
			report.RecentCommits = append(report.RecentCommits, CommitImpact{
				Hash:          c.Hash,
				Message:       truncate(c.Message, 100),
				LinesAdded:    c.LinesAdded,
				LinesDeleted:  c.LinesDeleted,
				LinesModified: c.LinesModified,
				RefactorRatio: ratio,
				Category:      category,
				Timestamp:     c.Timestamp,
			})
		}
	}

	n := len(ordered)
	report.TotalCommits = n
	report.OverallRefactorRatio = RefactorRatio(report.TotalLinesAdded, report.TotalLinesDeleted, report.TotalLinesModified)
	for _, category := range []Category{CategoryNewFeature, CategoryRefactoring, CategoryCleanup} {
		report.Breakdown[category] = CategoryShare{
			Count:      counts[category],
			Percentage: float64(counts[category]) / float64(n) * 100,
		}
	}
	report.Label = LabelFor(
		report.Breakdown[CategoryNewFeature].Percentage,
		report.Breakdown[CategoryRefactoring].Percentage,
		report.Breakdown[CategoryCleanup].Percentage,
	)
	return report
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
