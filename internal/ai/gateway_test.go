package ai

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coresight/coresight/internal/types"
)

// scriptedCompleter returns queued responses in order.
type scriptedCompleter struct {
	mu        sync.Mutex
	responses []string
	errs      []error
	prompts   []string
	ops       []string
	delay     time.Duration
}

func (s *scriptedCompleter) Complete(ctx context.Context, prompt, schemaHint string) (string, error) {
	s.mu.Lock()
	i := len(s.prompts)
	s.prompts = append(s.prompts, prompt)
	s.ops = append(s.ops, OperationFrom(ctx))
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if i < len(s.errs) && s.errs[i] != nil {
		return "", s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return "", errors.New("no scripted response")
}

func (s *scriptedCompleter) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.prompts)
}

func TestReasonParsed(t *testing.T) {
	c := &scriptedCompleter{responses: []string{"```json\n{\"can_do\": true, \"confidence\": 0.9, \"reasoning\": \"fits\"}\n```"}}
	g := NewGateway(c, time.Second, nil)

	task := &types.Task{Title: "Build API", RequiredSkills: []string{"Go"}}
	user := &types.User{Name: "Ada", Skills: []string{"Go"}}
	d := Reason(context.Background(), g, AssignmentValidationRequest(task, user, 0.8))

	require.True(t, d.Parsed)
	assert.False(t, d.IsFallback())
	assert.True(t, d.Value.CanDo)
	assert.Equal(t, 0.9, d.Value.Confidence)
	assert.Equal(t, []string{OpAssignment}, c.ops)
}

func TestReasonProviderFailureFallsBack(t *testing.T) {
	c := &scriptedCompleter{errs: []error{errors.New("401 unauthorized")}}
	g := NewGateway(c, time.Second, nil)

	d := Reason(context.Background(), g, Request[AssignmentValidation]{
		Operation: OpAssignment,
		Prompt:    "p",
		Default:   AssignmentValidation{CanDo: false},
	})

	assert.True(t, d.IsFallback())
	assert.False(t, d.Value.CanDo)
	assert.True(t, errors.Is(d.FallbackErr, ErrProviderFailure))
	assert.Equal(t, 1, c.calls(), "provider failures are not retried by the gateway")
}

func TestReasonTimeoutFallsBack(t *testing.T) {
	c := &scriptedCompleter{delay: time.Second, responses: []string{`{"can_do": true}`}}
	g := NewGateway(c, 20*time.Millisecond, nil)

	d := Reason(context.Background(), g, Request[AssignmentValidation]{Operation: OpAssignment, Prompt: "p"})

	assert.True(t, d.IsFallback())
	assert.True(t, errors.Is(d.FallbackErr, ErrProviderTimeout))
}

func TestReasonMalformedRetriesOnceWithStrictPrompt(t *testing.T) {
	c := &scriptedCompleter{responses: []string{
		"I think they can probably do it.",
		`{"can_do": true, "confidence": 0.7}`,
	}}
	g := NewGateway(c, time.Second, nil)

	d := Reason(context.Background(), g, Request[AssignmentValidation]{Operation: OpAssignment, Prompt: "base"})

	require.True(t, d.Parsed)
	assert.True(t, d.Value.CanDo)
	require.Equal(t, 2, c.calls())
	assert.Equal(t, "base", c.prompts[0])
	assert.True(t, strings.HasPrefix(c.prompts[1], "base"))
	assert.Contains(t, c.prompts[1], "ONLY the raw JSON")
	assert.Equal(t, int64(1), g.Stats().Retries)
}

func TestReasonMalformedTwiceFallsBack(t *testing.T) {
	c := &scriptedCompleter{responses: []string{"nope", "still nope"}}
	g := NewGateway(c, time.Second, nil)

	def := DuplicateDecision{IsDuplicate: false}
	d := Reason(context.Background(), g, Request[DuplicateDecision]{Operation: OpDuplicateCheck, Prompt: "p", Default: def})

	assert.True(t, d.IsFallback())
	assert.True(t, errors.Is(d.FallbackErr, ErrMalformedResponse))
	assert.Equal(t, def, d.Value)
	assert.Equal(t, 2, c.calls())
}

func TestReasonValidationFailureIsMalformed(t *testing.T) {
	c := &scriptedCompleter{responses: []string{
		`{"is_duplicate": true, "confidence": 1.7, "parent_task_id": "t1"}`,
		`{"is_duplicate": true, "confidence": 0.9, "parent_task_id": "t1", "priority_change": "INCREASED"}`,
	}}
	g := NewGateway(c, time.Second, nil)

	issue := &types.Issue{Title: "Login broken"}
	primary := DuplicateCandidate{Task: &types.Task{ID: "t1", Title: "Fix login"}, Score: 0.9}
	d := Reason(context.Background(), g, DuplicateCheckRequest(issue, primary, nil))

	require.True(t, d.Parsed)
	assert.Equal(t, PriorityIncreased, d.Value.PriorityChange)
	assert.Equal(t, 2, c.calls())
}

func TestReasonNilCompleter(t *testing.T) {
	g := NewGateway(nil, time.Second, nil)
	d := Reason(context.Background(), g, Request[SkillExtraction]{Default: SkillExtraction{RequiredSkills: []string{"Go"}}})
	assert.True(t, d.IsFallback())
	assert.Equal(t, []string{"Go"}, d.Value.RequiredSkills)
}

func TestDuplicateCheckPromptMarksSecondaryAsContext(t *testing.T) {
	issue := &types.Issue{Title: "Checkout times out", Description: "Payment page hangs"}
	primary := DuplicateCandidate{Task: &types.Task{ID: "t-primary", Title: "Checkout latency"}, Score: 0.91}
	secondary := []DuplicateCandidate{{Task: &types.Task{ID: "t-other", Title: "Payment retries"}, Score: 0.75}}

	req := DuplicateCheckRequest(issue, primary, secondary)
	assert.Contains(t, req.Prompt, "t-primary")
	assert.Contains(t, req.Prompt, "t-other")
	assert.Contains(t, req.Prompt, "never the merge target")
	assert.False(t, req.Default.IsDuplicate)
}

func TestCommitAnalysisDefaults(t *testing.T) {
	commit := &types.Commit{Hash: "abc", Message: "Add retry to webhook client", DiffSummary: strings.Repeat("x", 5000)}
	req := CommitAnalysisRequest(commit)

	assert.Equal(t, "Add retry to webhook client", req.Default.Summary)
	assert.Equal(t, "minor", req.Default.Impact)
	assert.Empty(t, req.Default.ExtractedSkills)
	assert.NotContains(t, req.Prompt, strings.Repeat("x", maxDiffChars+1))

	bad := CommitAnalysis{Impact: "huge"}
	assert.Error(t, req.Validate(&bad))

	ok := CommitAnalysis{Impact: " Significant ", ExtractedSkills: []string{"Go", " "}}
	require.NoError(t, req.Validate(&ok))
	assert.Equal(t, "significant", ok.Impact)
	assert.Equal(t, []string{"Go"}, ok.ExtractedSkills)
	assert.Equal(t, commit.Message, ok.Summary)
}

func TestNoMatchReportDefaultTitle(t *testing.T) {
	req := NoMatchReportRequest("ML pipeline", "Train models", []string{"Python", "PyTorch", "Spark", "Airflow"}, 4)
	assert.Equal(t, "Developer - Python, PyTorch, Spark", req.Default.SuggestedJobTitle)
	assert.True(t, req.Default.ShouldPostJob)
	assert.Equal(t, "Software Developer", DefaultJobTitle(nil))
}

func TestKeywordSkills(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"javascript is not java", "Fix JavaScript bundle", []string{"JavaScript"}},
		{"several", "Add a REST API endpoint backed by PostgreSQL in Docker", []string{"PostgreSQL", "Docker", "API Development", "REST API"}},
		{"node variants", "Upgrade node.js runtime", []string{"Node.js"}},
		{"no keywords", "Update the copy on the landing page", []string{GeneralSkill}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KeywordSkills(tt.text))
		})
	}
}

func TestKeywordSkillsCapped(t *testing.T) {
	got := KeywordSkills("python javascript java react django flask mongodb docker kubernetes graphql")
	assert.Len(t, got, maxExtractedSkills)
}
