// Package matching ranks developers against a task by embedding
// similarity and asks the reasoning gateway to confirm the best fit before
// an assignment is written.
package matching

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/coresight/coresight/internal/ai"
	"github.com/coresight/coresight/internal/jobs"
	"github.com/coresight/coresight/internal/similarity"
	"github.com/coresight/coresight/internal/storage"
	"github.com/coresight/coresight/internal/types"
)

var (
	// ErrNoCandidates means nobody cleared the similarity floor.
	ErrNoCandidates = errors.New("no candidates")
	// ErrValidationRejected means every validated candidate was turned down.
	ErrValidationRejected = errors.New("all candidates rejected by validation")
)

// Embedder produces embeddings; *embedding.Gateway satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string) types.Embedding
	EmbedSkills(ctx context.Context, skills []string) types.Embedding
}

// Candidate is one ranked developer.
type Candidate struct {
	User            *types.User
	Score           float64
	SkillScore      float64
	ProfileScore    float64
	OpenAssignments int
	// LowConfidence is set when any embedding behind the score is a fallback
	LowConfidence bool
}

// Attempt records one validation call.
type Attempt struct {
	UserID     string
	Score      float64
	Validation ai.AssignmentValidation
	Fallback   bool
}

// Result is the outcome of an assignment run.
type Result struct {
	Task       *types.Task
	Candidates []Candidate
	Attempts   []Attempt

	Assigned bool
	Assignee *types.User

	RequiresJobPosting bool
	// Reason is ErrNoCandidates or ErrValidationRejected when nothing was assigned
	Reason error
}

// Engine ranks and assigns.
type Engine struct {
	store    storage.Storage
	embedder Embedder
	reasoner *ai.Gateway
	notifier jobs.Notifier
	cfg      Config
	logger   *zap.Logger
}

// NewEngine creates a matching engine. A nil notifier discards job
// posting notifications.
func NewEngine(store storage.Storage, embedder Embedder, reasoner *ai.Gateway, notifier jobs.Notifier, cfg Config, logger *zap.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid matching config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = jobs.NopNotifier{}
	}
	return &Engine{
		store:    store,
		embedder: embedder,
		reasoner: reasoner,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.Named("matching"),
	}, nil
}

// userVectors are the two embeddings compared for one user.
type userVectors struct {
	skill, profile types.Embedding
}

// Rank scores users against task. Candidates below the skill-axis floor are
// dropped. Order: score descending, then fewer open assignments, then the
// order of users.
func (e *Engine) Rank(ctx context.Context, task *types.Task, users []*types.User, openCounts map[string]int) ([]Candidate, error) {
	taskSkill := task.SkillEmbedding
	if taskSkill.IsZero() {
		taskSkill = e.embedder.EmbedSkills(ctx, task.RequiredSkills)
	}
	taskDesc := task.DescriptionEmbedding
	if taskDesc.IsZero() {
		taskDesc = e.embedder.Embed(ctx, task.EmbeddingText())
	}

	vectors, err := e.userVectors(ctx, users)
	if err != nil {
		return nil, err
	}

	var candidates []Candidate
	for i, u := range users {
		v := vectors[i]
		skillScore, err := similarity.Cosine(taskSkill.Values, v.skill.Values)
		if err != nil {
			return nil, fmt.Errorf("skill similarity for user %s: %w", u.ID, err)
		}
		if skillScore < e.cfg.MinSimilarity {
			e.logger.Debug("candidate below similarity floor",
				zap.String("user_id", u.ID), zap.Float64("skill_score", skillScore))
			continue
		}
		profileScore, err := similarity.Cosine(taskDesc.Values, v.profile.Values)
		if err != nil {
			return nil, fmt.Errorf("profile similarity for user %s: %w", u.ID, err)
		}

		candidates = append(candidates, Candidate{
			User:            u,
			Score:           e.cfg.SkillWeight*skillScore + e.cfg.ProfileWeight*profileScore,
			SkillScore:      skillScore,
			ProfileScore:    profileScore,
			OpenAssignments: openCounts[u.ID],
			LowConfidence:   !taskSkill.Usable() || !taskDesc.Usable() || !v.skill.Usable() || !v.profile.Usable(),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].OpenAssignments < candidates[j].OpenAssignments
	})
	return candidates, nil
}

// userVectors returns stored embeddings, deriving missing ones through the
// embedder concurrently. Derived vectors are not persisted here; profile
// evolution owns user embedding writes.
func (e *Engine) userVectors(ctx context.Context, users []*types.User) ([]userVectors, error) {
	out := make([]userVectors, len(users))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.EmbedConcurrency)

	for i, u := range users {
		out[i] = userVectors{skill: u.SkillEmbedding, profile: u.ProfileEmbedding}
		if !out[i].skill.IsZero() && !out[i].profile.IsZero() {
			continue
		}
		g.Go(func() error {
			if out[i].skill.IsZero() {
				out[i].skill = e.embedder.EmbedSkills(gctx, u.Skills)
			}
			if out[i].profile.IsZero() {
				out[i].profile = e.embedder.Embed(gctx, u.ProfileText())
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// AssignByID loads the task and assigns it.
func (e *Engine) AssignByID(ctx context.Context, taskID string) (*Result, error) {
	task, err := e.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to load task: %w", err)
	}
	if task == nil {
		return nil, fmt.Errorf("task %s: %w", taskID, storage.ErrNotFound)
	}
	return e.Assign(ctx, task)
}

// Assign ranks the team against task, validates up to
// MaxValidationAttempts candidates in rank order and assigns the first
// one the validator accepts. When nobody is accepted the task is flagged
// for a job posting.
func (e *Engine) Assign(ctx context.Context, task *types.Task) (*Result, error) {
	if task.Status == types.StatusDone {
		return nil, fmt.Errorf("task %s: %w", task.ID, storage.ErrTaskClosed)
	}

	users, err := e.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	openCounts, err := e.store.OpenAssignmentCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to count open assignments: %w", err)
	}

	pool := make([]*types.User, 0, len(users))
	for _, u := range users {
		if !task.HasAssignee(u.ID) {
			pool = append(pool, u)
		}
	}

	candidates, err := e.Rank(ctx, task, pool, openCounts)
	if err != nil {
		return nil, err
	}
	result := &Result{Task: task, Candidates: candidates}

	if len(candidates) == 0 {
		return e.noMatch(ctx, result, ErrNoCandidates)
	}

	for i := 0; i < len(candidates) && i < e.cfg.MaxValidationAttempts; i++ {
		c := candidates[i]
		decision := ai.Reason(ctx, e.reasoner, ai.AssignmentValidationRequest(task, c.User, c.Score))
		v := decision.Value
		result.Attempts = append(result.Attempts, Attempt{
			UserID:     c.User.ID,
			Score:      c.Score,
			Validation: v,
			Fallback:   decision.IsFallback(),
		})

		if !v.CanDo || v.Confidence <= e.cfg.AssignConfidence {
			e.logger.Info("candidate rejected",
				zap.String("task_id", task.ID),
				zap.String("user_id", c.User.ID),
				zap.Float64("score", c.Score),
				zap.Bool("can_do", v.CanDo),
				zap.Float64("confidence", v.Confidence),
				zap.Bool("fallback", decision.IsFallback()))
			continue
		}

		assigned, err := e.store.AssignTask(ctx, task.ID, c.User.ID, &types.WorkSession{})
		if err != nil {
			return nil, fmt.Errorf("failed to assign task: %w", err)
		}
		result.Task = assigned
		result.Assigned = true
		result.Assignee = c.User
		e.logger.Info("task assigned",
			zap.String("task_id", task.ID),
			zap.String("user_id", c.User.ID),
			zap.Float64("score", c.Score),
			zap.Float64("confidence", v.Confidence),
			zap.Bool("low_confidence", c.LowConfidence))
		return result, nil
	}

	return e.noMatch(ctx, result, ErrValidationRejected)
}

func (e *Engine) noMatch(ctx context.Context, result *Result, reason error) (*Result, error) {
	task := result.Task
	msg := fmt.Sprintf("no developer matched (%v, %d candidates evaluated)", reason, len(result.Candidates))
	if err := e.store.MarkRequiresJobPosting(ctx, task.ID, msg); err != nil {
		return nil, fmt.Errorf("failed to flag task for job posting: %w", err)
	}
	task.RequiresJobPosting = true
	result.RequiresJobPosting = true
	result.Reason = reason

	e.logger.Info("no match, job posting required",
		zap.String("task_id", task.ID), zap.Error(reason), zap.Int("candidates", len(result.Candidates)))

	e.notifier.NotifyJobPosting(ctx, jobs.JobPostingRequest{
		TaskID:          task.ID,
		TaskTitle:       task.Title,
		TaskDescription: task.Description,
		RequiredSkills:  append([]string(nil), task.RequiredSkills...),
		CandidatesSeen:  len(result.Candidates),
	})
	return result, nil
}
