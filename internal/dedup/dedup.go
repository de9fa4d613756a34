// Package dedup resolves incoming issues against open work. Each issue
// moves through Received, Embedded, Searched and Reasoned before ending
// as Merged into an existing task or Created as a new one.
//
// The engine fails open: a fallback embedding, a failed reasoning call or a
// low-confidence verdict all lead to a new task rather than a lost issue.
package dedup

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/coresight/coresight/internal/ai"
	"github.com/coresight/coresight/internal/matching"
	"github.com/coresight/coresight/internal/similarity"
	"github.com/coresight/coresight/internal/storage"
	"github.com/coresight/coresight/internal/types"
)

// Stage is a step in the resolution state machine.
type Stage string

const (
	StageReceived Stage = "received"
	StageEmbedded Stage = "embedded"
	StageSearched Stage = "searched"
	StageReasoned Stage = "reasoned"
	StageMerged   Stage = "merged"
	StageCreated  Stage = "created"
)

// Embedder produces embeddings; *embedding.Gateway satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string) types.Embedding
	EmbedSkills(ctx context.Context, skills []string) types.Embedding
}

// Assigner hands a new task to skill matching; *matching.Engine satisfies it.
type Assigner interface {
	Assign(ctx context.Context, task *types.Task) (*matching.Result, error)
}

// Outcome describes how an issue was resolved.
type Outcome struct {
	Issue      *types.Issue
	Resolution types.Resolution
	// Task is the parent task on merge, the new task on create
	Task       *types.Task
	Candidates []similarity.Match
	Decision   *ai.DuplicateDecision
	// DecisionFallback is set when Decision is the default verdict
	DecisionFallback bool
	Assignment       *matching.Result
	Trace            []Stage
	// AlreadyResolved is set when the issue had been resolved by an
	// earlier run
	AlreadyResolved bool
}

func (o *Outcome) enter(s Stage) {
	o.Trace = append(o.Trace, s)
}

// Resolver runs the duplicate resolution state machine.
type Resolver struct {
	store    storage.Storage
	embedder Embedder
	reasoner *ai.Gateway
	assigner Assigner
	cfg      Config
	logger   *zap.Logger
}

// NewResolver creates a resolver. A nil assigner leaves new tasks
// unassigned.
func NewResolver(store storage.Storage, embedder Embedder, reasoner *ai.Gateway, assigner Assigner, cfg Config, logger *zap.Logger) (*Resolver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid dedup config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		store:    store,
		embedder: embedder,
		reasoner: reasoner,
		assigner: assigner,
		cfg:      cfg,
		logger:   logger.Named("dedup"),
	}, nil
}

// Resolve runs issue through the state machine. Re-running an issue that
// was already resolved does not merge or create twice.
func (r *Resolver) Resolve(ctx context.Context, issue *types.Issue) (*Outcome, error) {
	if err := issue.Validate(); err != nil {
		return nil, fmt.Errorf("invalid issue: %w", err)
	}
	out := &Outcome{Issue: issue}
	out.enter(StageReceived)

	if issue.ID != "" {
		prior, err := r.store.GetIssue(ctx, issue.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load issue: %w", err)
		}
		if prior != nil && prior.Resolution != types.ResolutionPending {
			return r.resume(ctx, out, prior)
		}
	}
	// Record the issue before any model call so it is never lost
	issue.Resolution = types.ResolutionPending
	if err := r.store.SaveIssue(ctx, issue); err != nil {
		return nil, fmt.Errorf("failed to record issue: %w", err)
	}

	// Received -> Embedded
	if issue.DescriptionEmbedding.IsZero() {
		issue.DescriptionEmbedding = r.embedder.Embed(ctx, issue.EmbeddingText())
	}
	out.enter(StageEmbedded)

	// Embedded -> Searched
	if !issue.DescriptionEmbedding.Usable() {
		r.logger.Warn("issue embedding is a fallback, skipping duplicate search",
			zap.String("title", issue.Title))
		return r.create(ctx, out)
	}
	matches, pool, err := r.search(ctx, issue)
	if err != nil {
		return nil, err
	}
	out.Candidates = matches
	out.enter(StageSearched)
	if len(matches) == 0 {
		return r.create(ctx, out)
	}

	// Searched -> Reasoned
	primary := ai.DuplicateCandidate{Task: pool[matches[0].ID], Score: matches[0].Score}
	secondary := make([]ai.DuplicateCandidate, 0, len(matches)-1)
	for _, m := range matches[1:] {
		secondary = append(secondary, ai.DuplicateCandidate{Task: pool[m.ID], Score: m.Score})
	}
	decision := ai.Reason(ctx, r.reasoner, ai.DuplicateCheckRequest(issue, primary, secondary))
	out.Decision = &decision.Value
	out.DecisionFallback = decision.IsFallback()
	issue.Confidence = decision.Value.Confidence
	issue.Reasoning = decision.Value.Reasoning
	out.enter(StageReasoned)

	d := decision.Value
	if !d.IsDuplicate || d.Confidence < r.cfg.MergeConfidence {
		return r.create(ctx, out)
	}
	if d.ParentTaskID != primary.Task.ID {
		r.logger.Warn("duplicate verdict targets a non-primary task, creating instead",
			zap.String("primary", primary.Task.ID), zap.String("parent_task_id", d.ParentTaskID))
		return r.create(ctx, out)
	}

	// Reasoned -> Merged
	parent, err := r.merge(ctx, primary.Task.ID, issue, d)
	if errors.Is(err, storage.ErrNotFound) {
		r.logger.Warn("parent task vanished before merge, creating instead", zap.String("task_id", primary.Task.ID))
		return r.create(ctx, out)
	}
	if err != nil {
		return nil, err
	}

	out.Task = parent
	out.Resolution = types.ResolutionMerged
	out.enter(StageMerged)

	r.logger.Info("issue merged into existing task",
		zap.String("issue_id", issue.ID),
		zap.String("task_id", parent.ID),
		zap.Float64("similarity", matches[0].Score),
		zap.Float64("confidence", d.Confidence))
	return out, nil
}

// search returns matching open tasks with usable description embeddings,
// plus the pool indexed by id.
func (r *Resolver) search(ctx context.Context, issue *types.Issue) ([]similarity.Match, map[string]*types.Task, error) {
	tasks, err := r.store.ListTasks(ctx, storage.TaskFilter{OpenOnly: true})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list open tasks: %w", err)
	}

	pool := make(map[string]*types.Task, len(tasks))
	candidates := make([]similarity.Candidate, 0, len(tasks))
	for _, t := range tasks {
		if !t.DescriptionEmbedding.Usable() {
			continue
		}
		pool[t.ID] = t
		candidates = append(candidates, similarity.Candidate{ID: t.ID, Vector: t.DescriptionEmbedding.Values})
	}

	matches, err := similarity.TopK(issue.DescriptionEmbedding.Values, candidates, r.cfg.TopK, r.cfg.SearchMinScore)
	if err != nil {
		return nil, nil, fmt.Errorf("duplicate search: %w", err)
	}
	return matches, pool, nil
}

// merge folds issue into the parent task with a compare-and-set write that
// also records the issue as merged, re-reading and retrying when a
// concurrent merge wins the race.
func (r *Resolver) merge(ctx context.Context, parentID string, issue *types.Issue, d ai.DuplicateDecision) (*types.Task, error) {
	var lastErr error
	for attempt := 1; attempt <= r.cfg.MaxMergeAttempts; attempt++ {
		parent, err := r.store.GetTask(ctx, parentID)
		if err != nil {
			return nil, fmt.Errorf("failed to load parent task: %w", err)
		}
		if parent == nil {
			return nil, fmt.Errorf("task %s: %w", parentID, storage.ErrNotFound)
		}

		m := storage.TaskMerge{
			Activity: types.ActivityEntry{
				Kind:     types.ActivityMerged,
				Message:  fmt.Sprintf("Duplicate issue merged: %s (confidence %.2f)", issue.Title, d.Confidence),
				SourceID: issue.ID,
			},
		}
		if d.PriorityChange == ai.PriorityIncreased {
			if raised := parent.Priority.Escalate(); raised != parent.Priority {
				m.Priority = raised
			}
		}
		if len(d.NewRequiredSkills) > 0 {
			skills := types.MergeSkills(parent.RequiredSkills, d.NewRequiredSkills)
			emb := r.embedder.EmbedSkills(ctx, skills)
			m.RequiredSkills = skills
			m.SkillEmbedding = &emb
		}

		updated, err := r.store.MergeIssueIntoTask(ctx, issue, parentID, parent.Version, m)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, storage.ErrConcurrentUpdate) {
			return nil, fmt.Errorf("failed to merge into task: %w", err)
		}
		lastErr = err
		r.logger.Debug("parent task changed during merge, retrying",
			zap.String("task_id", parentID), zap.Int("attempt", attempt))
	}
	return nil, fmt.Errorf("merge into task %s gave up after %d attempts: %w", parentID, r.cfg.MaxMergeAttempts, lastErr)
}

// create turns issue into a new task and hands it to matching.
func (r *Resolver) create(ctx context.Context, out *Outcome) (*Outcome, error) {
	issue := out.Issue

	skills := issue.RequiredSkills
	if len(skills) == 0 {
		extraction := ai.Reason(ctx, r.reasoner, ai.SkillExtractionRequest(issue.Title, issue.Description))
		skills = extraction.Value.RequiredSkills
	}
	issue.RequiredSkills = skills
	issue.SkillEmbedding = r.embedder.EmbedSkills(ctx, skills)

	priority := issue.Priority
	if priority == "" {
		priority = types.PriorityMedium
	}
	task := &types.Task{
		ExternalID:           issue.ExternalID,
		ProjectID:            issue.ProjectID,
		Title:                issue.Title,
		Description:          issue.Description,
		DescriptionEmbedding: issue.DescriptionEmbedding.Clone(),
		RequiredSkills:       append([]string(nil), skills...),
		SkillEmbedding:       issue.SkillEmbedding.Clone(),
		Status:               types.StatusTodo,
		Priority:             priority,
		ActivityLog: []types.ActivityEntry{{
			Kind:     types.ActivityCreated,
			Message:  "Created from issue",
			SourceID: issue.ID,
		}},
	}
	issue.IsDuplicate = false
	issue.ParentTaskID = ""
	if err := r.store.CreateTaskFromIssue(ctx, issue, task); err != nil {
		return nil, fmt.Errorf("failed to create task from issue: %w", err)
	}
	out.Task = task
	out.Resolution = types.ResolutionCreated
	out.enter(StageCreated)

	r.logger.Info("task created from issue",
		zap.String("issue_id", issue.ID),
		zap.String("task_id", task.ID),
		zap.Strings("skills", skills),
		zap.Int("candidates", len(out.Candidates)))

	return r.handOff(ctx, out)
}

// resume finishes an issue that an earlier run already resolved. Only the
// assignment hand-off of a created task can still be outstanding.
func (r *Resolver) resume(ctx context.Context, out *Outcome, prior *types.Issue) (*Outcome, error) {
	out.Issue = prior
	out.Resolution = prior.Resolution
	out.AlreadyResolved = true

	task, err := r.store.GetTask(ctx, prior.TaskID)
	if err != nil {
		return nil, fmt.Errorf("failed to load resolved task: %w", err)
	}
	out.Task = task
	if prior.Resolution == types.ResolutionMerged {
		out.enter(StageMerged)
		return out, nil
	}
	out.enter(StageCreated)
	if task == nil || len(task.AssigneeIDs) > 0 || task.RequiresJobPosting || !task.Status.IsOpen() {
		return out, nil
	}
	return r.handOff(ctx, out)
}

func (r *Resolver) handOff(ctx context.Context, out *Outcome) (*Outcome, error) {
	if r.assigner == nil || !r.cfg.AssignOnCreate {
		return out, nil
	}
	result, err := r.assigner.Assign(ctx, out.Task)
	if err != nil {
		return out, fmt.Errorf("failed to assign task %s: %w", out.Task.ID, err)
	}
	out.Assignment = result
	out.Task = result.Task
	return out, nil
}
