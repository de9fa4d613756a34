// Package profile evolves developer profiles from their commits.
//
// Each commit is analyzed, linked to the open task it most resembles and
// then offered to the reasoning gateway as evidence for a profile update.
// Profile writes are compare-and-set on the user's version so two commits
// by the same author never lose each other's skills.
package profile

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/coresight/coresight/internal/ai"
	"github.com/coresight/coresight/internal/similarity"
	"github.com/coresight/coresight/internal/storage"
	"github.com/coresight/coresight/internal/types"
)

// ErrConcurrentProfileConflict is returned when another writer changed the
// user on every attempt.
var ErrConcurrentProfileConflict = fmt.Errorf("profile changed concurrently: %w", storage.ErrConcurrentUpdate)

// Embedder produces embeddings; *embedding.Gateway satisfies it.
type Embedder interface {
	Embed(ctx context.Context, text string) types.Embedding
	EmbedSkills(ctx context.Context, skills []string) types.Embedding
}

// Result describes what processing a commit did.
type Result struct {
	Commit *types.Commit

	Analysis         ai.CommitAnalysis
	AnalysisFallback bool

	// LinkScore is the similarity to the linked task, 0 when untracked
	LinkScore float64

	// User is the author after any update, nil for unknown authors
	User *types.User

	Update         *ai.ProfileUpdate
	UpdateFallback bool
	ProfileUpdated bool
	// Conflict is set when the update was dropped after repeated
	// concurrent writes
	Conflict bool
}

// Engine processes commits.
type Engine struct {
	store    storage.Storage
	embedder Embedder
	reasoner *ai.Gateway
	cfg      Config
	logger   *zap.Logger
}

// NewEngine creates a profile evolution engine.
func NewEngine(store storage.Storage, embedder Embedder, reasoner *ai.Gateway, cfg Config, logger *zap.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		store:    store,
		embedder: embedder,
		reasoner: reasoner,
		cfg:      cfg,
		logger:   logger.Named("profile"),
	}, nil
}

// ProcessCommit analyzes commit, links it to an open task, evolves the
// author's profile and persists the commit. A dropped profile update is
// reported on the result, not as an error.
func (e *Engine) ProcessCommit(ctx context.Context, commit *types.Commit) (*Result, error) {
	if err := commit.Validate(); err != nil {
		return nil, fmt.Errorf("invalid commit: %w", err)
	}
	result := &Result{Commit: commit}

	analysis := ai.Reason(ctx, e.reasoner, ai.CommitAnalysisRequest(commit))
	result.Analysis = analysis.Value
	result.AnalysisFallback = analysis.IsFallback()
	commit.Summary = analysis.Value.Summary
	commit.ExtractedSkills = append([]string(nil), analysis.Value.ExtractedSkills...)
	commit.Impact = types.Impact(analysis.Value.Impact)

	commit.SummaryEmbedding = e.embedder.Embed(ctx, commit.Summary)
	if err := e.link(ctx, result); err != nil {
		return nil, err
	}

	user, err := e.author(ctx, commit)
	if err != nil {
		return nil, err
	}
	if user != nil {
		commit.UserID = user.ID
		result.User = user
		if err := e.evolve(ctx, result); err != nil {
			return nil, err
		}
	} else {
		e.logger.Debug("commit author is not a known user",
			zap.String("hash", commit.Hash), zap.String("author_email", commit.AuthorEmail))
	}

	// A landed profile update already recorded the commit in the same write
	if !result.ProfileUpdated {
		commit.TriggeredProfileUpdate = false
		if err := e.store.SaveCommit(ctx, commit); err != nil {
			return nil, fmt.Errorf("failed to save commit: %w", err)
		}
	}

	e.logger.Info("commit processed",
		zap.String("hash", commit.Hash),
		zap.String("user_id", commit.UserID),
		zap.String("linked_task_id", commit.LinkedTaskID),
		zap.String("impact", string(commit.Impact)),
		zap.Bool("profile_updated", result.ProfileUpdated))
	return result, nil
}

// link sets LinkedTaskID to the closest open task above the link floor.
func (e *Engine) link(ctx context.Context, result *Result) error {
	commit := result.Commit
	commit.LinkedTaskID = ""
	if !commit.SummaryEmbedding.Usable() {
		return nil
	}

	tasks, err := e.store.ListTasks(ctx, storage.TaskFilter{OpenOnly: true})
	if err != nil {
		return fmt.Errorf("failed to list open tasks: %w", err)
	}
	candidates := make([]similarity.Candidate, 0, len(tasks))
	for _, t := range tasks {
		if t.DescriptionEmbedding.Usable() {
			candidates = append(candidates, similarity.Candidate{ID: t.ID, Vector: t.DescriptionEmbedding.Values})
		}
	}
	matches, err := similarity.TopK(commit.SummaryEmbedding.Values, candidates, 1, e.cfg.LinkMinScore)
	if err != nil {
		return fmt.Errorf("commit linking: %w", err)
	}
	if len(matches) > 0 {
		commit.LinkedTaskID = matches[0].ID
		result.LinkScore = matches[0].Score
	}
	return nil
}

// author resolves the commit's user by id, then by email.
func (e *Engine) author(ctx context.Context, commit *types.Commit) (*types.User, error) {
	if commit.UserID != "" {
		u, err := e.store.GetUser(ctx, commit.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to load author: %w", err)
		}
		if u != nil {
			return u, nil
		}
	}
	if commit.AuthorEmail == "" {
		return nil, nil
	}
	u, err := e.store.GetUserByEmail(ctx, commit.AuthorEmail)
	if err != nil {
		return nil, fmt.Errorf("failed to look up author by email: %w", err)
	}
	return u, nil
}

// evolve asks whether the commit changes the author's profile and writes
// the update. A fallback analysis never reaches the profile.
func (e *Engine) evolve(ctx context.Context, result *Result) error {
	if result.AnalysisFallback {
		return nil
	}
	decision := ai.Reason(ctx, e.reasoner, ai.ProfileUpdateRequest(result.User, result.Commit, result.Analysis))
	result.Update = &decision.Value
	result.UpdateFallback = decision.IsFallback()
	if !decision.Value.ShouldUpdate {
		return nil
	}

	updated, err := e.applyUpdate(ctx, result.User, result.Commit, decision.Value)
	switch {
	case errors.Is(err, storage.ErrConcurrentUpdate):
		result.Conflict = true
		e.logger.Warn("dropping profile update after concurrent writes",
			zap.String("user_id", result.User.ID),
			zap.String("hash", result.Commit.Hash),
			zap.Error(err))
		return nil
	case errors.Is(err, storage.ErrNotFound):
		e.logger.Warn("author vanished before profile update", zap.String("user_id", result.User.ID))
		return nil
	case err != nil:
		return err
	}

	result.User = updated
	result.ProfileUpdated = true
	return nil
}

// applyUpdate merges the decision into user and writes it with a
// compare-and-set, re-reading the user after a lost race. The commit is
// recorded with TriggeredProfileUpdate in the same write; commit is only
// modified when the write lands.
func (e *Engine) applyUpdate(ctx context.Context, user *types.User, commit *types.Commit, d ai.ProfileUpdate) (*types.User, error) {
	current := user
	for attempt := 1; attempt <= e.cfg.MaxUpdateAttempts; attempt++ {
		if attempt > 1 {
			fresh, err := e.store.GetUser(ctx, user.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to reload user: %w", err)
			}
			if fresh == nil {
				return nil, fmt.Errorf("user %s: %w", user.ID, storage.ErrNotFound)
			}
			current = fresh
		}

		next := &types.User{
			Skills:          types.MergeSkills(current.Skills, d.NewSkills),
			WorkProfileText: d.UpdatedProfileText,
		}
		if next.WorkProfileText == "" {
			next.WorkProfileText = current.WorkProfileText
		}
		update := storage.ProfileUpdate{
			Skills:           next.Skills,
			WorkProfileText:  next.WorkProfileText,
			ProfileEmbedding: e.embedder.Embed(ctx, next.ProfileText()),
			SkillEmbedding:   e.embedder.EmbedSkills(ctx, next.Skills),
		}
		recorded := *commit
		recorded.TriggeredProfileUpdate = true
		update.Commit = &recorded

		updated, err := e.store.UpdateUserProfile(ctx, current.ID, current.Version, update)
		if err == nil {
			*commit = recorded
			e.logger.Info("profile updated",
				zap.String("user_id", current.ID),
				zap.Strings("skills", update.Skills),
				zap.Int64("version", updated.Version))
			return updated, nil
		}
		if !errors.Is(err, storage.ErrConcurrentUpdate) {
			return nil, fmt.Errorf("failed to update profile: %w", err)
		}
		e.logger.Debug("profile changed during update, retrying",
			zap.String("user_id", current.ID), zap.Int("attempt", attempt))
	}
	return nil, fmt.Errorf("user %s after %d attempts: %w", user.ID, e.cfg.MaxUpdateAttempts, ErrConcurrentProfileConflict)
}
