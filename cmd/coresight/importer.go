package main

import (
	"context"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/coresight/coresight/internal/storage"
	"github.com/coresight/coresight/internal/types"
)

// Seed is the YAML document accepted by 'coresight import'.
type Seed struct {
	Users    []*types.User        `yaml:"users"`
	Projects []*types.Project     `yaml:"projects"`
	Tasks    []*types.Task        `yaml:"tasks"`
	Sessions []*types.WorkSession `yaml:"sessions"`
}

// ImportStats counts created records.
type ImportStats struct {
	Users    int
	Projects int
	Tasks    int
	Sessions int
}

// seedEmbedder fills in vectors for imported users and tasks.
type seedEmbedder interface {
	Embed(ctx context.Context, text string) types.Embedding
	EmbedSkills(ctx context.Context, skills []string) types.Embedding
}

// ParseSeed decodes a seed document. Unknown keys are rejected.
func ParseSeed(r io.Reader) (*Seed, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var seed Seed
	if err := dec.Decode(&seed); err != nil {
		if err == io.EOF {
			return &seed, nil
		}
		return nil, fmt.Errorf("failed to parse seed: %w", err)
	}
	return &seed, nil
}

// Load writes the seed in dependency order: users, projects, tasks, then
// sessions. Users and tasks are embedded on the way in so they are
// searchable and rankable immediately.
func (s *Seed) Load(ctx context.Context, store storage.Storage, embedder seedEmbedder) (ImportStats, error) {
	var stats ImportStats

	for _, u := range s.Users {
		if u.ProfileEmbedding.IsZero() {
			u.ProfileEmbedding = embedder.Embed(ctx, u.ProfileText())
		}
		if u.SkillEmbedding.IsZero() {
			u.SkillEmbedding = embedder.EmbedSkills(ctx, u.Skills)
		}
		if err := store.CreateUser(ctx, u); err != nil {
			return stats, fmt.Errorf("failed to create user %q: %w", u.Email, err)
		}
		stats.Users++
	}

	for _, p := range s.Projects {
		if err := store.CreateProject(ctx, p); err != nil {
			return stats, fmt.Errorf("failed to create project %q: %w", p.Name, err)
		}
		stats.Projects++
	}

	for _, t := range s.Tasks {
		t.DescriptionEmbedding = embedder.Embed(ctx, t.EmbeddingText())
		t.SkillEmbedding = embedder.EmbedSkills(ctx, t.RequiredSkills)
		if err := store.CreateTask(ctx, t); err != nil {
			return stats, fmt.Errorf("failed to create task %q: %w", t.Title, err)
		}
		stats.Tasks++
	}

	for _, ws := range s.Sessions {
		if err := store.CreateWorkSession(ctx, ws); err != nil {
			return stats, fmt.Errorf("failed to create session for task %s: %w", ws.TaskID, err)
		}
		stats.Sessions++
	}
	return stats, nil
}
