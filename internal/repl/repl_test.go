package repl

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coresight/coresight/internal/analytics"
	"github.com/coresight/coresight/internal/matching"
	"github.com/coresight/coresight/internal/storage"
	"github.com/coresight/coresight/internal/storage/memory"
	"github.com/coresight/coresight/internal/types"
)

type assignFunc func(ctx context.Context, taskID string) (*matching.Result, error)

func (f assignFunc) AssignByID(ctx context.Context, taskID string) (*matching.Result, error) {
	return f(ctx, taskID)
}

func newShell(t *testing.T, assign assignFunc) (*REPL, *memory.Store, *bytes.Buffer) {
	t.Helper()
	store := memory.New()
	svc, err := analytics.NewService(store, analytics.DefaultConfig(), nil)
	require.NoError(t, err)

	var out bytes.Buffer
	r, err := New(&Config{Store: store, Assigner: assign, Reporter: svc, Out: &out})
	require.NoError(t, err)
	return r, store, &out
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(&Config{})
	assert.Error(t, err)
	_, err = New(&Config{Store: memory.New()})
	assert.Error(t, err)
}

func TestProcessInput(t *testing.T) {
	ctx := context.Background()
	r, store, out := newShell(t, func(ctx context.Context, taskID string) (*matching.Result, error) {
		return &matching.Result{
			Task:     &types.Task{ID: taskID},
			Assigned: true,
			Assignee: &types.User{Name: "Alice"},
		}, nil
	})

	user := &types.User{ID: "u-1", Name: "Alice", Email: "alice@example.com", Skills: []string{"Go"}, HourlyRate: 50}
	require.NoError(t, store.CreateUser(ctx, user))
	task := &types.Task{ID: "t-1", Title: "Fix login redirect"}
	require.NoError(t, store.CreateTask(ctx, task))
	end := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, store.CreateWorkSession(ctx, &types.WorkSession{
		TaskID: task.ID, UserID: user.ID, StartTime: end.Add(-2 * time.Hour), EndTime: &end,
	}))

	tests := []struct {
		input string
		want  string
	}{
		{"help", "Available Commands"},
		{"users", "Alice"},
		{"tasks", "Fix login redirect"},
		{"assign t-1", "Assigned t-1 to Alice"},
		{"cost t-1", "$100.00 over 2.00h"},
		{"impact u-1", "u-1 is a balanced: 0 commits"},
		{"focus 7", "Team focus health is good"},
		{"jobs", "No job requisitions"},
		{"frobnicate", `Unknown command "frobnicate"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			out.Reset()
			require.NoError(t, r.processInput(tt.input))
			assert.Contains(t, out.String(), tt.want)
		})
	}
}

func TestProcessInputErrors(t *testing.T) {
	r, _, _ := newShell(t, func(ctx context.Context, taskID string) (*matching.Result, error) {
		return nil, storage.ErrNotFound
	})

	tests := []string{"assign", "assign t-9", "impact", "impact nobody", "cost", "focus -1", "focus soon"}
	for _, input := range tests {
		t.Run(input, func(t *testing.T) {
			assert.Error(t, r.processInput(input))
		})
	}
}

func TestExitReturnsEOF(t *testing.T) {
	r, _, out := newShell(t, nil)
	assert.ErrorIs(t, r.processInput("quit"), io.EOF)
	assert.Contains(t, out.String(), "Goodbye!")
	assert.NoError(t, r.processInput("   "))
}
