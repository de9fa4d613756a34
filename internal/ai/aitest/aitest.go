// Package aitest provides a scripted reasoning provider for tests in
// packages that drive the reasoning gateway.
package aitest

import (
	"context"
	"fmt"
	"sync"

	"github.com/coresight/coresight/internal/ai"
)

// Completer answers each reasoning operation from its own queue of
// responses. An empty queue fails the call, which makes the gateway fall
// back to the call-site default.
type Completer struct {
	mu        sync.Mutex
	responses map[string][]string
	errs      map[string]error
	calls     map[string]int
	prompts   map[string][]string
}

// New creates an empty Completer.
func New() *Completer {
	return &Completer{
		responses: make(map[string][]string),
		errs:      make(map[string]error),
		calls:     make(map[string]int),
		prompts:   make(map[string][]string),
	}
}

// On queues raw responses for operation and returns c for chaining.
func (c *Completer) On(operation string, responses ...string) *Completer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.responses[operation] = append(c.responses[operation], responses...)
	return c
}

// Fail makes every call for operation return err.
func (c *Completer) Fail(operation string, err error) *Completer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs[operation] = err
	return c
}

// Complete implements ai.Completer.
func (c *Completer) Complete(ctx context.Context, prompt, schemaHint string) (string, error) {
	op := ai.OperationFrom(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[op]++
	c.prompts[op] = append(c.prompts[op], prompt)

	if err := c.errs[op]; err != nil {
		return "", err
	}
	queue := c.responses[op]
	if len(queue) == 0 {
		return "", fmt.Errorf("no scripted response for %s", op)
	}
	c.responses[op] = queue[1:]
	return queue[0], nil
}

// Calls returns how many times operation was requested.
func (c *Completer) Calls(operation string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[operation]
}

// Prompts returns the prompts sent for operation.
func (c *Completer) Prompts(operation string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.prompts[operation]...)
}
