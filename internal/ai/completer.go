package ai

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// Model constants. Structured classification calls default to the cheaper
// model; CORESIGHT_REASONING_MODEL overrides it.
const (
	ModelSonnet = "claude-sonnet-4-5-20250929"
	ModelHaiku  = "claude-3-5-haiku-20241022"
)

// Completer is the reasoning provider: it takes a prompt and a schema hint
// describing the JSON it should return and produces raw text.
type Completer interface {
	Complete(ctx context.Context, prompt, schemaHint string) (string, error)
}

// CostTracker enforces a token budget on reasoning calls.
type CostTracker interface {
	// CanProceed reports whether another call fits within budget
	CanProceed(operation string) (bool, string)
	// RecordUsage records token usage for an operation
	RecordUsage(ctx context.Context, operation string, inputTokens, outputTokens int64) error
}

// ErrBudgetExceeded is returned when the cost tracker refuses a call.
var ErrBudgetExceeded = errors.New("AI budget exceeded")

type operationKey struct{}

// WithOperation tags ctx with the name of the reasoning operation so the
// completer can attribute cost and log lines.
func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, operationKey{}, operation)
}

// OperationFrom returns the operation name carried by ctx.
func OperationFrom(ctx context.Context) string {
	if op, ok := ctx.Value(operationKey{}).(string); ok {
		return op
	}
	return "completion"
}

// CompleterConfig holds Anthropic completer configuration
type CompleterConfig struct {
	APIKey    string      `yaml:"api_key"`
	Model     string      `yaml:"model"`
	MaxTokens int         `yaml:"max_tokens"`
	Retry     RetryConfig `yaml:"retry"`
}

// AnthropicCompleter implements Completer on the Anthropic Messages API.
type AnthropicCompleter struct {
	client         *anthropic.Client
	model          string
	maxTokens      int
	retry          RetryConfig
	circuitBreaker *CircuitBreaker
	concurrencySem *semaphore.Weighted
	costTracker    CostTracker
	logger         *zap.Logger
}

// NewAnthropicCompleter creates a completer. The API key falls back to
// ANTHROPIC_API_KEY. costTracker may be nil.
func NewAnthropicCompleter(cfg CompleterConfig, costTracker CostTracker, logger *zap.Logger) (*AnthropicCompleter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("reasoning")

	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
	}

	model := cfg.Model
	if model == "" {
		model = ModelHaiku
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2048
	}

	retry := cfg.Retry
	if retry.Timeout == 0 {
		retry = DefaultRetryConfig()
	}

	// Retries happen in retryWithBackoff so the breaker sees every attempt
	client := anthropic.NewClient(option.WithAPIKey(apiKey), option.WithMaxRetries(0))

	var cb *CircuitBreaker
	if retry.CircuitBreakerEnabled {
		cb = NewCircuitBreaker(retry.FailureThreshold, retry.SuccessThreshold, retry.OpenTimeout, logger)
	}
	var sem *semaphore.Weighted
	if retry.MaxConcurrentCalls > 0 {
		sem = semaphore.NewWeighted(int64(retry.MaxConcurrentCalls))
	}

	logger.Info("reasoning provider initialized",
		zap.String("model", model),
		zap.Bool("circuit_breaker", cb != nil),
		zap.Int("max_concurrent", retry.MaxConcurrentCalls))

	return &AnthropicCompleter{
		client:         &client,
		model:          model,
		maxTokens:      maxTokens,
		retry:          retry,
		circuitBreaker: cb,
		concurrencySem: sem,
		costTracker:    costTracker,
		logger:         logger,
	}, nil
}

// Complete sends prompt to the model and returns the concatenated text blocks.
func (c *AnthropicCompleter) Complete(ctx context.Context, prompt, schemaHint string) (string, error) {
	operation := OperationFrom(ctx)

	if c.costTracker != nil {
		if ok, reason := c.costTracker.CanProceed(operation); !ok {
			return "", fmt.Errorf("%w: %s", ErrBudgetExceeded, reason)
		}
	}

	text := prompt
	if schemaHint != "" {
		text = prompt + "\n\nRespond with JSON matching this schema:\n" + schemaHint
	}

	start := time.Now()
	var response *anthropic.Message
	err := c.retryWithBackoff(ctx, operation, func(attemptCtx context.Context) error {
		resp, apiErr := c.client.Messages.New(attemptCtx, anthropic.MessageNewParams{
			Model:     anthropic.Model(c.model),
			MaxTokens: int64(c.maxTokens),
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(text)),
			},
		})
		if apiErr != nil {
			return apiErr
		}
		response = resp
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("anthropic API call failed: %w", err)
	}

	var out strings.Builder
	for _, block := range response.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}

	c.logger.Debug("reasoning call",
		zap.String("operation", operation),
		zap.Int64("input_tokens", response.Usage.InputTokens),
		zap.Int64("output_tokens", response.Usage.OutputTokens),
		zap.Duration("duration", time.Since(start)))

	if c.costTracker != nil {
		if err := c.costTracker.RecordUsage(ctx, operation, response.Usage.InputTokens, response.Usage.OutputTokens); err != nil {
			c.logger.Warn("failed to record AI usage", zap.String("operation", operation), zap.Error(err))
		}
	}

	return out.String(), nil
}

// CircuitState reports the breaker state for health output.
func (c *AnthropicCompleter) CircuitState() CircuitState {
	if c.circuitBreaker == nil {
		return CircuitClosed
	}
	return c.circuitBreaker.State()
}
