package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/siherrmann/loregraph/helper"
	"github.com/siherrmann/loregraph/model"
	"github.com/sony/gobreaker"
)

const promptTemplate = `Compare these two entities and determine if they refer to the same thing:

Entity 1:
Name: %s
Type: %s
Description: %s

Entity 2:
Name: %s
Type: %s
Description: %s

Similarity score: %.2f

Do these entities refer to the same thing? Answer with 'yes' or 'no' only.`

// Options configures the retry and circuit breaking of an LLMOracle
type Options struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	// BaseBackoff is the wait before the first retry. It doubles with every retry.
	BaseBackoff time.Duration
	// FailureThreshold is the number of consecutive failed calls that opens the breaker.
	FailureThreshold uint32
	// OpenTimeout is how long the breaker stays open before letting a probe through.
	OpenTimeout time.Duration
}

// DefaultOptions returns the options used when none are given
func DefaultOptions() Options {
	return Options{
		MaxRetries:       3,
		BaseBackoff:      time.Second,
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
	}
}

// LLMOracle confirms borderline merges by asking a chat model
type LLMOracle struct {
	client  *openai.Client
	model   string
	options Options
	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewLLMOracle creates an oracle asking the given chat model
func NewLLMOracle(client *openai.Client, modelName string, options Options, logger *slog.Logger) *LLMOracle {
	if logger == nil {
		logger = slog.Default()
	}

	settings := gobreaker.Settings{
		Name:    "merge-confirmation",
		Timeout: options.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return options.FailureThreshold > 0 && counts.ConsecutiveFailures >= options.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			// a canceled caller says nothing about the health of the endpoint
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker changed state", slog.String("name", name), slog.String("from", from.String()), slog.String("to", to.String()))
		},
	}

	return &LLMOracle{
		client:  client,
		model:   modelName,
		options: options,
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

// Confirm asks whether incoming and existing refer to the same thing.
// Every failure is returned wrapped in ErrConfirmationUnavailable.
func (o *LLMOracle) Confirm(ctx context.Context, incoming model.Entity, existing model.Entity, score float64) (bool, error) {
	prompt := BuildPrompt(incoming, existing, score)

	answer, err := o.complete(ctx, prompt)
	if err != nil {
		return false, helper.NewError("confirm merge", fmt.Errorf("%w: %v", helper.ErrConfirmationUnavailable, err))
	}

	confirmed := ParseAnswer(answer)
	o.logger.Debug(
		"Merge confirmation answered",
		slog.String("incoming", incoming.Name),
		slog.String("existing", existing.Name),
		slog.Float64("score", score),
		slog.Bool("confirmed", confirmed),
	)

	return confirmed, nil
}

// complete sends the prompt with exponential backoff between retriable failures
func (o *LLMOracle) complete(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model: o.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0,
		Stream:      false,
	}

	var lastErr error
	for attempt := 0; attempt <= o.options.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := o.options.BaseBackoff * time.Duration(1<<(attempt-1))
			o.logger.Info("Retrying merge confirmation", slog.Duration("backoff", backoff), slog.Int("attempt", attempt+1))

			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		result, err := o.breaker.Execute(func() (interface{}, error) {
			return o.client.CreateChatCompletion(ctx, req)
		})
		if err != nil {
			lastErr = err
			if isRetriableError(err) {
				continue
			}
			return "", err
		}

		resp := result.(openai.ChatCompletionResponse)
		if len(resp.Choices) == 0 {
			return "", errors.New("no choices in completion response")
		}
		return resp.Choices[0].Message.Content, nil
	}

	return "", fmt.Errorf("all retries exhausted, last error: %w", lastErr)
}

// BuildPrompt renders the confirmation question for two entities
func BuildPrompt(incoming model.Entity, existing model.Entity, score float64) string {
	return fmt.Sprintf(
		promptTemplate,
		incoming.Name, incoming.Type, incoming.Description,
		existing.Name, existing.Type, existing.Description,
		score,
	)
}

// ParseAnswer reports whether the model answered exactly "yes", ignoring case and surrounding whitespace
func ParseAnswer(answer string) bool {
	return strings.EqualFold(strings.TrimSpace(answer), "yes")
}

// isRetriableError determines if an error should trigger a retry
func isRetriableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests || apiErr.HTTPStatusCode >= http.StatusInternalServerError
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests || reqErr.HTTPStatusCode >= http.StatusInternalServerError
	}

	var netErr net.Error
	return errors.As(err, &netErr)
}
