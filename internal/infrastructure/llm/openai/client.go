package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"

	"github.com/kirillkom/grading-assistant/internal/infrastructure/resilience"
)

type Config struct {
	APIKey            string
	OrgID             string
	BaseURL           string
	SplitModel        string
	ScoreModel        string
	RequestsPerSecond float64
	HTTPTimeout       time.Duration
}

// Client wraps the OpenAI API with a request rate limit and the resilience executor.
type Client struct {
	api        *goopenai.Client
	splitModel string
	scoreModel string
	limiter    *rate.Limiter
	executor   *resilience.Executor
}

func New(cfg Config, executor *resilience.Executor) *Client {
	apiCfg := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.OrgID != "" {
		apiCfg.OrgID = cfg.OrgID
	}
	timeout := cfg.HTTPTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	apiCfg.HTTPClient = &http.Client{Timeout: timeout}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if executor == nil {
		executor = resilience.NewExecutor(resilience.DefaultConfig())
	}
	splitModel := cfg.SplitModel
	if splitModel == "" {
		splitModel = goopenai.GPT4o
	}
	scoreModel := cfg.ScoreModel
	if scoreModel == "" {
		scoreModel = goopenai.GPT4oMini
	}
	return &Client{
		api:        goopenai.NewClientWithConfig(apiCfg),
		splitModel: splitModel,
		scoreModel: scoreModel,
		limiter:    rate.NewLimiter(limit, 1),
		executor:   executor,
	}
}

// call runs one API request under the rate limit and the executor.
func call[T any](ctx context.Context, c *Client, operation string, retry bool, fn func(context.Context) (T, error)) (T, error) {
	classifier := classifyOpenAIError
	if !retry {
		classifier = withoutRetry(classifyOpenAIError)
	}
	out, err := resilience.Do(ctx, c.executor, "openai."+operation, func(ctx context.Context) (T, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			var zero T
			return zero, fmt.Errorf("rate limit wait: %w", err)
		}
		return fn(ctx)
	}, classifier)
	return out, wrapTemporaryIfNeeded("openai "+operation, err)
}
