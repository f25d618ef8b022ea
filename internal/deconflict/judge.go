package deconflict

import (
	"context"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/mmorrisj/SoftPower-Analytics-sub001/internal/model"
	"github.com/mmorrisj/SoftPower-Analytics-sub001/pkg/anthropic"
)

// Judge decides whether a cluster's unique names describe one event or
// several. Implementations must return a verdict whose groups partition
// 1..len(uniqueNames) exactly once.
type Judge interface {
	Review(ctx context.Context, uniqueNames []string) (*model.RefinedClusters, error)
}

// claudeJudge implements Judge over the Anthropic messages API.
type claudeJudge struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	limiter   *rate.Limiter
}

// NewClaudeJudge creates a Judge backed by the given Anthropic client.
// requestsPerSec bounds the call rate; <= 0 disables limiting.
func NewClaudeJudge(client anthropic.Client, modelID string, maxTokens int64, requestsPerSec float64) Judge {
	var limiter *rate.Limiter
	if requestsPerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(requestsPerSec), 1)
	}
	return &claudeJudge{
		client:    client,
		model:     modelID,
		maxTokens: maxTokens,
		limiter:   limiter,
	}
}

func (j *claudeJudge) Review(ctx context.Context, uniqueNames []string) (*model.RefinedClusters, error) {
	if len(uniqueNames) == 0 {
		return nil, eris.New("deconflict: review called with no names")
	}

	if j.limiter != nil {
		if err := j.limiter.Wait(ctx); err != nil {
			return nil, eris.Wrap(err, "deconflict: rate limit wait")
		}
	}

	temp := 0.0
	resp, err := j.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       j.model,
		MaxTokens:   j.maxTokens,
		System:      systemPrompt,
		Temperature: &temp,
		Messages: []anthropic.Message{
			{Role: "user", Content: buildUserPrompt(uniqueNames)},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "deconflict: judge call")
	}

	resp.Usage.LogCost(j.model, "deconflict")

	return parseVerdict(resp.Text(), uniqueNames)
}
