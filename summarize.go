package orchestrator

import (
	"context"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

const (
	minSummarizeRatio = 0.05
	maxSummarizeRatio = 1.0
)

// Summary is the result of Summarize.
type Summary struct {
	Text           string            `json:"summary"`
	OriginalLength int               `json:"originalLength"`
	Ratio          float64           `json:"ratio"`
	Result         *CompletionResult `json:"-"`
}

// ClampRatio bounds ratio to [0.05, 1]. Non-finite values become the default.
func ClampRatio(ratio float64) float64 {
	if math.IsNaN(ratio) || math.IsInf(ratio, 0) {
		return DefaultSummarizeRatio
	}
	return math.Min(maxSummarizeRatio, math.Max(minSummarizeRatio, ratio))
}

// Summarize asks for a summary of text at roughly ratio of its length. It
// always uses the cache and the race step.
func (o *Orchestrator) Summarize(ctx context.Context, text string, ratio float64) (*Summary, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text is empty", ErrInvalidInput)
	}
	n := utf8.RuneCountInString(text)
	if n > DefaultMaxSummarizeChars {
		return nil, fmt.Errorf("%w: text exceeds %d characters", ErrInvalidInput, DefaultMaxSummarizeChars)
	}
	ratio = ClampRatio(ratio)

	prompt := fmt.Sprintf("Please summarize the following text to approximately %d%% of its original length. "+
		"Focus on key information and maintain a professional tone:\n\n%s", int(math.Round(ratio*100)), text)
	res, err := o.GetCompletion(ctx, prompt, DefaultOptions())
	if err != nil {
		return nil, err
	}
	return &Summary{
		Text:           res.Content,
		OriginalLength: n,
		Ratio:          ratio,
		Result:         res,
	}, nil
}
