package symptom

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
)

// Sources of a Result.
const (
	SourceRules    = "rules"
	SourceAI       = "ai"
	SourceFallback = "default"
)

// Advisor produces suggestions for text no rule matched.
type Advisor interface {
	Advise(ctx context.Context, text string) ([]Suggestion, error)
}

type Result struct {
	Suggestions []Suggestion `json:"suggestions"`
	Source      string       `json:"source"`
}

type Service struct {
	rules   []Rule
	advisor Advisor
	logger  zerolog.Logger
}

// NewService builds the checker. advisor may be nil.
func NewService(rules []Rule, advisor Advisor, logger zerolog.Logger) *Service {
	if rules == nil {
		rules = DefaultRules
	}
	return &Service{rules: rules, advisor: advisor, logger: logger}
}

// Query never fails: advisor errors degrade to the Unknown suggestion.
func (s *Service) Query(ctx context.Context, text string) Result {
	if matches := Match(s.rules, text); len(matches) > 0 {
		return Result{Suggestions: matches, Source: SourceRules}
	}
	if s.advisor != nil && strings.TrimSpace(text) != "" {
		suggestions, err := s.advisor.Advise(ctx, text)
		if err == nil && len(suggestions) > 0 {
			return Result{Suggestions: suggestions, Source: SourceAI}
		}
		s.logger.Warn().Err(err).Msg("symptom advisor failed")
	}
	return Result{Suggestions: []Suggestion{Unknown}, Source: SourceFallback}
}
