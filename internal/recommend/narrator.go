package recommend

import (
	"context"
	"fmt"
	"strings"

	"github.com/byteos/intelligence/internal/llm"
	"github.com/byteos/intelligence/internal/logger"
	"github.com/byteos/intelligence/internal/models"
)

// maxReasonWords bounds a narrated reason.
const maxReasonWords = 25

// Completer is satisfied by *llm.Chain.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Narrator rephrases a decision's heuristic reason with an LLM. Any failure
// leaves the heuristic reason in place.
type Narrator struct {
	llm       Completer
	maxTokens int
	log       *logger.Logger
}

// NewNarrator returns nil when there is nothing to narrate with.
func NewNarrator(c Completer, maxTokens int, log *logger.Logger) *Narrator {
	if c == nil {
		return nil
	}
	if chain, ok := c.(*llm.Chain); ok && (chain == nil || chain.Len() == 0) {
		return nil
	}
	return &Narrator{llm: c, maxTokens: maxTokens, log: log.With("component", "recommend.narrator")}
}

// Narrate returns the reason to show and whether it came from the model.
func (n *Narrator) Narrate(ctx context.Context, d Decision) (string, bool) {
	fallback := d.Action.Reason
	if n == nil || d.Action.ActionType == models.ActionStartNew || len(d.Facts) == 0 {
		return fallback, false
	}

	resp, err := n.llm.Complete(ctx, llm.Request{
		System:      "You write short, encouraging guidance for learners on an online course platform.",
		Prompt:      buildPrompt(d),
		MaxTokens:   n.maxTokens,
		Temperature: 0.4,
	})
	if err != nil {
		n.log.Warn("narration failed, using heuristic reason", "action", d.Action.ActionType, "error", err)
		return fallback, false
	}

	text := cleanSentence(resp.Text)
	if text == "" || len(strings.Fields(text)) > maxReasonWords {
		n.log.Warn("narration rejected", "action", d.Action.ActionType, "words", len(strings.Fields(text)))
		return fallback, false
	}
	return text, true
}

func buildPrompt(d Decision) string {
	var what string
	switch d.Action.ActionType {
	case models.ActionReviewSkill:
		what = fmt.Sprintf("review the skill %q", d.Action.TargetID)
	case models.ActionTryModality:
		what = fmt.Sprintf("try their next module in %s format", d.Action.TargetID)
	case models.ActionContinueCourse:
		what = "continue the course they already started"
	}
	return fmt.Sprintf(
		"Write one sentence (max %d words) explaining to a learner why they should %s.\nReasons: %s\nBe warm and specific. No fluff.",
		maxReasonWords, what, strings.Join(d.Facts, "; "),
	)
}

func cleanSentence(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'`")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
