// Package enrichment picks catalog items relevant to a chat turn. It is a
// best-effort side computation: it logs failures and never returns an error.
package enrichment

import (
	"context"
	"strings"
	"time"

	"memcontext-be/internal/pkg/logger"
	"memcontext-be/pkg/catalog"
	"memcontext-be/pkg/llm"
	"memcontext-be/pkg/memcontext"
	"memcontext-be/pkg/profile"
)

const (
	DefaultLLMTimeout    = 10 * time.Second
	DefaultHistoryTurns  = 5
	DefaultFallbackLimit = 5

	selectionTemperature = 0.1
)

// Request is the immutable input of one enrichment run.
type Request struct {
	UserID      string
	Tags        profile.Tags
	Input       string
	RecentTurns []memcontext.Turn
	Client      llm.LLMProvider
	Model       string
}

// InterestRecorder receives the derived tags of every enrichment run.
type InterestRecorder interface {
	RecordInterest(ctx context.Context, userID string, tags profile.Tags)
}

type Config struct {
	LLMTimeout    time.Duration
	FallbackLimit int
}

type Enricher struct {
	catalog  *catalog.Catalog
	recorder InterestRecorder
	logger   logger.ILogger
	llmLog   logger.ILogger
	cfg      Config
}

// New builds an Enricher. recorder and llmLog may be nil.
func New(c *catalog.Catalog, recorder InterestRecorder, log, llmLog logger.ILogger, cfg Config) *Enricher {
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = DefaultLLMTimeout
	}
	if cfg.FallbackLimit <= 0 {
		cfg.FallbackLimit = DefaultFallbackLimit
	}
	if llmLog == nil {
		llmLog = log
	}
	return &Enricher{catalog: c, recorder: recorder, logger: log, llmLog: llmLog, cfg: cfg}
}

// Recommend returns the catalog items matching the tags selected for req, possibly none.
func (e *Enricher) Recommend(ctx context.Context, req Request) []catalog.Item {
	start := time.Now()
	if strings.TrimSpace(req.UserID) == "" {
		e.logger.Warn("Enrichment", "Skipping enrichment without user id", nil)
		return nil
	}

	if e.recorder != nil {
		e.recorder.RecordInterest(ctx, req.UserID, req.Tags)
	}

	selected := e.selectWithModel(ctx, req)
	source := "model"
	if len(selected) == 0 {
		selected = e.fallback(req)
		source = "fallback"
	}

	items := e.catalog.Match(selected)
	e.logger.Info("Enrichment", "Enrichment finished", map[string]interface{}{
		"user_id":  req.UserID,
		"source":   source,
		"tags":     selected,
		"items":    len(items),
		"duration": time.Since(start).String(),
	})
	return items
}

func (e *Enricher) selectWithModel(ctx context.Context, req Request) []string {
	if req.Client == nil {
		return nil
	}

	turns := req.RecentTurns
	if len(turns) > DefaultHistoryTurns {
		turns = turns[len(turns)-DefaultHistoryTurns:]
	}
	prompt := BuildPrompt(e.catalog.Vocabulary(), req.Tags, req.Input, turns)

	callCtx, cancel := context.WithTimeout(ctx, e.cfg.LLMTimeout)
	defer cancel()

	opts := []llm.Option{llm.WithTemperature(selectionTemperature)}
	if req.Model != "" {
		opts = append(opts, llm.WithModel(req.Model))
	}
	reply, err := req.Client.Generate(callCtx, prompt, opts...)
	if err != nil {
		e.logger.Warn("Enrichment", "Tag selection call failed", map[string]interface{}{
			"user_id": req.UserID,
			"error":   err.Error(),
		})
		return nil
	}
	e.llmLog.Info("Enrichment", "Tag selection reply", map[string]interface{}{
		"user_id": req.UserID,
		"prompt":  prompt,
		"reply":   reply,
	})

	raw, err := ParseTags(reply)
	if err != nil {
		e.logger.Warn("Enrichment", "Unparseable tag selection reply", map[string]interface{}{
			"user_id": req.UserID,
			"error":   err.Error(),
		})
		return nil
	}
	return e.filter(raw)
}

// filter keeps vocabulary tags that are not forbidden, first occurrence wins.
func (e *Enricher) filter(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if !e.catalog.InVocabulary(t) || e.catalog.Forbidden(t) {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// fallback matches vocabulary tags as substrings of the input or of the derived tags.
func (e *Enricher) fallback(req Request) []string {
	input := strings.ToLower(req.Input)
	derived := strings.ToLower(strings.Join(append(append([]string{}, req.Tags.Interests...), req.Tags.PersonalityTraits...), " "))

	var out []string
	for _, tag := range e.catalog.Vocabulary() {
		if e.catalog.Forbidden(tag) {
			continue
		}
		lt := strings.ToLower(tag)
		if strings.Contains(input, lt) || strings.Contains(derived, lt) {
			out = append(out, tag)
			if len(out) >= e.cfg.FallbackLimit {
				break
			}
		}
	}
	return out
}
