package answer

import (
	"context"
	"fmt"
	"time"

	"github.com/Turnstyle/ria-hunter-sub007/internal/domain"
	"github.com/Turnstyle/ria-hunter-sub007/internal/llm"
	"github.com/Turnstyle/ria-hunter-sub007/internal/metrics"
	"github.com/Turnstyle/ria-hunter-sub007/internal/observability"
)

// State is the lifecycle of one generation.
type State int

const (
	StateNotStarted State = iota
	StateAwaitingGeneration
	StateNormalizing
	StateFallback
	StateComplete
	StateErroredMidStream
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not_started"
	case StateAwaitingGeneration:
		return "awaiting_generation"
	case StateNormalizing:
		return "normalizing"
	case StateFallback:
		return "fallback"
	case StateComplete:
		return "complete"
	case StateErroredMidStream:
		return "errored_mid_stream"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Generation outcomes recorded in metrics.
const (
	outcomeOK       = "ok"
	outcomeFallback = "fallback"
	outcomeError    = "error"
)

// Config holds generator settings.
type Config struct {
	MaxTokens       int
	Temperature     float32
	FallbackEntries int
	// StreamDelay paces fallback chunks. Production disables it.
	StreamDelay  time.Duration
	StreamBuffer int
	// MaxReplyBytes caps how much streamed provider text is buffered before normalizing.
	MaxReplyBytes int
	Production    bool
}

// Result is a buffered answer and how it was produced.
type Result struct {
	Text     string `json:"answer"`
	State    State  `json:"-"`
	Fallback bool   `json:"fallback"`
}

// Generator turns a briefing into an answer.
type Generator struct {
	provider llm.Provider
	config   Config
	logger   *observability.Logger
	metrics  *metrics.Metrics
}

// NewGenerator creates a generator. provider may be nil, in which case every answer is
// synthesized from the briefing.
func NewGenerator(provider llm.Provider, cfg Config, logger *observability.Logger, m *metrics.Metrics) *Generator {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1200
	}
	if cfg.FallbackEntries <= 0 {
		cfg.FallbackEntries = DefaultFallbackEntries
	}
	if cfg.StreamBuffer <= 0 {
		cfg.StreamBuffer = 16
	}
	if cfg.MaxReplyBytes <= 0 {
		cfg.MaxReplyBytes = 64 << 10
	}
	if cfg.Production {
		cfg.StreamDelay = 0
	}
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Generator{
		provider: provider,
		config:   cfg,
		logger:   logger.WithComponent("answer"),
		metrics:  m,
	}
}

func (g *Generator) providerName() string {
	if g.provider == nil {
		return "none"
	}
	return g.provider.Name()
}

// Answer returns the complete answer text.
func (g *Generator) Answer(ctx context.Context, query, briefing string) (string, error) {
	res, err := g.Generate(ctx, query, briefing)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// Generate calls the provider once and falls back to the synthesized answer when the
// provider is absent, fails, or returns empty or sentinel text. Only cancellation of
// ctx is returned as an error.
func (g *Generator) Generate(ctx context.Context, query, briefing string) (Result, error) {
	log := g.logger.WithContext(ctx)
	pc := ParseContext(briefing)
	state := StateNotStarted

	if g.provider == nil {
		state = g.transition(log, state, StateFallback, "provider not configured")
		g.metrics.Generation(g.providerName(), outcomeFallback)
		return Result{Text: synthesize(pc, g.config.FallbackEntries), State: g.transition(log, state, StateComplete, ""), Fallback: true}, nil
	}

	state = g.transition(log, state, StateAwaitingGeneration, "")
	start := time.Now()
	text, err := g.provider.GenerateText(ctx, g.request(query, briefing, len(pc.Entries)))
	if err != nil {
		if ctx.Err() != nil {
			return Result{State: state}, ctx.Err()
		}
		log.Warn().
			Err(err).
			Str("provider", g.providerName()).
			Str("error_type", string(domain.TypeOf(err))).
			Dur("elapsed", time.Since(start)).
			Msg("Generation failed, synthesizing answer from context")
	}

	if err != nil || IsUnusable(text) {
		if err == nil {
			log.Info().Str("provider", g.providerName()).Msg("Generated text unusable, synthesizing answer from context")
		}
		state = g.transition(log, state, StateFallback, "")
		g.metrics.Generation(g.providerName(), outcomeFallback)
		return Result{Text: synthesize(pc, g.config.FallbackEntries), State: g.transition(log, state, StateComplete, ""), Fallback: true}, nil
	}

	state = g.transition(log, state, StateNormalizing, "")
	out := reformat(text, len(pc.Entries))
	g.metrics.Generation(g.providerName(), outcomeOK)
	log.Debug().Dur("elapsed", time.Since(start)).Int("chars", len(out)).Msg("Answer generated")
	return Result{Text: out, State: g.transition(log, state, StateComplete, "")}, nil
}

func (g *Generator) transition(log *observability.Logger, from, to State, reason string) State {
	evt := log.Debug().Str("from", from.String()).Str("to", to.String())
	if reason != "" {
		evt = evt.Str("reason", reason)
	}
	evt.Msg("Answer state")
	return to
}

const systemPrompt = `You are a research assistant for questions about SEC-registered investment advisers (RIAs).
Answer only from the firms listed in the context. Never invent firms, people or figures.`

func (g *Generator) request(query, briefing string, sources int) llm.Request {
	return llm.Request{
		System:      systemPrompt,
		Prompt:      buildPrompt(query, briefing, sources),
		MaxTokens:   g.config.MaxTokens,
		Temperature: llm.Float32(g.config.Temperature),
	}
}

func buildPrompt(query, briefing string, sources int) string {
	return fmt.Sprintf(`Context:
%s
Question: %s

Formatting rules:
1. Answer with a numbered list, one firm per item, in the order given in the context.
2. Leave a blank line between firms.
3. For each firm give its location, AUM, private funds and executives when the context has them.
4. Write "Not available" for any fact the context does not contain. Do not guess.
5. End with this exact final line: %s`, briefing, query, SourcesLine(sources))
}
