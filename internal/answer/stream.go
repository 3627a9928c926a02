package answer

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/Turnstyle/ria-hunter-sub007/internal/domain"
)

// Chunk is one piece of a streamed answer. A chunk with Err set is the last one.
type Chunk struct {
	Text string
	Err  error
}

var (
	errReplyTooLong = errors.New("provider reply exceeds the size limit")
	wordChunk       = regexp.MustCompile(`\s*\S+`)
)

// Stream delivers the answer over a buffered channel that is closed when the answer ends.
// The provider reply is read to completion and normalized exactly as Generate does, so a
// collected stream equals the buffered answer. The final text is then sent word by word.
// If the provider fails before producing any text, the synthesized answer is streamed
// instead. A failure after the provider started replying ends the stream with an error
// chunk. Cancelling ctx stops the producer.
func (g *Generator) Stream(ctx context.Context, query, briefing string) <-chan Chunk {
	out := make(chan Chunk, g.config.StreamBuffer)
	go func() {
		defer close(out)
		g.produce(ctx, query, briefing, out)
	}()
	return out
}

type streamSink struct {
	ctx context.Context
	out chan<- Chunk
}

func (s streamSink) send(c Chunk) error {
	select {
	case s.out <- c:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

func (g *Generator) produce(ctx context.Context, query, briefing string, out chan<- Chunk) {
	log := g.logger.WithContext(ctx)
	sink := streamSink{ctx: ctx, out: out}
	pc := ParseContext(briefing)
	state := StateNotStarted

	if g.provider == nil {
		state = g.transition(log, state, StateFallback, "provider not configured")
		g.metrics.Generation(g.providerName(), outcomeFallback)
		if g.sendWords(sink, synthesize(pc, g.config.FallbackEntries)) == nil {
			g.transition(log, state, StateComplete, "")
		}
		return
	}

	state = g.transition(log, state, StateAwaitingGeneration, "")
	start := time.Now()
	var reply strings.Builder
	err := g.provider.StreamText(ctx, g.request(query, briefing, len(pc.Entries)), func(fragment string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if reply.Len()+len(fragment) > g.config.MaxReplyBytes {
			return errReplyTooLong
		}
		reply.WriteString(fragment)
		return nil
	})

	if ctx.Err() != nil {
		log.Debug().Int("chars_received", reply.Len()).Msg("Answer stream cancelled")
		return
	}

	text := reply.String()
	switch {
	case err != nil && !IsUnusable(text):
		g.transition(log, state, StateErroredMidStream, "")
		g.metrics.Generation(g.providerName(), outcomeError)
		log.Error().Err(err).Str("provider", g.providerName()).Int("chars_received", reply.Len()).Msg("Generation failed mid-stream")
		_ = sink.send(Chunk{Err: domain.StreamError("answer stream interrupted", err)})

	case err != nil || IsUnusable(text):
		if err != nil {
			log.Warn().Err(err).Str("provider", g.providerName()).Msg("Generation stream failed, synthesizing answer from context")
		} else {
			log.Info().Str("provider", g.providerName()).Msg("Generated text unusable, synthesizing answer from context")
		}
		state = g.transition(log, state, StateFallback, "")
		g.metrics.Generation(g.providerName(), outcomeFallback)
		if g.sendWords(sink, synthesize(pc, g.config.FallbackEntries)) == nil {
			g.transition(log, state, StateComplete, "")
		}

	default:
		state = g.transition(log, state, StateNormalizing, "")
		g.metrics.Generation(g.providerName(), outcomeOK)
		log.Debug().Dur("elapsed", time.Since(start)).Int("chars", len(text)).Msg("Answer generated")
		if g.sendWords(sink, reformat(text, len(pc.Entries))) == nil {
			g.transition(log, state, StateComplete, "")
		}
	}
}

// sendWords emits text as whitespace-delimited chunks, paced outside production.
func (g *Generator) sendWords(sink streamSink, text string) error {
	for i, w := range wordChunk.FindAllString(text, -1) {
		if i > 0 && g.config.StreamDelay > 0 {
			if err := sleep(sink.ctx, g.config.StreamDelay); err != nil {
				return err
			}
		}
		if err := sink.send(Chunk{Text: w}); err != nil {
			return err
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Collect drains a stream into a string, returning the first error chunk.
func Collect(ch <-chan Chunk) (string, error) {
	var sb strings.Builder
	for c := range ch {
		if c.Err != nil {
			return sb.String(), c.Err
		}
		sb.WriteString(c.Text)
	}
	return sb.String(), nil
}

