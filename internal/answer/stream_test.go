package answer

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Turnstyle/ria-hunter-sub007/internal/domain"
)

func collectWithin(t *testing.T, ch <-chan Chunk) (string, int, error) {
	t.Helper()
	var (
		sb     strings.Builder
		err    error
		chunks int
	)
	timeout := time.After(5 * time.Second)
	for {
		select {
		case c, ok := <-ch:
			if !ok {
				return sb.String(), chunks, err
			}
			chunks++
			if c.Err != nil {
				require.NoError(t, err, "more than one error chunk")
				err = c.Err
				continue
			}
			require.NoError(t, err, "chunk after error chunk")
			sb.WriteString(c.Text)
		case <-timeout:
			t.Fatal("stream did not close")
		}
	}
}

func TestStream_NilProviderSendsFallbackWords(t *testing.T) {
	briefing := threeFirmBriefing()
	g := NewGenerator(nil, Config{StreamDelay: time.Millisecond}, nil, nil)

	text, chunks, err := collectWithin(t, g.Stream(context.Background(), "q", briefing))

	require.NoError(t, err)
	want := NormalizeGeneratedText("", briefing)
	assert.Equal(t, want, text)
	assert.Equal(t, len(strings.Fields(want)), chunks)
}

func TestStream_SendsNormalizedProviderText(t *testing.T) {
	p := &scriptedProvider{fragments: []string{"\n1. Giant Capital is the largest", " firm in St. Louis.", "\n\n2. Gateway"}}
	g := NewGenerator(p, Config{}, nil, nil)

	text, chunks, err := collectWithin(t, g.Stream(context.Background(), "q", threeFirmBriefing()))

	require.NoError(t, err)
	want := "1. Giant Capital is the largest firm in St. Louis.\n\n2. Gateway\n\nSources: 3 RIAs from semantic search."
	assert.Equal(t, want, text)
	assert.Equal(t, len(strings.Fields(want)), chunks)
}

func TestStream_KeepsProviderSourcesLine(t *testing.T) {
	p := &scriptedProvider{fragments: []string{"1. Giant Capital\n\n", "Sources: 3 RIAs from semantic search."}}
	g := NewGenerator(p, Config{}, nil, nil)

	text, _, err := collectWithin(t, g.Stream(context.Background(), "q", threeFirmBriefing()))

	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(text, "Sources:"))
}

// TestStream_MatchesBufferedAnswer feeds the same reply to both paths.
func TestStream_MatchesBufferedAnswer(t *testing.T) {
	preamble := strings.Repeat("Giant Capital Management leads the St. Louis market by assets. ", 5)

	tests := []struct {
		name      string
		fragments []string
	}{
		{"short reply with paren markers", []string{"1) Giant", "\n2) Gateway"}},
		{"paren markers after a long preamble", []string{preamble, "\n1) Giant Capital\n", "2) Gateway Advisors\n3) Arch"}},
		{"sentinel inside the first fragments", []string{"Sorry, I am temporarily unable ", "to generate a detailed response."}},
		{"sentinel after a long preamble", []string{preamble, "\n\nI am temporarily unable to generate a detailed response", " right now."}},
		{"whitespace only", []string{"  ", "\n"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			briefing := threeFirmBriefing()
			p := &scriptedProvider{text: strings.Join(tc.fragments, ""), fragments: tc.fragments}
			g := NewGenerator(p, Config{}, nil, nil)

			streamed, err := Collect(g.Stream(context.Background(), "q", briefing))
			require.NoError(t, err)
			buffered, err := g.Answer(context.Background(), "q", briefing)
			require.NoError(t, err)

			assert.Equal(t, buffered, streamed)
			assert.NotContains(t, strings.ToLower(streamed), Sentinel)
			assert.NotContains(t, streamed, "1)")
		})
	}
}

func TestStream_FailureBeforeOutputFallsBack(t *testing.T) {
	briefing := threeFirmBriefing()
	p := &scriptedProvider{streamErr: errProvider}
	g := NewGenerator(p, Config{}, nil, nil)

	text, _, err := collectWithin(t, g.Stream(context.Background(), "q", briefing))

	require.NoError(t, err)
	assert.Equal(t, NormalizeGeneratedText("", briefing), text)
}

func TestStream_FailureAfterProviderTextEndsWithError(t *testing.T) {
	p := &scriptedProvider{
		fragments: []string{"1. Giant Capital Management is the largest adviser in St. Louis", " with $900B"},
		streamErr: errProvider,
	}
	g := NewGenerator(p, Config{}, nil, nil)

	text, chunks, err := collectWithin(t, g.Stream(context.Background(), "q", threeFirmBriefing()))

	assert.Empty(t, text)
	assert.Equal(t, 1, chunks)
	require.Error(t, err)
	assert.True(t, domain.IsType(err, domain.ErrorTypeStream))
	assert.ErrorIs(t, err, errProvider)
}

func TestStream_FailedSentinelReplyFallsBack(t *testing.T) {
	briefing := threeFirmBriefing()
	p := &scriptedProvider{fragments: []string{"Temporarily unable to generate a detailed response"}, streamErr: errProvider}
	g := NewGenerator(p, Config{}, nil, nil)

	text, _, err := collectWithin(t, g.Stream(context.Background(), "q", briefing))

	require.NoError(t, err)
	assert.Equal(t, NormalizeGeneratedText("", briefing), text)
}

func TestStream_OversizedReplyEndsWithError(t *testing.T) {
	p := &scriptedProvider{endless: true}
	g := NewGenerator(p, Config{MaxReplyBytes: 100}, nil, nil)

	text, _, err := collectWithin(t, g.Stream(context.Background(), "q", threeFirmBriefing()))

	assert.Empty(t, text)
	require.Error(t, err)
	assert.ErrorIs(t, err, errReplyTooLong)
}

func TestStream_CancellationStopsProducer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := &scriptedProvider{endless: true}
	g := NewGenerator(p, Config{MaxReplyBytes: 1 << 30, StreamBuffer: 1}, nil, nil)

	ch := g.Stream(ctx, "q", threeFirmBriefing())
	time.AfterFunc(10*time.Millisecond, cancel)

	text, _, err := collectWithin(t, ch)
	assert.Empty(t, text)
	assert.NoError(t, err)
}

func TestCollect(t *testing.T) {
	ch := make(chan Chunk, 3)
	ch <- Chunk{Text: "a "}
	ch <- Chunk{Text: "b"}
	ch <- Chunk{Err: errProvider}
	close(ch)

	text, err := Collect(ch)
	assert.Equal(t, "a b", text)
	assert.ErrorIs(t, err, errProvider)
}
