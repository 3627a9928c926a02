package handlers

import (
	"context"
	"net/http"

	"github.com/Turnstyle/ria-hunter-sub007/internal/answer"
	"github.com/Turnstyle/ria-hunter-sub007/internal/domain"
	"github.com/Turnstyle/ria-hunter-sub007/internal/observability"
	"github.com/Turnstyle/ria-hunter-sub007/internal/search"
)

// Service is the part of search.Service the handlers use.
type Service interface {
	Search(ctx context.Context, req search.Request) (*search.Response, error)
	Answer(ctx context.Context, query, contextText string) (string, error)
	StreamAnswer(ctx context.Context, query, contextText string) (<-chan answer.Chunk, error)
	Ask(ctx context.Context, req search.Request) (*search.AskResponse, error)
	AskStream(ctx context.Context, req search.Request) (*search.Response, <-chan answer.Chunk, error)
}

// SearchHandler serves search and answer requests.
type SearchHandler struct {
	logger  *observability.Logger
	service Service
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(logger *observability.Logger, service Service) *SearchHandler {
	return &SearchHandler{logger: logger.WithComponent("handlers"), service: service}
}

// AnswerRequestDTO is the body of POST /answer.
type AnswerRequestDTO struct {
	Query   string `json:"query"`
	Context string `json:"context"`
}

// AnswerResponseDTO is the response of POST /answer.
type AnswerResponseDTO struct {
	Answer string `json:"answer"`
}

type contentEvent struct {
	Chunk string `json:"chunk"`
	Index int    `json:"index"`
}

type errorEvent struct {
	Message string `json:"message"`
}

type doneEvent struct {
	Chunks int `json:"chunks"`
}

// Search handles POST /api/v1/search.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req search.Request
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, "invalid request", err)
		return
	}
	resp, err := h.service.Search(r.Context(), req)
	if err != nil {
		h.fail(w, r, "search failed", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Answer handles POST /api/v1/answer, generating from a caller-supplied briefing.
func (h *SearchHandler) Answer(w http.ResponseWriter, r *http.Request) {
	var req AnswerRequestDTO
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, "invalid request", err)
		return
	}
	text, err := h.service.Answer(r.Context(), req.Query, req.Context)
	if err != nil {
		h.fail(w, r, "answer failed", err)
		return
	}
	writeJSON(w, http.StatusOK, AnswerResponseDTO{Answer: text})
}

// AnswerStream handles POST /api/v1/answer/stream.
func (h *SearchHandler) AnswerStream(w http.ResponseWriter, r *http.Request) {
	var req AnswerRequestDTO
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, "invalid request", err)
		return
	}
	sse, ok := newSSEWriter(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported", "")
		return
	}
	ch, err := h.service.StreamAnswer(r.Context(), req.Query, req.Context)
	if err != nil {
		h.fail(w, r, "answer failed", err)
		return
	}
	sse.start()
	h.relay(r, sse, ch)
}

// Ask handles POST /api/v1/ask.
func (h *SearchHandler) Ask(w http.ResponseWriter, r *http.Request) {
	var req search.Request
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, "invalid request", err)
		return
	}
	resp, err := h.service.Ask(r.Context(), req)
	if err != nil {
		h.fail(w, r, "ask failed", err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// AskStream handles POST /api/v1/ask/stream. The search response is sent as a metadata
// event, the answer as content events, and the stream ends with done or error.
func (h *SearchHandler) AskStream(w http.ResponseWriter, r *http.Request) {
	var req search.Request
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, "invalid request", err)
		return
	}
	sse, ok := newSSEWriter(w)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported", "")
		return
	}
	resp, ch, err := h.service.AskStream(r.Context(), req)
	if err != nil {
		h.fail(w, r, "ask failed", err)
		return
	}

	sse.start()
	if err := sse.event("metadata", resp); err != nil {
		h.logger.WithContext(r.Context()).Warn().Err(err).Msg("Failed to write metadata event")
		return
	}
	h.relay(r, sse, ch)
}

// relay forwards chunks until the channel closes. Returning early cancels nothing by itself;
// the generator stops when the request context is cancelled on disconnect.
func (h *SearchHandler) relay(r *http.Request, sse *sseWriter, ch <-chan answer.Chunk) {
	log := h.logger.WithContext(r.Context())
	index := 0
	for c := range ch {
		if c.Err != nil {
			log.Error().Err(c.Err).Int("chunks", index).Msg("Answer stream failed")
			_ = sse.event("error", errorEvent{Message: c.Err.Error()})
			return
		}
		if err := sse.event("content", contentEvent{Chunk: c.Text, Index: index}); err != nil {
			log.Debug().Err(err).Msg("Client went away during stream")
			return
		}
		index++
	}
	if r.Context().Err() != nil {
		return
	}
	_ = sse.event("done", doneEvent{Chunks: index})
}

func (h *SearchHandler) fail(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	log := h.logger.WithContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error().Err(err).Str("error_type", string(domain.TypeOf(err))).Msg(message)
	} else {
		log.Debug().Err(err).Msg(message)
	}

	// internal error text stays in the logs
	detail := ""
	if status < http.StatusInternalServerError {
		detail = err.Error()
	}
	writeError(w, status, message, detail)
}
