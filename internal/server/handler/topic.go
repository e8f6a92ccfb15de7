package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/openquorum/resolved/internal/domain"
)

// TopicService defines the read and creation methods that the topic handler
// requires from the service layer. It is declared locally so the handler
// package does not depend on the concrete service implementation.
type TopicService interface {
	OpenTopic(ctx context.Context, params domain.TopicParams) (domain.Topic, error)
	GetTopic(ctx context.Context, id string) (domain.Topic, error)
	ListTopics(ctx context.Context, opts domain.ListOpts) ([]domain.Topic, error)
	ListByStatus(ctx context.Context, status domain.TopicStatus, opts domain.ListOpts) ([]domain.Topic, error)
	ListEvents(ctx context.Context, topicID string, opts domain.ListOpts) ([]domain.Event, error)
}

// TopicHandler serves topic CRUD endpoints.
type TopicHandler struct {
	topics TopicService
	logger *slog.Logger
}

// NewTopicHandler creates a TopicHandler with the given service and logger.
func NewTopicHandler(topics TopicService, logger *slog.Logger) *TopicHandler {
	return &TopicHandler{
		topics: topics,
		logger: logger,
	}
}

// openTopicRequest is the body of the topic creation endpoint.
type openTopicRequest struct {
	ID                string   `json:"id"`
	Question          string   `json:"question"`
	Outcomes          []string `json:"outcomes"`
	BettingDeadline   uint64   `json:"betting_deadline"`
	ReportingDeadline uint64   `json:"reporting_deadline"`
	Reporter          string   `json:"reporter"`
}

// listTopicsResponse wraps the list endpoint output with metadata.
type listTopicsResponse struct {
	Topics []domain.Topic `json:"topics"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

// OpenTopic creates a new topic and its designated-report round.
// POST /api/topics
func (h *TopicHandler) OpenTopic(w http.ResponseWriter, r *http.Request) {
	var req openTopicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reporter, ok := parseAddress(req.Reporter)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid reporter address")
		return
	}

	rec, err := h.topics.OpenTopic(r.Context(), domain.TopicParams{
		ID:                req.ID,
		Question:          req.Question,
		Outcomes:          req.Outcomes,
		BettingDeadline:   req.BettingDeadline,
		ReportingDeadline: req.ReportingDeadline,
		Reporter:          reporter,
	})
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: open topic failed",
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

// ListTopics returns topics with pagination, optionally filtered by status.
// GET /api/topics?status=betting&limit=50&offset=0
func (h *TopicHandler) ListTopics(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	var (
		topics []domain.Topic
		err    error
	)
	if status := r.URL.Query().Get("status"); status != "" {
		topics, err = h.topics.ListByStatus(r.Context(), domain.TopicStatus(status), opts)
	} else {
		topics, err = h.topics.ListTopics(r.Context(), opts)
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list topics failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list topics")
		return
	}

	writeJSON(w, http.StatusOK, listTopicsResponse{
		Topics: topics,
		Limit:  opts.Limit,
		Offset: opts.Offset,
	})
}

// GetTopic returns a single topic summary by its ID.
// GET /api/topics/{id}
func (h *TopicHandler) GetTopic(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing topic id")
		return
	}

	rec, err := h.topics.GetTopic(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "topic not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "handler: get topic failed",
			slog.String("topic_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get topic")
		return
	}

	writeJSON(w, http.StatusOK, rec)
}

// ListEvents returns the event log of one topic in append order.
// GET /api/topics/{id}/events
func (h *TopicHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing topic id")
		return
	}

	events, err := h.topics.ListEvents(r.Context(), id, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list events failed",
			slog.String("topic_id", id),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list events")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}
