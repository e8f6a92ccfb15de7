package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
)

// ResolutionActions defines the lifecycle mutations that the resolution
// handler requires from the service layer.
type ResolutionActions interface {
	PlaceBet(ctx context.Context, topicID string, participant common.Address, outcome int, amount *big.Int) error
	SubmitReport(ctx context.Context, topicID string, reporter common.Address, outcome int, stake *big.Int) error
	CastVote(ctx context.Context, topicID string, participant common.Address, outcome int, amount *big.Int) error
	ForceResolve(ctx context.Context, topicID string) error
	InvalidateRound(ctx context.Context, topicID string) error
	Finalize(ctx context.Context, topicID string) (int, error)
	Withdraw(ctx context.Context, topicID string, participant common.Address) (*big.Int, error)
}

// ResolutionHandler serves the topic lifecycle mutation endpoints.
type ResolutionHandler struct {
	resolution ResolutionActions
	logger     *slog.Logger
}

// NewResolutionHandler creates a ResolutionHandler with the given service and
// logger.
func NewResolutionHandler(resolution ResolutionActions, logger *slog.Logger) *ResolutionHandler {
	return &ResolutionHandler{
		resolution: resolution,
		logger:     logger,
	}
}

// stakeRequest is the shared body of the bet, report, and vote endpoints.
type stakeRequest struct {
	Participant string `json:"participant"`
	Outcome     int    `json:"outcome"`
	Amount      string `json:"amount"`
}

// parse validates a stakeRequest body from the request.
func (h *ResolutionHandler) parse(w http.ResponseWriter, r *http.Request) (common.Address, int, *big.Int, bool) {
	var req stakeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return common.Address{}, 0, nil, false
	}
	addr, ok := parseAddress(req.Participant)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid participant address")
		return common.Address{}, 0, nil, false
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return common.Address{}, 0, nil, false
	}
	return addr, req.Outcome, amount, true
}

// PlaceBet records a native-value bet on a topic outcome.
// POST /api/topics/{id}/bets
func (h *ResolutionHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	participant, outcome, amount, ok := h.parse(w, r)
	if !ok {
		return
	}

	if err := h.resolution.PlaceBet(r.Context(), id, participant, outcome, amount); err != nil {
		h.logger.WarnContext(r.Context(), "handler: place bet rejected",
			slog.String("topic_id", id),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// SubmitReport submits the designated reporter's outcome with its stake.
// POST /api/topics/{id}/report
func (h *ResolutionHandler) SubmitReport(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	reporter, outcome, stake, ok := h.parse(w, r)
	if !ok {
		return
	}

	if err := h.resolution.SubmitReport(r.Context(), id, reporter, outcome, stake); err != nil {
		h.logger.WarnContext(r.Context(), "handler: report rejected",
			slog.String("topic_id", id),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// CastVote records a token-stake vote in the active open-vote round.
// POST /api/topics/{id}/votes
func (h *ResolutionHandler) CastVote(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	participant, outcome, amount, ok := h.parse(w, r)
	if !ok {
		return
	}

	if err := h.resolution.CastVote(r.Context(), id, participant, outcome, amount); err != nil {
		h.logger.WarnContext(r.Context(), "handler: vote rejected",
			slog.String("topic_id", id),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

// ForceResolve concludes an expired round 0 that received no report.
// POST /api/topics/{id}/force-resolve
func (h *ResolutionHandler) ForceResolve(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if err := h.resolution.ForceResolve(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved"})
}

// InvalidateRound discards the active open-vote round after its deadline.
// POST /api/topics/{id}/invalidate
func (h *ResolutionHandler) InvalidateRound(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	if err := h.resolution.InvalidateRound(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

// Finalize locks in the topic's winning outcome.
// POST /api/topics/{id}/finalize
func (h *ResolutionHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")
	winner, err := h.resolution.Finalize(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "finalized",
		"outcome": winner,
	})
}

// withdrawRequest is the body of the withdrawal endpoint.
type withdrawRequest struct {
	Participant string `json:"participant"`
}

// Withdraw releases the participant's share of a finalized topic's pool.
// POST /api/topics/{id}/withdrawals
func (h *ResolutionHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	id := pathParam(r, "id")

	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	participant, ok := parseAddress(req.Participant)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid participant address")
		return
	}

	share, err := h.resolution.Withdraw(r.Context(), id, participant)
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: withdrawal rejected",
			slog.String("topic_id", id),
			slog.String("participant", participant.Hex()),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"share": share.String()})
}
