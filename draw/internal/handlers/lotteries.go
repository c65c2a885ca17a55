package handlers

import (
	"net/http"

	"github.com/lottoworks/drawstack/common/httputil"
	"github.com/lottoworks/drawstack/common/logging"
	"github.com/lottoworks/drawstack/draw/pkg/model"
)

// LotteryResponse is a lottery with its derived stage.
type LotteryResponse struct {
	*model.Lottery
	Stage model.Stage `json:"stage"`
}

// RunDraws handles POST /api/v1/draws/run
func (h *Handler) RunDraws(w http.ResponseWriter, r *http.Request) {
	res, err := h.orch.RunDueDraws(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// RunExports handles POST /api/v1/exports/run
func (h *Handler) RunExports(w http.ResponseWriter, r *http.Request) {
	res, err := h.orch.RunExports(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, res)
}

// DueLotteries handles GET /api/v1/lotteries/due
func (h *Handler) DueLotteries(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	lotteries, err := h.schedule.DueLotteries(r.Context(), now)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	out := make([]LotteryResponse, 0, len(lotteries))
	for _, l := range lotteries {
		out = append(out, LotteryResponse{Lottery: l, Stage: l.Stage(now)})
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"lotteries": out,
		"count":     len(out),
	})
}

// GetLottery handles GET /api/v1/lotteries/{id}
func (h *Handler) GetLottery(w http.ResponseWriter, r *http.Request) {
	l, ok := h.loadLottery(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, LotteryResponse{Lottery: l, Stage: l.Stage(h.now())})
}

// DrawLottery handles POST /api/v1/lotteries/{id}/draw
func (h *Handler) DrawLottery(w http.ResponseWriter, r *http.Request) {
	l, ok := h.loadLottery(w, r)
	if !ok {
		return
	}
	if stage := l.Stage(h.now()); stage != model.StageDue {
		httputil.WriteErrorCode(w, http.StatusConflict, "not_due", "lottery is "+string(stage))
		return
	}

	outcome, err := h.orch.DrawLottery(r.Context(), l)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, outcome)
}

// GetWinners handles GET /api/v1/lotteries/{id}/winners
func (h *Handler) GetWinners(w http.ResponseWriter, r *http.Request) {
	l, ok := h.loadLottery(w, r)
	if !ok {
		return
	}
	winners, err := h.tickets.GetWinners(r.Context(), l.ID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"lottery_id": l.ID,
		"winners":    winners,
	})
}

// GetTickets handles GET /api/v1/lotteries/{id}/tickets
func (h *Handler) GetTickets(w http.ResponseWriter, r *http.Request) {
	l, ok := h.loadLottery(w, r)
	if !ok {
		return
	}
	tickets, err := h.tickets.GetAllTickets(r.Context(), l.ID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"lottery_id": l.ID,
		"tickets":    tickets,
		"count":      len(tickets),
	})
}

// DropTickets handles DELETE /api/v1/lotteries/{id}/tickets. Only exported
// lotteries can have their partition dropped.
func (h *Handler) DropTickets(w http.ResponseWriter, r *http.Request) {
	l, ok := h.loadLottery(w, r)
	if !ok {
		return
	}
	if l.ResultsExportedAt == nil {
		httputil.WriteErrorCode(w, http.StatusConflict, "not_exported", "results have not been exported")
		return
	}

	if err := h.tickets.DropPartition(r.Context(), l.Type, l.ID); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.logger.InfoContext(r.Context(), "ticket partition dropped", logging.LotteryID(l.ID))
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) loadLottery(w http.ResponseWriter, r *http.Request) (*model.Lottery, bool) {
	id, ok := parseLotteryID(r)
	if !ok {
		httputil.WriteErrorCode(w, http.StatusBadRequest, "invalid_id", "lottery id must be a positive integer")
		return nil, false
	}
	l, err := h.schedule.GetLottery(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err)
		return nil, false
	}
	return l, true
}
