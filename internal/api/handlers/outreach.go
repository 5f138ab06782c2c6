package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/nexusflow/backend/internal/outreach"
)

type OutreachHandler struct {
	svc *outreach.Service
}

func NewOutreachHandler(svc *outreach.Service) *OutreachHandler {
	return &OutreachHandler{svc: svc}
}

func (h *OutreachHandler) GenerateOutbound(w http.ResponseWriter, r *http.Request) {
	var req outreach.OutboundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Language = language(r, req.Language)

	result, err := h.svc.GenerateOutbound(r.Context(), req)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "failed to generate draft")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// AnalyzeInbound always answers 200: the service degrades to a holding
// reply rather than surfacing provider errors to the inbox view.
func (h *OutreachHandler) AnalyzeInbound(w http.ResponseWriter, r *http.Request) {
	var req outreach.InboundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Language = language(r, req.Language)

	writeJSON(w, http.StatusOK, h.svc.AnalyzeInbound(r.Context(), req))
}

func (h *OutreachHandler) Summarize(w http.ResponseWriter, r *http.Request) {
	var req outreach.SummarizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Language = language(r, req.Language)

	writeJSON(w, http.StatusOK, map[string]string{
		"summary": h.svc.Summarize(r.Context(), req),
	})
}
