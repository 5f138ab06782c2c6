package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/nexusflow/backend/internal/email"
	"github.com/nexusflow/backend/internal/stats"
)

type EmailHandler struct {
	manager *email.Manager
	stats   *stats.Service
}

func NewEmailHandler(manager *email.Manager, statsSvc *stats.Service) *EmailHandler {
	return &EmailHandler{manager: manager, stats: statsSvc}
}

type sendRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Content string `json:"content"`
}

func (h *EmailHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.To == "" {
		writeErr(w, http.StatusBadRequest, "recipient required")
		return
	}

	result, err := h.manager.Send(r.Context(), email.Message{
		To:      req.To,
		Subject: req.Subject,
		Text:    req.Content,
	})
	if err != nil {
		writeErr(w, http.StatusInternalServerError, "failed to send email")
		return
	}

	h.stats.IncrementOutreach(1)
	h.stats.AddContactedEmail(req.To)

	writeJSON(w, http.StatusOK, result)
}

type configureRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	IMAPHost   string `json:"imapHost"` // accepted for dashboard compatibility, inbound mail arrives via the API
	SMTPHost   string `json:"smtpHost"`
	SMTPPort   int    `json:"smtpPort"`
	SenderName string `json:"senderName"`
}

func (h *EmailHandler) Configure(w http.ResponseWriter, r *http.Request) {
	var req configureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sender := h.manager.Configure(email.SMTPConfig{
		Host:       req.SMTPHost,
		Port:       req.SMTPPort,
		Username:   req.Email,
		Password:   req.Password,
		SenderName: req.SenderName,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"sender":  sender,
	})
}

func (h *EmailHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.stats.Get())
}
