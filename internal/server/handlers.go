package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"commentdm/internal/replier"
	"commentdm/internal/security"
	"commentdm/pkg/templates"
)

const (
	MaxPayloadBytes = 1_000_000 // 1 MB
	MaxFormBytes    = 64 << 10  // Admin form posts
)

// HandleIndex reports that the service is up
func (s *Server) HandleIndex(w http.ResponseWriter, r *http.Request) {
	s.respondText(w, http.StatusOK, "commentdm is running. Webhook endpoint: /webhook\n")
}

// HandleHealth handles health check requests
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.Store.Stats()

	response := map[string]interface{}{
		"status":     "ok",
		"sent_count": stats.SentCount,
		"log_count":  stats.LogCount,
	}

	s.respondJSON(w, http.StatusOK, response)
}

// HandleVerify answers the webhook subscription handshake
func (s *Server) HandleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := queryValue(q, "hub.mode", "mode")
	token := queryValue(q, "hub.verify_token", "verify_token")
	challenge := queryValue(q, "hub.challenge", "challenge")

	if mode != "subscribe" || !security.SecretEqual(token, s.Config.VerifyToken) {
		s.Logger.Warn("Webhook verification rejected", "mode", mode)
		w.WriteHeader(http.StatusForbidden)
		return
	}

	s.Logger.Info("Webhook verified")
	s.respondText(w, http.StatusOK, challenge)
}

// HandleWebhook acknowledges a notification immediately and processes it in
// the background. Malformed payloads are dropped after the acknowledgment.
func (s *Server) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	// Check payload size (ContentLength can be -1 if not set)
	if r.ContentLength > MaxPayloadBytes {
		s.respondJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "Payload too large"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, MaxPayloadBytes+1))
	if err != nil {
		s.Logger.Error("Failed to read request body", "error", err)
		s.respondJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to read payload"})
		return
	}
	if len(body) > MaxPayloadBytes {
		s.respondJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "Payload too large"})
		return
	}

	// Verify signature when an app secret is configured
	if s.Config.AppSecret != "" {
		if !VerifySignature(body, r.Header.Get(SignatureHeader), s.Config.AppSecret) {
			s.Logger.Warn("Webhook signature rejected", "ip", clientIP(r))
			s.respondJSON(w, http.StatusForbidden, map[string]string{"error": "Invalid signature"})
			return
		}
	}

	// Acknowledge before any processing so the platform never retries
	// because of a slow outbound call
	w.WriteHeader(http.StatusOK)

	s.batchWg.Add(1)
	go func() {
		defer s.batchWg.Done()
		s.processPayload(context.Background(), body)
	}()
}

func (s *Server) processPayload(ctx context.Context, body []byte) {
	var notification replier.Notification
	if err := json.Unmarshal(body, &notification); err != nil {
		s.Logger.Debug("Ignoring malformed webhook payload", "error", err)
		return
	}

	s.Processor.HandleBatch(ctx, notification)
}

// HandleDashboard renders the admin page
func (s *Server) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	stats := s.Store.Stats()
	entries := s.Store.Logs()

	rows := make([]templates.LogRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, templates.LogRow{
			Time:  e.Time,
			Type:  string(e.Type),
			Msg:   e.Msg,
			Extra: e.Extra,
		})
	}

	page, err := templates.RenderDashboard(templates.DashboardData{
		ReplyText: s.Store.ReplyText(),
		SentCount: stats.SentCount,
		LogCount:  stats.LogCount,
		Logs:      rows,
		Password:  adminPassword(r),
	})
	if err != nil {
		s.Logger.Error("Failed to render dashboard", "error", err)
		s.respondText(w, http.StatusInternalServerError, "Failed to render dashboard\n")
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, page)
}

// HandleSave updates the reply text and redirects back to the dashboard
func (s *Server) HandleSave(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxFormBytes)
	if err := r.ParseForm(); err != nil {
		s.respondText(w, http.StatusBadRequest, "Invalid form submission\n")
		return
	}

	changed, err := s.Store.UpdateReplyText(r.PostForm.Get("dm_text"))
	if err != nil {
		s.Logger.Error("Failed to save reply text", "error", err)
		s.respondText(w, http.StatusInternalServerError, "Failed to save reply text\n")
		return
	}

	s.Logger.Info("Reply text saved", "changed", changed)

	target := "/admin?password=" + url.QueryEscape(adminPassword(r))
	http.Redirect(w, r, target, http.StatusFound)
}

// HandleReset clears every dedupe key
func (s *Server) HandleReset(w http.ResponseWriter, r *http.Request) {
	cleared, err := s.Store.ResetSent()
	if err != nil {
		s.Logger.Error("Failed to reset sent keys", "error", err)
		s.respondText(w, http.StatusInternalServerError, "Failed to reset sent list\n")
		return
	}

	s.Logger.Info("Sent keys cleared", "cleared", cleared)
	s.respondText(w, http.StatusOK,
		fmt.Sprintf("Sent list cleared (%d entries). Every commenter can receive the reply again.\n", cleared))
}

// respondJSON sends a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.Logger.Error("Failed to encode JSON response", "error", err)
	}
}

// respondText sends a plain text response
func (s *Server) respondText(w http.ResponseWriter, statusCode int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(statusCode)
	_, _ = io.WriteString(w, body)
}

// queryValue returns the first non-empty value among the given keys
func queryValue(q url.Values, keys ...string) string {
	for _, key := range keys {
		if v := q.Get(key); v != "" {
			return v
		}
	}
	return ""
}
