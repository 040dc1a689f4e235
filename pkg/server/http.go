package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/we11as22/deepresearch/pkg/observability"
	"github.com/we11as22/deepresearch/pkg/streaming"
)

// chatStreamRequest is the OpenAI-style request body. The model field
// carries the research mode; unknown values fall through to the
// classifier.
type chatStreamRequest struct {
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
	Model  string `json:"model"`
	Stream bool   `json:"stream"`
	ChatID string `json:"chat_id,omitempty"`
}

func (r *chatStreamRequest) lastUserMessage() string {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == "user" {
			return r.Messages[i].Content
		}
	}
	return ""
}

// handleChatStream answers POST /api/chat/stream with an SSE stream of
// typed events, terminated by data: [DONE].
func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req chatStreamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	message := req.lastUserMessage()
	if message == "" {
		httpError(w, http.StatusBadRequest, "no user message")
		return
	}
	chatID := req.ChatID
	if chatID == "" {
		chatID = r.Header.Get("X-Chat-ID")
	}
	mode := r.Header.Get("X-Research-Mode")
	if mode == "" {
		mode = req.Model
	}

	gen, sessionID, resolvedMode, err := s.engine.StartStream(r.Context(), StreamRequest{
		ChatID:  chatID,
		Message: message,
		Mode:    mode,
	})
	if err != nil {
		// Failing to create the session row is the one fatal error: no
		// stream is opened.
		s.logger.Error("stream start failed", "error", err)
		httpError(w, http.StatusInternalServerError, "failed to start stream")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		httpError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Session-ID", sessionID)
	w.Header().Set("X-Research-Mode", string(resolvedMode))
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events, unsubscribe := gen.Subscribe(true)
	defer unsubscribe()

	for {
		select {
		case <-r.Context().Done():
			// Client went away; the research keeps running and the
			// history ring replays on reconnect.
			return
		case event, open := <-events:
			if !open {
				fmt.Fprint(w, "data: [DONE]\n\n")
				flusher.Flush()
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
			if event.Type == streaming.EventDone {
				fmt.Fprint(w, "data: [DONE]\n\n")
				flusher.Flush()
				return
			}
		}
	}
}

// handleCancel aborts a live session.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if !s.engine.Cancel(r.Context(), sessionID) {
		httpError(w, http.StatusNotFound, "session not running")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"cancelled":true}`))
}

// handleEvents dumps the live stream's event history as JSON. Debug aid;
// finished sessions return 404 because their generator is gone.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	gen, ok := s.engine.hub.Get(sessionID)
	if !ok {
		httpError(w, http.StatusNotFound, "session not running")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(gen.History()); err != nil {
		s.logger.Warn("event dump failed", "session_id", sessionID, "error", err)
	}
}

// handlePDF renders the session's report as a PDF.
func (s *Server) handlePDF(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	sess, err := s.engine.sessions.GetSession(r.Context(), sessionID)
	if err != nil {
		httpError(w, http.StatusNotFound, "session not found")
		return
	}

	report := sess.FinalReport
	if report == "" {
		report = sess.DraftReport
	}
	if report == "" {
		report = sess.DeepSearchResult
	}
	if report == "" {
		httpError(w, http.StatusNotFound, "no report for session")
		return
	}

	data, err := s.exporter.Export(sess.OriginalQuery, report)
	if err != nil {
		s.logger.Error("pdf export failed", "session_id", sessionID, "error", err)
		httpError(w, http.StatusInternalServerError, "pdf rendering failed")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", "research-"+sessionID+".pdf"))
	w.Write(data)
}

func httpError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// requestMetrics records request counts and latency per route.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		metrics := observability.GetGlobalMetrics()
		route := r.Method + " " + r.URL.Path
		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		metrics.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush keeps SSE working behind the metrics middleware.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
