package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/studyhall-app/studyhall/internal/queue"
	"github.com/studyhall-app/studyhall/internal/request"
	"github.com/studyhall-app/studyhall/internal/services/ai"
)

// summaryInterval is how many messages accumulate before the conversation is
// re-summarized into the study context.
const summaryInterval = 10

// TutorHandler handles AI tutor chat requests
type TutorHandler struct {
	tutorService   *ai.TutorService
	contextService *ai.StudyContextService
	jobQueue       queue.JobQueue
}

// NewTutorHandler creates a new tutor handler
func NewTutorHandler(tutorService *ai.TutorService, contextService *ai.StudyContextService, jobQueue queue.JobQueue) *TutorHandler {
	return &TutorHandler{
		tutorService:   tutorService,
		contextService: contextService,
		jobQueue:       jobQueue,
	}
}

// RegisterRoutes registers tutor routes
// The router should already have the /tutor prefix
func (h *TutorHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/chat", h.StartChat).Methods("POST")
	r.HandleFunc("/chat/message", h.SendMessage).Methods("POST")
}

// TutorMessageRequest represents a tutor chat message request
type TutorMessageRequest struct {
	Message string `json:"message" validate:"required"`
}

// StartChat starts a tutoring session and returns an SSE stream
func (h *TutorHandler) StartChat(w http.ResponseWriter, r *http.Request) {
	identity := request.IdentityFromContext(r)
	if identity == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "Identity not found in context")
		return
	}

	// Set up SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	session := h.tutorService.GetOrCreateSession(identity.ID)

	// Send initial connection message
	if _, err := fmt.Fprintf(w, "data: %s\n\n", h.formatSSEMessage("connected", map[string]any{
		"message":    "Tutoring session started",
		"session_id": session.IdentityID.String(),
	})); err != nil {
		log.Printf("Failed to write SSE message: %v", err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if ok {
		flusher.Flush()
	}

	// Keep connection alive with ping every 30 seconds
	ctx := r.Context()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := fmt.Fprintf(w, ": ping\n\n"); err != nil {
					return
				}
				if flusher != nil {
					flusher.Flush()
				}
			}
		}
	}()

	// Wait for context cancellation (client disconnect)
	<-ctx.Done()

	// Hand the conversation to the summary worker before dropping the session.
	// The session lives only in this process, so the messages travel with the
	// job.
	if session.NeedsSummaryUpdate && len(session.Messages) > 0 {
		h.enqueueSummary(session)
	}

	h.tutorService.CloseSession(identity.ID)
}

// SendMessage sends a message in the tutoring session
func (h *TutorHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	identity := request.IdentityFromContext(r)
	if identity == nil {
		respondJSONError(w, http.StatusUnauthorized, "Unauthorized", "Identity not found in context")
		return
	}

	var req TutorMessageRequest
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(&req); err != nil || req.Message == "" {
		respondJSONError(w, http.StatusBadRequest, "Bad Request", "Invalid request body")
		return
	}

	session := h.tutorService.GetOrCreateSession(identity.ID)
	h.tutorService.AddMessage(session, "user", req.Message)

	ctx := r.Context()
	studyContext, err := h.contextService.LoadContextForChat(ctx, identity.ID)
	if err != nil {
		log.Printf("Failed to load study context: %v", err)
		studyContext = nil
	}

	response, err := h.tutorService.GetResponse(ctx, session, studyContext)
	if err != nil {
		respondJSONError(w, http.StatusInternalServerError, "Internal Server Error", "Failed to get tutor response")
		return
	}

	// Periodically hand the conversation to the summary worker
	if len(session.Messages) > 0 && len(session.Messages)%summaryInterval == 0 {
		h.enqueueSummary(session)
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"message":      response.Message,
		"needs_update": response.NeedsUpdate,
	})
}

// enqueueSummary queues a chat_summary job carrying a copy of the session's
// messages. Failures are logged only; summarization is best-effort.
func (h *TutorHandler) enqueueSummary(session *ai.TutorSession) {
	if h.jobQueue == nil {
		return
	}

	messages := make([]ai.ChatMessage, len(session.Messages))
	copy(messages, session.Messages)

	job := queue.NewJob(queue.JobTypeChatSummary, session.IdentityID)
	job.Metadata[queue.MetadataKeyMessages] = messages

	enqueueCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := h.jobQueue.Enqueue(enqueueCtx, job); err != nil {
		log.Printf("Failed to enqueue chat summary job: %v", err)
		return
	}

	session.NeedsSummaryUpdate = false
}

// formatSSEMessage formats a message for SSE
func (h *TutorHandler) formatSSEMessage(event string, data any) string {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return ""
	}
	return fmt.Sprintf(`{"event":%q,"data":%s}`, event, string(jsonData))
}
