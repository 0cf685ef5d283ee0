package handlers

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/AMKLAZ/Bibliotrocs/internal/chat"
	"github.com/AMKLAZ/Bibliotrocs/internal/models"
)

// validate checks request payloads against their struct tags.
var validate = validator.New()

// ChatHandler handles the conversational API: session lifecycle and the
// three turn inputs (text, tagged action, photo).
type ChatHandler struct {
	sessions *chat.SessionManager
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(sessions *chat.SessionManager) *ChatHandler {
	return &ChatHandler{sessions: sessions}
}

// writeJSONResponse is a helper function to write JSON responses.
func writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeErrorResponse is a helper function to write error responses.
func writeErrorResponse(w http.ResponseWriter, statusCode int, code, message string, details []models.ErrorDetail) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(models.ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	})
}

// decodeAndValidate decodes a JSON body into dst and validates it.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		slog.Warn("Invalid JSON in request", "error", err, "remote_addr", r.RemoteAddr)
		writeErrorResponse(w, http.StatusBadRequest, "bad_request", "Invalid JSON", nil)
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var details []models.ErrorDetail
		if errs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range errs {
				details = append(details, models.ErrorDetail{Field: fe.Field(), Issue: fe.Tag()})
			}
		}
		writeErrorResponse(w, http.StatusBadRequest, "validation_failed", "Invalid request payload", details)
		return false
	}
	return true
}

// CreateSession handles POST /v1/chat/sessions.
func (h *ChatHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	conv := h.sessions.Create()
	conv.Greet(r.Context())

	slog.Info("Chat session started", "session_id", conv.ID())

	writeJSONResponse(w, http.StatusCreated, models.SessionResponse{
		SessionID: conv.ID(),
		State:     conv.State(),
		Messages:  conv.Messages(),
	})
}

// GetSession handles GET /v1/chat/sessions/{sessionId}.
func (h *ChatHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.lookup(w, r)
	if !ok {
		return
	}

	writeJSONResponse(w, http.StatusOK, models.SessionResponse{
		SessionID: conv.ID(),
		State:     conv.State(),
		Messages:  conv.Messages(),
	})
}

// PostMessage handles POST /v1/chat/sessions/{sessionId}/messages.
func (h *ChatHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req models.PostMessageRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	appended := conv.HandleText(r.Context(), req.Text)

	writeJSONResponse(w, http.StatusOK, models.TurnResponse{
		SessionID: conv.ID(),
		State:     conv.State(),
		Messages:  appended,
	})
}

// PostAction handles POST /v1/chat/sessions/{sessionId}/actions.
func (h *ChatHandler) PostAction(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req models.PostActionRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	appended, err := conv.HandleAction(r.Context(), models.ActionTag(req.Action))
	if err != nil {
		slog.Warn("Rejected chat action", "session_id", conv.ID(), "action", req.Action, "error", err)
		writeErrorResponse(w, http.StatusBadRequest, "invalid_action", err.Error(), nil)
		return
	}

	writeJSONResponse(w, http.StatusOK, models.TurnResponse{
		SessionID: conv.ID(),
		State:     conv.State(),
		Messages:  appended,
	})
}

// PostPhoto handles POST /v1/chat/sessions/{sessionId}/photos.
func (h *ChatHandler) PostPhoto(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req models.PostPhotoRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	image, err := base64.StdEncoding.DecodeString(req.ImageData)
	if err != nil {
		writeErrorResponse(w, http.StatusBadRequest, "bad_request", "imageData is not valid base64", nil)
		return
	}

	appended := conv.HandlePhoto(r.Context(), image, req.MimeType)

	writeJSONResponse(w, http.StatusOK, models.TurnResponse{
		SessionID: conv.ID(),
		State:     conv.State(),
		Messages:  appended,
	})
}

// lookup resolves the session from the route, writing a 404 when it is
// unknown or expired.
func (h *ChatHandler) lookup(w http.ResponseWriter, r *http.Request) (*chat.Conversation, bool) {
	sessionID := mux.Vars(r)["sessionId"]
	conv, ok := h.sessions.Get(sessionID)
	if !ok {
		writeErrorResponse(w, http.StatusNotFound, "not_found", "Unknown or expired session", nil)
		return nil, false
	}
	return conv, true
}
