package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mesa-digital/api/internal/database"
)

const maxCommentLength = 1000

// FeedbackStore defines the database methods needed by feedback handlers.
// Satisfied by *database.Queries; narrow interface for testability.
type FeedbackStore interface {
	ListFeedbacks(ctx context.Context) ([]database.Feedback, error)
	CreateFeedback(ctx context.Context, arg database.CreateFeedbackParams) (database.Feedback, error)
}

// FeedbackHandler handles customer feedback endpoints.
type FeedbackHandler struct {
	store FeedbackStore
}

// NewFeedbackHandler creates a new FeedbackHandler.
func NewFeedbackHandler(store FeedbackStore) *FeedbackHandler {
	return &FeedbackHandler{store: store}
}

// RegisterPublicRoutes registers the feedback list.
func (h *FeedbackHandler) RegisterPublicRoutes(r chi.Router) {
	r.Get("/feedbacks", h.List)
}

// RegisterCustomerRoutes registers feedback submission.
func (h *FeedbackHandler) RegisterCustomerRoutes(r chi.Router) {
	r.Post("/feedbacks", h.Create)
}

// --- Request / Response types ---

type feedbackRequest struct {
	TableNumber int32  `json:"tableNumber"`
	Rating      int32  `json:"rating"`
	Comment     string `json:"comment"`
}

type feedbackResponse struct {
	ID          int64     `json:"id"`
	TableNumber int32     `json:"tableNumber"`
	Rating      int32     `json:"rating"`
	Comment     *string   `json:"comment"`
	Timestamp   time.Time `json:"timestamp"`
}

func toFeedbackResponse(f database.Feedback) feedbackResponse {
	return feedbackResponse{
		ID:          f.ID,
		TableNumber: f.TableNumber,
		Rating:      f.Rating,
		Comment:     textPtr(f.Comment),
		Timestamp:   f.CreatedAt,
	}
}

// --- Handlers ---

// List returns all feedback, newest first.
func (h *FeedbackHandler) List(w http.ResponseWriter, r *http.Request) {
	feedbacks, err := h.store.ListFeedbacks(r.Context())
	if err != nil {
		internalError(w, "list feedbacks", err)
		return
	}

	resp := make([]feedbackResponse, len(feedbacks))
	for i, f := range feedbacks {
		resp[i] = toFeedbackResponse(f)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Create records a rating from a table.
func (h *FeedbackHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if req.Rating < 1 || req.Rating > 5 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "rating must be between 1 and 5"})
		return
	}
	if req.TableNumber <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "tableNumber is required"})
		return
	}
	comment := strings.TrimSpace(req.Comment)
	if len(comment) > maxCommentLength {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "comment is too long"})
		return
	}

	f, err := h.store.CreateFeedback(r.Context(), database.CreateFeedbackParams{
		TableNumber: req.TableNumber,
		Rating:      req.Rating,
		Comment:     database.Text(comment),
	})
	if err != nil {
		internalError(w, "create feedback", err)
		return
	}
	writeJSON(w, http.StatusCreated, toFeedbackResponse(f))
}
