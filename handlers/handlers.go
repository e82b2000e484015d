package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/syeo66/cadence/errors"
	"github.com/syeo66/cadence/features"
	"github.com/syeo66/cadence/hybrid"
	"github.com/syeo66/cadence/middleware"
	"github.com/syeo66/cadence/models"
	"github.com/syeo66/cadence/recommend"
)

const (
	MaxIDLength   = 255
	MaxBodyBytes  = 8 << 20
	MaxWeightsLen = 200
)

type Handler struct {
	service *recommend.Service
	logger  *logrus.Logger
}

func New(service *recommend.Service, logger *logrus.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts the API routes on r.
func (h *Handler) Register(r *mux.Router) {
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/users/{userID}/recommendations", h.HandleRecommendations).Methods(http.MethodGet)
	api.HandleFunc("/songs", h.HandleImportSongs).Methods(http.MethodPost)
	api.HandleFunc("/songs/complete", h.HandleCompleteSongs).Methods(http.MethodPost)
	api.HandleFunc("/songs/{songID}/similar", h.HandleSimilarSongs).Methods(http.MethodGet)
	api.HandleFunc("/events", h.HandleRecordEvent).Methods(http.MethodPost)
	api.HandleFunc("/predictor/status", h.HandlePredictorStatus).Methods(http.MethodGet)
	api.HandleFunc("/predictor/refresh", h.HandlePredictorRefresh).Methods(http.MethodPost)
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func requestValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// ValidateID checks a path or body identifier.
func ValidateID(field, id string) error {
	if id == "" {
		return errors.ErrMissingParameter.WithContext("parameter", field)
	}
	if len(id) > MaxIDLength {
		return errors.ErrInvalidInput.
			WithContext("field", field).
			WithContext("length", len(id)).
			WithContext("max_length", MaxIDLength)
	}
	return nil
}

func (h *Handler) HandleRecommendations(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["userID"]
	if err := ValidateID("userId", userID); err != nil {
		h.writeError(w, r, err)
		return
	}
	query := r.URL.Query()

	limit, err := parseLimit(query.Get("limit"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	weights, err := ParseWeights(query.Get("weights"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	results, err := h.service.GetPersonalizedRecommendations(r.Context(), userID, recommend.Options{
		Limit:         limit,
		AlgorithmHint: query.Get("algorithm"),
		Weights:       weights,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if results == nil {
		results = []models.RecommendationResult{}
	}
	h.writeJSON(w, http.StatusOK, recommendationsResponse{UserID: userID, Results: results})
}

func (h *Handler) HandleSimilarSongs(w http.ResponseWriter, r *http.Request) {
	songID := mux.Vars(r)["songID"]
	if err := ValidateID("songId", songID); err != nil {
		h.writeError(w, r, err)
		return
	}
	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	results, err := h.service.GetSimilarSongs(r.Context(), songID, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if results == nil {
		results = []models.RecommendationResult{}
	}
	h.writeJSON(w, http.StatusOK, similarResponse{SongID: songID, Results: results})
}

type completeRequest struct {
	SongID    string `json:"songId" validate:"max=255"`
	All       bool   `json:"all"`
	DryRun    bool   `json:"dryRun"`
	BatchSize int    `json:"batchSize" validate:"min=0,max=1000"`
}

func (h *Handler) HandleCompleteSongs(w http.ResponseWriter, r *http.Request) {
	var req completeRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	report, err := h.service.CompleteSongData(r.Context(),
		recommend.CompletionTarget{SongID: req.SongID, All: req.All},
		recommend.CompletionOptions{DryRun: req.DryRun, BatchSize: req.BatchSize})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, report)
}

type songRequest struct {
	ID       string             `json:"id" validate:"required,max=255"`
	Title    string             `json:"title" validate:"max=1000"`
	Artist   string             `json:"artist" validate:"max=1000"`
	Album    string             `json:"album" validate:"max=1000"`
	Year     int                `json:"year" validate:"min=0,max=3000"`
	Features map[string]float64 `json:"features"`
	Genres   []string           `json:"genres" validate:"max=50,dive,required,max=100"`
	Moods    []string           `json:"moods" validate:"max=50,dive,required,max=100"`
}

type importRequest struct {
	Songs []songRequest `json:"songs" validate:"required,min=1,dive"`
}

func (h *Handler) HandleImportSongs(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	songs := make([]models.Song, len(req.Songs))
	for i, s := range req.Songs {
		set, err := features.FromMap(s.Features)
		if err != nil {
			h.writeError(w, r, errors.Wrap(err, errors.CategoryValidation, "INVALID_FEATURE_VALUE", "invalid song features").
				WithContext("songId", s.ID))
			return
		}
		songs[i] = models.Song{
			ID:       s.ID,
			Title:    s.Title,
			Artist:   s.Artist,
			Album:    s.Album,
			Year:     s.Year,
			Features: set,
			Genres:   s.Genres,
			Moods:    s.Moods,
		}
	}

	n, err := h.service.ImportSongs(r.Context(), songs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"imported": n})
}

type eventRequest struct {
	UserID    string    `json:"userId" validate:"required,max=255"`
	SongID    string    `json:"songId" validate:"required,max=255"`
	Type      string    `json:"type" validate:"required"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

func (h *Handler) HandleRecordEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	eventType, err := models.ParseEventType(req.Type)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	stored, err := h.service.RecordEvent(r.Context(), models.PreferenceEvent{
		UserID:    req.UserID,
		SongID:    req.SongID,
		Type:      eventType,
		Value:     req.Value,
		Timestamp: req.Timestamp,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, stored)
}

func (h *Handler) HandlePredictorStatus(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.service.Predictor().Status())
}

// HandlePredictorRefresh rebuilds the feature model immediately.
func (h *Handler) HandlePredictorRefresh(w http.ResponseWriter, r *http.Request) {
	status, err := h.service.Predictor().Initialize(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, status)
}

type recommendationsResponse struct {
	UserID  string                        `json:"userId"`
	Results []models.RecommendationResult `json:"results"`
}

type similarResponse struct {
	SongID  string                        `json:"songId"`
	Results []models.RecommendationResult `json:"results"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, errors.ErrInvalidInput.WithContext("field", "limit").WithContext("value", middleware.SanitizeForLogging(raw))
	}
	return limit, nil
}

// ParseWeights reads "collaborative=0.4,content=0.3,..." into hybrid
// weights. Omitted sources get zero weight; an empty string means the
// configured defaults.
func ParseWeights(raw string) (*hybrid.Weights, error) {
	if raw == "" {
		return nil, nil
	}
	if len(raw) > MaxWeightsLen {
		return nil, errors.ErrInvalidWeights.WithContext("length", len(raw))
	}
	var w hybrid.Weights
	for _, part := range strings.Split(raw, ",") {
		name, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return nil, errors.ErrInvalidWeights.WithContext("entry", middleware.SanitizeForLogging(part))
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return nil, errors.ErrInvalidWeights.WithContext("entry", middleware.SanitizeForLogging(part))
		}
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "collaborative":
			w.Collaborative = f
		case "content":
			w.Content = f
		case "enhanced", "ai-enhanced":
			w.Enhanced = f
		case "popularity":
			w.Popularity = f
		default:
			return nil, errors.ErrInvalidWeights.WithContext("source", middleware.SanitizeForLogging(name))
		}
	}
	return &w, nil
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.Wrap(err, errors.CategoryValidation, "INVALID_INPUT", "invalid request body")
	}
	if err := requestValidator().Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			return errors.ErrValidationFailed.
				WithContext("field", fieldErrs[0].Namespace()).
				WithContext("rule", fieldErrs[0].Tag())
		}
		return errors.Wrap(err, errors.CategoryValidation, "VALIDATION_FAILED", "invalid request body")
	}
	return nil
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.IsMalformedInput(err):
		return http.StatusBadRequest
	case errors.Is(err, errors.ErrSongNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	entry := h.logger.WithError(err).WithFields(logrus.Fields{
		"endpoint":   middleware.SanitizeForLogging(r.URL.Path),
		"status":     status,
		"request_id": middleware.GetRequestID(r.Context()),
	})

	resp := errorResponse{Error: "Internal server error"}
	if status == http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Warn("Request rejected")
		resp.Error = err.Error()
		resp.Code = errors.GetErrorCode(err)
	}
	h.writeJSON(w, status, resp)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.WithError(err).Error("Failed to encode JSON response")
	}
}
