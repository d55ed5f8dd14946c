package artifact

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lumehealth/lume/backend/internal/service/storage"
	"github.com/lumehealth/lume/backend/pkg/utils"
)

// maxUploadBytes bounds one recording plus its analysis payload.
const maxUploadBytes = 64 << 20

// defaultURLTTL is how long playback links stay valid unless the client
// asks for a different window.
const defaultURLTTL = 15 * time.Minute

// Handler exposes session artifact storage over HTTP.
type Handler struct {
	sessions *storage.Sessions
}

// New creates the artifact handler.
func New(sessions *storage.Sessions) *Handler {
	return &Handler{sessions: sessions}
}

// RegisterRoutes registers artifact-related routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/sessions/{userID}/artifacts", h.handleUpload)
	r.Get("/sessions/{userID}/artifacts", h.handleList)
	r.Post("/sessions/urls", h.handleSignedURLs)
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to parse multipart form: "+err.Error())
		return
	}
	if r.MultipartForm != nil {
		defer r.MultipartForm.RemoveAll()
	}

	video, videoHeader, err := r.FormFile("video")
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "video file is required")
		return
	}
	defer video.Close()

	videoData, err := io.ReadAll(video)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, "failed to read video upload")
		return
	}

	resultsData, err := readResults(r)
	if err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	taskType := strings.TrimSpace(r.FormValue("taskType"))
	if taskType == "" {
		utils.RespondError(w, http.StatusBadRequest, "taskType is required")
		return
	}

	ts := time.Now().UTC()
	if raw := strings.TrimSpace(r.FormValue("timestamp")); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			utils.RespondError(w, http.StatusBadRequest, "timestamp must be RFC3339")
			return
		}
		ts = parsed.UTC()
	}

	ext := videoExt(videoHeader.Filename)

	videoKey, resultsKey, err := h.sessions.UploadSession(r.Context(), videoData, resultsData, userID, ts, taskType, ext)
	if err != nil {
		log.Printf("[artifact] upload failed user=%s: %v", userID, err)
		utils.RespondAppError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusCreated, map[string]string{
		"videoKey":   videoKey,
		"resultsKey": resultsKey,
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var max int32
	if raw := r.URL.Query().Get("max"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || parsed < 1 {
			utils.RespondError(w, http.StatusBadRequest, "max must be a positive integer")
			return
		}
		max = int32(parsed)
	}

	entries, err := h.sessions.ListSessions(r.Context(), userID, max)
	if err != nil {
		log.Printf("[artifact] list failed user=%s: %v", userID, err)
		utils.RespondAppError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, map[string]any{"sessions": entries})
}

func (h *Handler) handleSignedURLs(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		VideoKey   string `json:"videoKey"`
		ResultsKey string `json:"resultsKey"`
		TTLSeconds int    `json:"ttlSeconds"`
	}

	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ttl := defaultURLTTL
	if payload.TTLSeconds > 0 {
		ttl = time.Duration(payload.TTLSeconds) * time.Second
	}

	urls, err := h.sessions.SignedSessionURLs(r.Context(), payload.VideoKey, payload.ResultsKey, ttl)
	if err != nil {
		log.Printf("[artifact] signed urls failed: %v", err)
		utils.RespondAppError(w, err)
		return
	}

	utils.RespondJSON(w, http.StatusOK, urls)
}

// readResults accepts the analysis payload either as an uploaded file or as
// an inline form field.
func readResults(r *http.Request) ([]byte, error) {
	if file, _, err := r.FormFile("results"); err == nil {
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			return nil, errInvalidResults
		}
		return data, nil
	}

	if raw := r.FormValue("results"); raw != "" {
		return []byte(raw), nil
	}
	return nil, errInvalidResults
}

var errInvalidResults = errors.New("results payload is required")

func videoExt(filename string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if ext == "" {
		return "webm"
	}
	return ext
}
