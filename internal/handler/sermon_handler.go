package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/sermonhub/internal/model"
)

// SermonServiceInterface は説教ハンドラーが必要とするサービスインターフェース。
// 変更操作はすべて最新の一覧を返す。
type SermonServiceInterface interface {
	List(ctx context.Context, churchID string) ([]sermonResponse, error)
	Create(ctx context.Context, churchID string, input model.SermonInput) ([]sermonResponse, error)
	Update(ctx context.Context, churchID, id string, update model.SermonUpdate) ([]sermonResponse, error)
	Delete(ctx context.Context, churchID, id string) ([]sermonResponse, error)
	Stats(ctx context.Context, churchID string) (*dashboardResponse, error)
}

// SermonHandler は説教管理のHTTPハンドラー。
// 対象の教会は常に解決済みの所属から決まる。
type SermonHandler struct {
	service SermonServiceInterface
}

// NewSermonHandler はSermonHandlerを生成する。
func NewSermonHandler(service SermonServiceInterface) *SermonHandler {
	return &SermonHandler{service: service}
}

// createSermonRequest は説教登録リクエストのボディ。
type createSermonRequest struct {
	Title       string  `json:"title"`
	SpeakerName string  `json:"speaker_name"`
	SermonDate  string  `json:"sermon_date"`
	YouTubeURL  string  `json:"youtube_url"`
	SeriesName  *string `json:"series_name"`
}

// updateSermonRequest は説教の部分更新リクエストのボディ。省略したフィールドは変更しない。
type updateSermonRequest struct {
	Title       *string `json:"title"`
	SpeakerName *string `json:"speaker_name"`
	SermonDate  *string `json:"sermon_date"`
	YouTubeURL  *string `json:"youtube_url"`
	SeriesName  *string `json:"series_name"`
}

type sermonListResponse struct {
	Sermons []sermonResponse `json:"sermons"`
}

// ListSermons は説教一覧を返す。
// GET /api/sermons
func (h *SermonHandler) ListSermons(w http.ResponseWriter, r *http.Request) {
	membership := membershipOrError(w, r)
	if membership == nil {
		return
	}

	sermons, err := h.service.List(r.Context(), membership.ChurchID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sermonListResponse{Sermons: sermons})
}

// CreateSermon は説教を登録する。
// POST /api/sermons
func (h *SermonHandler) CreateSermon(w http.ResponseWriter, r *http.Request) {
	membership := membershipOrError(w, r)
	if membership == nil {
		return
	}

	var req createSermonRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sermons, err := h.service.Create(r.Context(), membership.ChurchID, model.SermonInput{
		Title:       req.Title,
		SpeakerName: req.SpeakerName,
		SermonDate:  req.SermonDate,
		YouTubeURL:  req.YouTubeURL,
		SeriesName:  req.SeriesName,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sermonListResponse{Sermons: sermons})
}

// UpdateSermon は説教を部分更新する。
// PATCH /api/sermons/{id}
func (h *SermonHandler) UpdateSermon(w http.ResponseWriter, r *http.Request) {
	membership := membershipOrError(w, r)
	if membership == nil {
		return
	}

	id, ok := pathID(w, r, model.NewSermonNotFoundError)
	if !ok {
		return
	}

	var req updateSermonRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	sermons, err := h.service.Update(r.Context(), membership.ChurchID, id, model.SermonUpdate{
		Title:       req.Title,
		SpeakerName: req.SpeakerName,
		SermonDate:  req.SermonDate,
		YouTubeURL:  req.YouTubeURL,
		SeriesName:  req.SeriesName,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sermonListResponse{Sermons: sermons})
}

// DeleteSermon は説教を削除する。
// DELETE /api/sermons/{id}
func (h *SermonHandler) DeleteSermon(w http.ResponseWriter, r *http.Request) {
	membership := membershipOrError(w, r)
	if membership == nil {
		return
	}

	id, ok := pathID(w, r, model.NewSermonNotFoundError)
	if !ok {
		return
	}

	sermons, err := h.service.Delete(r.Context(), membership.ChurchID, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sermonListResponse{Sermons: sermons})
}

// Dashboard はダッシュボード集計を返す。
// GET /api/dashboard
func (h *SermonHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	membership := membershipOrError(w, r)
	if membership == nil {
		return
	}

	stats, err := h.service.Stats(r.Context(), membership.ChurchID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
