package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/sermonhub/internal/model"
	"github.com/hitoshi/sermonhub/internal/viewer"
)

// ContentServiceInterface は生成コンテンツの表示に必要なサービスインターフェース。
type ContentServiceInterface interface {
	SermonContent(ctx context.Context, churchID, sermonID string) (*viewer.RenderedContent, error)
}

// ContentHandler はコンテンツハブの埋め込みと生成コンテンツのHTTPハンドラー。
type ContentHandler struct {
	service ContentServiceInterface
}

// NewContentHandler はContentHandlerを生成する。
func NewContentHandler(service ContentServiceInterface) *ContentHandler {
	return &ContentHandler{service: service}
}

// Embed は所属教会のコンテンツハブの表示指示を返す。
// notion_page_urlが未設定の場合はプレースホルダーを返す。
// GET /api/content
func (h *ContentHandler) Embed(w http.ResponseWriter, r *http.Request) {
	membership := membershipOrError(w, r)
	if membership == nil {
		return
	}

	embed := viewer.EmbedFor(membership.Church)
	if embed.FrameSource != "" {
		w.Header().Set("Content-Security-Policy", "frame-src "+embed.FrameSource)
	}
	writeJSON(w, http.StatusOK, embed)
}

// SermonContent は説教の生成コンテンツをHTMLで返す。
// If-None-MatchがETagに一致する場合は304を返す。
// GET /api/sermons/{id}/content
func (h *ContentHandler) SermonContent(w http.ResponseWriter, r *http.Request) {
	membership := membershipOrError(w, r)
	if membership == nil {
		return
	}

	id, ok := pathID(w, r, model.NewSermonNotFoundError)
	if !ok {
		return
	}

	content, err := h.service.SermonContent(r.Context(), membership.ChurchID, id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("ETag", content.ETag)
	w.Header().Set("Cache-Control", "private, no-cache")
	if viewer.ETagMatches(r.Header.Get("If-None-Match"), content.ETag) {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, http.StatusOK, content)
}
