package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/sermonhub/internal/admin"
	"github.com/hitoshi/sermonhub/internal/model"
)

// AdminServiceInterface は管理コンソールが必要とするサービスインターフェース。
type AdminServiceInterface interface {
	List(ctx context.Context) ([]churchResponse, error)
	Get(ctx context.Context, id string) (*churchResponse, error)
	Create(ctx context.Context, input admin.ChurchInput) ([]churchResponse, error)
	Update(ctx context.Context, id string, update admin.ChurchUpdate) ([]churchResponse, error)
	Delete(ctx context.Context, id string) ([]churchResponse, error)
	SendPasswordReset(ctx context.Context, churchID string) error
}

// AdminHandler は教会（テナント）管理のHTTPハンドラー。RequireAdminの内側に置く。
type AdminHandler struct {
	service AdminServiceInterface
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(service AdminServiceInterface) *AdminHandler {
	return &AdminHandler{service: service}
}

// churchRequest は教会の登録・部分更新リクエストのボディ。
// 更新では省略したフィールドを変更しない。notion_page_urlに空文字を指定すると未設定に戻す。
type churchRequest struct {
	Name          *string `json:"name"`
	Slug          *string `json:"slug"`
	ContactEmail  *string `json:"contact_email"`
	NotionPageURL *string `json:"notion_page_url"`
}

type churchListResponse struct {
	Churches []churchResponse `json:"churches"`
}

// ListChurches は名前順の教会一覧を返す。
// GET /api/admin/churches
func (h *AdminHandler) ListChurches(w http.ResponseWriter, r *http.Request) {
	churches, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, churchListResponse{Churches: churches})
}

// GetChurch は教会を1件返す。
// GET /api/admin/churches/{id}
func (h *AdminHandler) GetChurch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, model.NewChurchNotFoundError)
	if !ok {
		return
	}

	church, err := h.service.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, church)
}

// CreateChurch は教会を登録する。
// POST /api/admin/churches
func (h *AdminHandler) CreateChurch(w http.ResponseWriter, r *http.Request) {
	var req churchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	churches, err := h.service.Create(r.Context(), admin.ChurchInput{
		Name:          deref(req.Name),
		Slug:          deref(req.Slug),
		ContactEmail:  deref(req.ContactEmail),
		NotionPageURL: req.NotionPageURL,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, churchListResponse{Churches: churches})
}

// UpdateChurch は教会を部分更新する。
// PATCH /api/admin/churches/{id}
func (h *AdminHandler) UpdateChurch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, model.NewChurchNotFoundError)
	if !ok {
		return
	}

	var req churchRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	churches, err := h.service.Update(r.Context(), id, admin.ChurchUpdate{
		Name:          req.Name,
		Slug:          req.Slug,
		ContactEmail:  req.ContactEmail,
		NotionPageURL: req.NotionPageURL,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, churchListResponse{Churches: churches})
}

// DeleteChurch は教会を削除する。所属と説教はデータベースの連鎖削除に任せる。
// DELETE /api/admin/churches/{id}
func (h *AdminHandler) DeleteChurch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, model.NewChurchNotFoundError)
	if !ok {
		return
	}

	churches, err := h.service.Delete(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, churchListResponse{Churches: churches})
}

// SendPasswordReset は教会の連絡先メールアドレスにパスワードリセットを送信する。
// POST /api/admin/churches/{id}/password-reset
func (h *AdminHandler) SendPasswordReset(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, model.NewChurchNotFoundError)
	if !ok {
		return
	}

	if err := h.service.SendPasswordReset(r.Context(), id); err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"message": "Password reset email sent",
	})
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
