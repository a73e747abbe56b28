package handler

import (
	"context"
	"time"

	"github.com/hitoshi/sermonhub/internal/admin"
	"github.com/hitoshi/sermonhub/internal/model"
	"github.com/hitoshi/sermonhub/internal/sermon"
)

// sermonResponse は説教のAPIレスポンス。
type sermonResponse struct {
	ID               string    `json:"id"`
	ChurchID         string    `json:"church_id"`
	Title            string    `json:"title"`
	SpeakerName      string    `json:"speaker_name"`
	SermonDate       string    `json:"sermon_date"`
	YouTubeURL       string    `json:"youtube_url"`
	SeriesName       *string   `json:"series_name"`
	ProcessingStatus *string   `json:"processing_status"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// dashboardResponse はダッシュボード集計のAPIレスポンス。
type dashboardResponse struct {
	Total       int              `json:"total"`
	ThisMonth   int              `json:"this_month"`
	Processed   int              `json:"processed"`
	SuccessRate int              `json:"success_rate"`
	Recent      []sermonResponse `json:"recent"`
}

// churchResponse は教会のAPIレスポンス。
type churchResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Slug          string    `json:"slug"`
	ContactEmail  string    `json:"contact_email"`
	NotionPageURL *string   `json:"notion_page_url"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// SermonServiceAdapter は sermon.Service を SermonServiceInterface に適合させるアダプタ。
type SermonServiceAdapter struct {
	svc *sermon.Service
}

// NewSermonServiceAdapter はSermonServiceAdapterを生成する。
func NewSermonServiceAdapter(svc *sermon.Service) *SermonServiceAdapter {
	return &SermonServiceAdapter{svc: svc}
}

// List は教会の説教一覧をhandlerレスポンス型で返す。
func (a *SermonServiceAdapter) List(ctx context.Context, churchID string) ([]sermonResponse, error) {
	return toSermonResponses(a.svc.List(ctx, churchID))
}

// Create は説教を登録し、最新の一覧を返す。
func (a *SermonServiceAdapter) Create(ctx context.Context, churchID string, input model.SermonInput) ([]sermonResponse, error) {
	return toSermonResponses(a.svc.Create(ctx, churchID, input))
}

// Update は説教を部分更新し、最新の一覧を返す。
func (a *SermonServiceAdapter) Update(ctx context.Context, churchID, id string, update model.SermonUpdate) ([]sermonResponse, error) {
	return toSermonResponses(a.svc.Update(ctx, churchID, id, update))
}

// Delete は説教を削除し、最新の一覧を返す。
func (a *SermonServiceAdapter) Delete(ctx context.Context, churchID, id string) ([]sermonResponse, error) {
	return toSermonResponses(a.svc.Delete(ctx, churchID, id))
}

// Stats はダッシュボード集計をhandlerレスポンス型で返す。
func (a *SermonServiceAdapter) Stats(ctx context.Context, churchID string) (*dashboardResponse, error) {
	st, err := a.svc.Stats(ctx, churchID)
	if err != nil {
		return nil, err
	}
	recent, _ := toSermonResponses(st.Recent, nil)
	return &dashboardResponse{
		Total:       st.Total,
		ThisMonth:   st.ThisMonth,
		Processed:   st.Processed,
		SuccessRate: st.SuccessRate,
		Recent:      recent,
	}, nil
}

// AdminServiceAdapter は admin.Service を AdminServiceInterface に適合させるアダプタ。
type AdminServiceAdapter struct {
	svc *admin.Service
}

// NewAdminServiceAdapter はAdminServiceAdapterを生成する。
func NewAdminServiceAdapter(svc *admin.Service) *AdminServiceAdapter {
	return &AdminServiceAdapter{svc: svc}
}

// List は名前順の教会一覧を返す。
func (a *AdminServiceAdapter) List(ctx context.Context) ([]churchResponse, error) {
	return toChurchResponses(a.svc.List(ctx))
}

// Get は教会を1件返す。
func (a *AdminServiceAdapter) Get(ctx context.Context, id string) (*churchResponse, error) {
	church, err := a.svc.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	resp := toChurchResponse(church)
	return &resp, nil
}

// Create は教会を登録し、最新の一覧を返す。
func (a *AdminServiceAdapter) Create(ctx context.Context, input admin.ChurchInput) ([]churchResponse, error) {
	return toChurchResponses(a.svc.Create(ctx, input))
}

// Update は教会を部分更新し、最新の一覧を返す。
func (a *AdminServiceAdapter) Update(ctx context.Context, id string, update admin.ChurchUpdate) ([]churchResponse, error) {
	return toChurchResponses(a.svc.Update(ctx, id, update))
}

// Delete は教会を削除し、最新の一覧を返す。
func (a *AdminServiceAdapter) Delete(ctx context.Context, id string) ([]churchResponse, error) {
	return toChurchResponses(a.svc.Delete(ctx, id))
}

// SendPasswordReset は教会の連絡先にパスワードリセットを送信する。
func (a *AdminServiceAdapter) SendPasswordReset(ctx context.Context, churchID string) error {
	return a.svc.SendPasswordReset(ctx, churchID)
}

// toSermonResponses はサービスの戻り値をそのまま受け取り、レスポンス型に変換する。
func toSermonResponses(sermons []*model.Sermon, err error) ([]sermonResponse, error) {
	if err != nil {
		return nil, err
	}
	results := make([]sermonResponse, len(sermons))
	for i, s := range sermons {
		results[i] = toSermonResponse(s)
	}
	return results, nil
}

func toSermonResponse(s *model.Sermon) sermonResponse {
	resp := sermonResponse{
		ID:          s.ID,
		ChurchID:    s.ChurchID,
		Title:       s.Title,
		SpeakerName: s.SpeakerName,
		SermonDate:  s.SermonDate,
		YouTubeURL:  s.YouTubeURL,
		SeriesName:  s.SeriesName,
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
	if s.Content != nil {
		status := string(s.Content.ProcessingStatus)
		resp.ProcessingStatus = &status
	}
	return resp
}

func toChurchResponses(churches []*model.Church, err error) ([]churchResponse, error) {
	if err != nil {
		return nil, err
	}
	results := make([]churchResponse, len(churches))
	for i, c := range churches {
		results[i] = toChurchResponse(c)
	}
	return results, nil
}

func toChurchResponse(c *model.Church) churchResponse {
	return churchResponse{
		ID:            c.ID,
		Name:          c.Name,
		Slug:          c.Slug,
		ContactEmail:  c.ContactEmail,
		NotionPageURL: c.NotionPageURL,
		CreatedAt:     c.CreatedAt,
		UpdatedAt:     c.UpdatedAt,
	}
}
