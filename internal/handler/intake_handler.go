package handler

import (
	"context"
	"net/http"

	"github.com/hitoshi/sermonhub/internal/intake"
	"github.com/hitoshi/sermonhub/internal/model"
)

// IntakeSubmittedMessage は送信受付時の表示メッセージ。
const IntakeSubmittedMessage = "Your sermon has been submitted and your content will be available shortly!"

// IntakeServiceInterface は説教送信ハンドラーが必要とするサービスインターフェース。
type IntakeServiceInterface interface {
	Submit(ctx context.Context, church *model.Church, form intake.Form) (*intake.Payload, error)
}

// IntakeHandler は説教送信（Webhook中継）のHTTPハンドラー。
type IntakeHandler struct {
	service IntakeServiceInterface
}

// NewIntakeHandler はIntakeHandlerを生成する。
func NewIntakeHandler(service IntakeServiceInterface) *IntakeHandler {
	return &IntakeHandler{service: service}
}

type intakeResponse struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Submit は説教フォームを検証し、所属教会の情報を付けてWebhookに1回だけ送信する。
// POST /api/intake
func (h *IntakeHandler) Submit(w http.ResponseWriter, r *http.Request) {
	membership := membershipOrError(w, r)
	if membership == nil {
		return
	}

	var form intake.Form
	if !decodeJSON(w, r, &form) {
		return
	}
	if h.service == nil {
		handleServiceError(w, model.NewConfigurationMissingError("WEBHOOK_URL"))
		return
	}

	payload, err := h.service.Submit(r.Context(), membership.Church, form)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, intakeResponse{
		Message:   IntakeSubmittedMessage,
		Timestamp: payload.Timestamp,
	})
}
