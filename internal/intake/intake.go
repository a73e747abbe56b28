// Package intake は説教メタデータを自動化ワークフローのWebhookへ中継する。
package intake

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/sermonhub/internal/metrics"
	"github.com/hitoshi/sermonhub/internal/model"
	"github.com/hitoshi/sermonhub/internal/security"
)

// TimestampLayout はペイロードのtimestamp形式（UTC、ミリ秒精度）。
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// maxDrainBytes はレスポンスボディを読み捨てる上限。
const maxDrainBytes = 64 * 1024

// Form は送信フォームの入力値。sermonTitleのみ任意。
type Form struct {
	SermonURL   string `json:"sermonUrl"`
	SermonDate  string `json:"sermonDate"`
	SpeakerName string `json:"speakerName"`
	SermonTitle string `json:"sermonTitle"`
}

// Payload はWebhookに送信するJSONボディ。
type Payload struct {
	ChurchID    string `json:"churchId"`
	ChurchName  string `json:"churchName"`
	SermonURL   string `json:"sermonUrl"`
	SermonDate  string `json:"sermonDate"`
	SpeakerName string `json:"speakerName"`
	SermonTitle string `json:"sermonTitle"`
	Timestamp   string `json:"timestamp"`
}

// Config はWebhook送信の設定。
type Config struct {
	WebhookURL string
	Timeout    time.Duration
	SSRFGuard  bool
}

// Service はフォーム入力を検証し、Webhookへ1回だけPOSTする。
type Service struct {
	webhookURL string
	client     *http.Client
	metrics    metrics.MetricsCollector
	now        func() time.Time
}

// NewService はServiceを生成する。
// WebhookURLが空の場合もエラーにはせず、Submitが設定欠如を返す。
// SSRFGuardが有効な場合は送信先を静的に検証し、safeurlのクライアントを使う。
func NewService(cfg Config, guard security.SSRFGuardService, mc metrics.MetricsCollector) (*Service, error) {
	if mc == nil {
		mc = metrics.Nop{}
	}
	s := &Service{
		webhookURL: cfg.WebhookURL,
		metrics:    mc,
		now:        time.Now,
	}
	if cfg.WebhookURL == "" {
		return s, nil
	}

	u, err := security.ParseHTTPURL(cfg.WebhookURL)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook URL: %w", err)
	}

	if cfg.SSRFGuard && guard != nil {
		if err := guard.ValidateURL(cfg.WebhookURL); err != nil {
			return nil, fmt.Errorf("webhook URL rejected by SSRF guard: %w", err)
		}
		s.client = guard.NewSafeClient(cfg.Timeout, security.URLPort(u))
	} else {
		s.client = &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	return s, nil
}

// Configured はWebhookの送信先が設定されているかを返す。
func (s *Service) Configured() bool {
	return s != nil && s.webhookURL != ""
}

// Validate は必須項目（URL、日付、説教者名）の存在と形式を検証する。
// 値そのものは変更しない。
func Validate(form Form) error {
	if strings.TrimSpace(form.SermonURL) == "" ||
		strings.TrimSpace(form.SermonDate) == "" ||
		strings.TrimSpace(form.SpeakerName) == "" {
		return model.NewValidationError("sermonUrl, sermonDate, speakerName", "Please fill in all required fields")
	}
	if !security.IsHTTPURL(form.SermonURL) {
		return model.NewValidationError("sermonUrl", "sermonUrl must be an absolute http or https URL")
	}
	if _, err := time.Parse(model.SermonDateLayout, form.SermonDate); err != nil {
		return model.NewValidationError("sermonDate", "sermonDate must be in YYYY-MM-DD format")
	}
	return nil
}

// Submit はフォームを検証し、教会情報を付与したペイロードをWebhookへPOSTする。
// 検証エラーと設定欠如の場合はHTTPリクエストを発行しない。
// 2xx以外の応答と通信失敗はどちらもIntakeRejectedになる。再送はしない。
func (s *Service) Submit(ctx context.Context, church *model.Church, form Form) (*Payload, error) {
	if err := Validate(form); err != nil {
		s.metrics.RecordIntakeSubmission(metrics.IntakeInvalid)
		return nil, err
	}
	if !s.Configured() {
		s.metrics.RecordIntakeSubmission(metrics.IntakeUnconfigured)
		return nil, model.NewConfigurationMissingError("WEBHOOK_URL")
	}
	if church == nil {
		s.metrics.RecordIntakeSubmission(metrics.IntakeUnconfigured)
		return nil, model.NewConfigurationMissingError("church")
	}

	payload := &Payload{
		ChurchID:    church.ID,
		ChurchName:  church.Name,
		SermonURL:   form.SermonURL,
		SermonDate:  form.SermonDate,
		SpeakerName: form.SpeakerName,
		SermonTitle: form.SermonTitle,
		Timestamp:   s.now().UTC().Format(TimestampLayout),
	}

	if err := s.post(ctx, payload); err != nil {
		slog.Error("sermon intake webhook failed",
			slog.String("church_id", church.ID),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordIntakeSubmission(metrics.IntakeRejected)
		return nil, model.NewIntakeRejectedError(err)
	}

	slog.Info("sermon submitted to automation workflow",
		slog.String("church_id", church.ID),
		slog.String("sermon_date", payload.SermonDate),
	)
	s.metrics.RecordIntakeSubmission(metrics.IntakeAccepted)
	return payload, nil
}

func (s *Service) post(ctx context.Context, payload *Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.client.Do(req)
	s.metrics.RecordWebhookLatency(time.Since(start))
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	s.metrics.RecordWebhookStatus(resp.StatusCode)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}
