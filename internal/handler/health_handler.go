package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// HealthChecker はテナントディレクトリへの疎通確認インターフェース。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

type healthResponse struct {
	Status    string `json:"status"`
	Directory string `json:"directory"`
}

// NewHealthHandler はヘルスチェックのハンドラーを返す。
// ディレクトリが未設定でもプロセスは稼働中として200を返す。疎通に失敗した場合は503。
// GET /health
func NewHealthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker == nil {
			writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Directory: "unconfigured"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := checker.PingContext(ctx); err != nil {
			slog.Error("health check failed", slog.String("error", err.Error()))
			writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Directory: "unreachable"})
			return
		}
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Directory: "ok"})
	}
}
