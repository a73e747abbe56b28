package resolver

import (
	"context"
	"errors"
	"log/slog"

	"github.com/hitoshi/sermonhub/internal/metrics"
	"github.com/hitoshi/sermonhub/internal/model"
)

// errMultipleMemberships は1つのidentityに複数の所属がある場合のエラー。
var errMultipleMemberships = errors.New("multiple church records found for this account")

// Directory はテナントディレクトリの所属検索インターフェース。
type Directory interface {
	FindByUserID(ctx context.Context, userID string) ([]*model.Membership, error)
}

// MembershipResolver はidentityを高々1件の所属に解決する。
type MembershipResolver struct {
	directory Directory
	metrics   metrics.MetricsCollector
}

// NewMembershipResolver はMembershipResolverを生成する。
// directoryがnilの場合、すべての解決は設定欠如エラーになる。
func NewMembershipResolver(directory Directory, mc metrics.MetricsCollector) *MembershipResolver {
	if mc == nil {
		mc = metrics.Nop{}
	}
	return &MembershipResolver{directory: directory, metrics: mc}
}

// Resolve は所属を1回の検索で解決する。
//   - 1件: 所属を返す
//   - 0件: NotFound（"No church record found for this account"）
//   - それ以外の失敗（2件以上を含む）: TransportOrServer
func (m *MembershipResolver) Resolve(ctx context.Context, userID string) (*model.Membership, *model.APIError) {
	if m == nil || m.directory == nil {
		m.record(metrics.ResolutionUnconfigured)
		return nil, model.NewConfigurationMissingError("DATABASE_URL")
	}

	rows, err := m.directory.FindByUserID(ctx, userID)
	if err != nil {
		slog.Warn("membership lookup failed",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
		m.record(metrics.ResolutionError)
		return nil, model.NewUpstreamError(err)
	}

	switch len(rows) {
	case 0:
		m.record(metrics.ResolutionNotFound)
		return nil, model.NewNoChurchRecordError()
	case 1:
		m.record(metrics.ResolutionFound)
		return rows[0], nil
	default:
		slog.Warn("identity has multiple memberships", slog.String("user_id", userID))
		m.record(metrics.ResolutionError)
		return nil, model.NewUpstreamError(errMultipleMemberships)
	}
}

func (m *MembershipResolver) record(outcome string) {
	if m == nil || m.metrics == nil {
		return
	}
	m.metrics.RecordMembershipResolution(outcome)
}
