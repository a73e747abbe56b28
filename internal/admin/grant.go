package admin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/sermonhub/internal/auth"
	"github.com/hitoshi/sermonhub/internal/model"
	"github.com/hitoshi/sermonhub/internal/repository"
)

// ErrNothingToGrant は付与内容が指定されていないことを表す。
var ErrNothingToGrant = errors.New("either a church or the admin flag must be specified")

// GrantRequest はidentityへの所属・管理者フラグの付与内容。
type GrantRequest struct {
	Email      string
	ChurchSlug string
	Role       model.Role
	// Adminがnilの場合、管理者フラグは変更しない。
	Admin *bool
}

// GrantResult は付与後の状態。
type GrantResult struct {
	Identity   *model.Identity
	Membership *model.Membership
}

// Granter はアプリ外（CLI）からの所属作成を行う。
// identityあたりの所属は常に1件に置き換える。
type Granter struct {
	identities repository.IdentityRepository
	churches   repository.ChurchRepository
	members    repository.MembershipRepository
	now        func() time.Time
}

// NewGranter はGranterを生成する。
func NewGranter(
	identities repository.IdentityRepository,
	churches repository.ChurchRepository,
	members repository.MembershipRepository,
) *Granter {
	return &Granter{identities: identities, churches: churches, members: members, now: time.Now}
}

// Grant は所属の作成（置き換え）と管理者フラグの設定を行う。
func (g *Granter) Grant(ctx context.Context, req GrantRequest) (*GrantResult, error) {
	if req.ChurchSlug == "" && req.Admin == nil {
		return nil, ErrNothingToGrant
	}

	email := auth.NormalizeEmail(req.Email)
	identity, err := g.identities.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}
	if identity == nil {
		return nil, fmt.Errorf("no account registered for %s", email)
	}

	result := &GrantResult{Identity: identity}

	if req.ChurchSlug != "" {
		role := req.Role
		if role == "" {
			role = model.RoleViewer
		}
		if !role.Valid() {
			return nil, fmt.Errorf("invalid role %q (admin, editor or viewer)", role)
		}

		church, err := g.churches.FindBySlug(ctx, req.ChurchSlug)
		if err != nil {
			return nil, fmt.Errorf("failed to find church: %w", err)
		}
		if church == nil {
			return nil, model.NewChurchNotFoundError(req.ChurchSlug)
		}

		membership := &model.Membership{
			ID:        uuid.New().String(),
			ChurchID:  church.ID,
			UserID:    identity.ID,
			Role:      role,
			CreatedAt: g.now().UTC(),
			Church:    church,
		}
		if err := g.members.ReplaceForUser(ctx, membership); err != nil {
			return nil, fmt.Errorf("failed to replace membership: %w", err)
		}
		result.Membership = membership

		slog.Info("membership granted",
			slog.String("user_id", identity.ID),
			slog.String("church_id", church.ID),
			slog.String("role", string(role)),
		)
	}

	if req.Admin != nil && identity.Metadata.IsAdmin != *req.Admin {
		metadata := identity.Metadata
		metadata.IsAdmin = *req.Admin
		if err := g.identities.UpdateMetadata(ctx, identity.ID, metadata); err != nil {
			return nil, fmt.Errorf("failed to update metadata: %w", err)
		}
		identity.Metadata = metadata

		slog.Info("admin flag updated",
			slog.String("user_id", identity.ID),
			slog.Bool("is_admin", metadata.IsAdmin),
		)
	}

	return result, nil
}
