package admin

import (
	"context"
	"sort"

	"github.com/hitoshi/sermonhub/internal/model"
	"github.com/hitoshi/sermonhub/internal/repository"
)

// memoryChurchRepo はChurchRepositoryのインメモリ実装。
type memoryChurchRepo struct {
	churches map[string]*model.Church
	listErr  error
}

func newMemoryChurchRepo(churches ...*model.Church) *memoryChurchRepo {
	r := &memoryChurchRepo{churches: make(map[string]*model.Church)}
	for _, c := range churches {
		r.churches[c.ID] = c
	}
	return r
}

func (r *memoryChurchRepo) List(context.Context) ([]*model.Church, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	out := make([]*model.Church, 0, len(r.churches))
	for _, c := range r.churches {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memoryChurchRepo) FindByID(_ context.Context, id string) (*model.Church, error) {
	c, ok := r.churches[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (r *memoryChurchRepo) FindBySlug(_ context.Context, slug string) (*model.Church, error) {
	for _, c := range r.churches {
		if c.Slug == slug {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memoryChurchRepo) slugTaken(slug, exceptID string) bool {
	for _, c := range r.churches {
		if c.Slug == slug && c.ID != exceptID {
			return true
		}
	}
	return false
}

func (r *memoryChurchRepo) Create(_ context.Context, church *model.Church) error {
	if r.slugTaken(church.Slug, "") {
		return repository.ErrDuplicate
	}
	cp := *church
	r.churches[church.ID] = &cp
	return nil
}

func (r *memoryChurchRepo) Update(_ context.Context, church *model.Church) error {
	if _, ok := r.churches[church.ID]; !ok {
		return repository.ErrNotFound
	}
	if r.slugTaken(church.Slug, church.ID) {
		return repository.ErrDuplicate
	}
	cp := *church
	r.churches[church.ID] = &cp
	return nil
}

func (r *memoryChurchRepo) Delete(_ context.Context, id string) error {
	if _, ok := r.churches[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.churches, id)
	return nil
}

type mockResetter struct {
	resetFn func(ctx context.Context, email string) error
}

func (m *mockResetter) ResetPasswordForEmail(ctx context.Context, email string) error {
	return m.resetFn(ctx, email)
}

type mockIdentityRepo struct {
	repository.IdentityRepository
	findByEmailFn    func(ctx context.Context, email string) (*model.Identity, error)
	updateMetadataFn func(ctx context.Context, id string, metadata model.IdentityMetadata) error
}

func (m *mockIdentityRepo) FindByEmail(ctx context.Context, email string) (*model.Identity, error) {
	return m.findByEmailFn(ctx, email)
}

func (m *mockIdentityRepo) UpdateMetadata(ctx context.Context, id string, metadata model.IdentityMetadata) error {
	return m.updateMetadataFn(ctx, id, metadata)
}

type mockMembershipRepo struct {
	repository.MembershipRepository
	replaceFn func(ctx context.Context, membership *model.Membership) error
}

func (m *mockMembershipRepo) ReplaceForUser(ctx context.Context, membership *model.Membership) error {
	return m.replaceFn(ctx, membership)
}

var (
	_ repository.ChurchRepository     = (*memoryChurchRepo)(nil)
	_ repository.IdentityRepository   = (*mockIdentityRepo)(nil)
	_ repository.MembershipRepository = (*mockMembershipRepo)(nil)
)
