package auth

import (
	"context"
	"sync"

	"github.com/hitoshi/sermonhub/internal/mail"
	"github.com/hitoshi/sermonhub/internal/model"
	"github.com/hitoshi/sermonhub/internal/repository"
)

// memoryIdentityRepo はテスト用のインメモリidentityリポジトリ。
type memoryIdentityRepo struct {
	mu        sync.Mutex
	byID      map[string]*model.Identity
	findErr   error
	createErr error
	updateErr error
}

func newMemoryIdentityRepo() *memoryIdentityRepo {
	return &memoryIdentityRepo{byID: make(map[string]*model.Identity)}
}

func (m *memoryIdentityRepo) FindByID(_ context.Context, id string) (*model.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	if identity, ok := m.byID[id]; ok {
		cp := *identity
		return &cp, nil
	}
	return nil, nil
}

func (m *memoryIdentityRepo) FindByEmail(_ context.Context, email string) (*model.Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	for _, identity := range m.byID {
		if identity.Email == email {
			cp := *identity
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memoryIdentityRepo) Create(_ context.Context, identity *model.Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	for _, existing := range m.byID {
		if existing.Email == identity.Email {
			return repository.ErrDuplicate
		}
	}
	cp := *identity
	m.byID[identity.ID] = &cp
	return nil
}

func (m *memoryIdentityRepo) UpdatePassword(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	identity, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	identity.PasswordHash = hash
	return nil
}

func (m *memoryIdentityRepo) UpdateMetadata(_ context.Context, id string, md model.IdentityMetadata) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	identity, ok := m.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	identity.Metadata = md
	return nil
}

// memorySessionRepo はテスト用のインメモリセッションリポジトリ。
type memorySessionRepo struct {
	mu         sync.Mutex
	sessions   map[string]*model.Session
	identities *memoryIdentityRepo
}

func newMemorySessionRepo(identities *memoryIdentityRepo) *memorySessionRepo {
	return &memorySessionRepo{sessions: make(map[string]*model.Session), identities: identities}
}

func (m *memorySessionRepo) Create(_ context.Context, session *model.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *session
	cp.Identity = nil
	m.sessions[session.ID] = &cp
	return nil
}

func (m *memorySessionRepo) FindByID(ctx context.Context, id string) (*model.Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, nil
	}
	cp := *s
	identity, err := m.identities.FindByID(ctx, s.UserID)
	if err != nil {
		return nil, err
	}
	cp.Identity = identity
	return &cp, nil
}

func (m *memorySessionRepo) DeleteByID(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *memorySessionRepo) DeleteByUserID(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.UserID == userID {
			delete(m.sessions, id)
		}
	}
	return nil
}

func (m *memorySessionRepo) DeleteExpired(_ context.Context) (int64, error) {
	return 0, nil
}

func (m *memorySessionRepo) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

type mockMailer struct {
	mu     sync.Mutex
	sent   []mail.Message
	sendFn func(ctx context.Context, msg mail.Message) error
}

func (m *mockMailer) Send(ctx context.Context, msg mail.Message) error {
	m.mu.Lock()
	m.sent = append(m.sent, msg)
	m.mu.Unlock()
	if m.sendFn != nil {
		return m.sendFn(ctx, msg)
	}
	return nil
}

// --- compile-time interface checks ---
var _ repository.IdentityRepository = (*memoryIdentityRepo)(nil)
var _ repository.SessionRepository = (*memorySessionRepo)(nil)
var _ mail.Sender = (*mockMailer)(nil)
