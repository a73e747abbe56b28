package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/sermonhub/internal/admin"
	"github.com/hitoshi/sermonhub/internal/auth"
	"github.com/hitoshi/sermonhub/internal/intake"
	"github.com/hitoshi/sermonhub/internal/middleware"
	"github.com/hitoshi/sermonhub/internal/model"
	"github.com/hitoshi/sermonhub/internal/viewer"
)

// --- モック定義 ---

// mockSermonService はSermonServiceInterfaceのモック実装。
type mockSermonService struct {
	listFn   func(ctx context.Context, churchID string) ([]sermonResponse, error)
	createFn func(ctx context.Context, churchID string, input model.SermonInput) ([]sermonResponse, error)
	updateFn func(ctx context.Context, churchID, id string, update model.SermonUpdate) ([]sermonResponse, error)
	deleteFn func(ctx context.Context, churchID, id string) ([]sermonResponse, error)
	statsFn  func(ctx context.Context, churchID string) (*dashboardResponse, error)
}

func (m *mockSermonService) List(ctx context.Context, churchID string) ([]sermonResponse, error) {
	if m.listFn != nil {
		return m.listFn(ctx, churchID)
	}
	return []sermonResponse{}, nil
}

func (m *mockSermonService) Create(ctx context.Context, churchID string, input model.SermonInput) ([]sermonResponse, error) {
	if m.createFn != nil {
		return m.createFn(ctx, churchID, input)
	}
	return []sermonResponse{}, nil
}

func (m *mockSermonService) Update(ctx context.Context, churchID, id string, update model.SermonUpdate) ([]sermonResponse, error) {
	if m.updateFn != nil {
		return m.updateFn(ctx, churchID, id, update)
	}
	return []sermonResponse{}, nil
}

func (m *mockSermonService) Delete(ctx context.Context, churchID, id string) ([]sermonResponse, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, churchID, id)
	}
	return []sermonResponse{}, nil
}

func (m *mockSermonService) Stats(ctx context.Context, churchID string) (*dashboardResponse, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx, churchID)
	}
	return &dashboardResponse{}, nil
}

// mockIntakeService はIntakeServiceInterfaceのモック実装。
type mockIntakeService struct {
	submitFn func(ctx context.Context, church *model.Church, form intake.Form) (*intake.Payload, error)
}

func (m *mockIntakeService) Submit(ctx context.Context, church *model.Church, form intake.Form) (*intake.Payload, error) {
	return m.submitFn(ctx, church, form)
}

// mockContentService はContentServiceInterfaceのモック実装。
type mockContentService struct {
	sermonContentFn func(ctx context.Context, churchID, sermonID string) (*viewer.RenderedContent, error)
}

func (m *mockContentService) SermonContent(ctx context.Context, churchID, sermonID string) (*viewer.RenderedContent, error) {
	return m.sermonContentFn(ctx, churchID, sermonID)
}

// mockAdminService はAdminServiceInterfaceのモック実装。
type mockAdminService struct {
	listFn      func(ctx context.Context) ([]churchResponse, error)
	getFn       func(ctx context.Context, id string) (*churchResponse, error)
	createFn    func(ctx context.Context, input admin.ChurchInput) ([]churchResponse, error)
	updateFn    func(ctx context.Context, id string, update admin.ChurchUpdate) ([]churchResponse, error)
	deleteFn    func(ctx context.Context, id string) ([]churchResponse, error)
	sendResetFn func(ctx context.Context, churchID string) error
}

func (m *mockAdminService) List(ctx context.Context) ([]churchResponse, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return []churchResponse{}, nil
}

func (m *mockAdminService) Get(ctx context.Context, id string) (*churchResponse, error) {
	return m.getFn(ctx, id)
}

func (m *mockAdminService) Create(ctx context.Context, input admin.ChurchInput) ([]churchResponse, error) {
	return m.createFn(ctx, input)
}

func (m *mockAdminService) Update(ctx context.Context, id string, update admin.ChurchUpdate) ([]churchResponse, error) {
	return m.updateFn(ctx, id, update)
}

func (m *mockAdminService) Delete(ctx context.Context, id string) ([]churchResponse, error) {
	return m.deleteFn(ctx, id)
}

func (m *mockAdminService) SendPasswordReset(ctx context.Context, churchID string) error {
	return m.sendResetFn(ctx, churchID)
}

// mockAuthService はAuthServiceInterfaceのモック実装。
type mockAuthService struct {
	refreshFn      func(ctx context.Context, sessionID string) (*model.Session, error)
	resetFn        func(ctx context.Context, email string) error
	confirmResetFn func(ctx context.Context, token, newPassword string) error
}

func (m *mockAuthService) RefreshSession(ctx context.Context, sessionID string) (*model.Session, error) {
	return m.refreshFn(ctx, sessionID)
}

func (m *mockAuthService) ResetPasswordForEmail(ctx context.Context, email string) error {
	return m.resetFn(ctx, email)
}

func (m *mockAuthService) ConfirmPasswordReset(ctx context.Context, token, newPassword string) error {
	return m.confirmResetFn(ctx, token, newPassword)
}

// fakeSessionClient はresolver.SessionStoreのフェイク。
// サインイン・サインアウトで登録済みの購読者に同期的に通知する。
type fakeSessionClient struct {
	mu        sync.Mutex
	session   *model.Session
	subs      map[int]func(auth.Event)
	nextID    int
	signInErr error
	signedOut bool
}

func newFakeSessionClient(current *model.Session) *fakeSessionClient {
	return &fakeSessionClient{session: current, subs: make(map[int]func(auth.Event))}
}

func (f *fakeSessionClient) GetSession(ctx context.Context) (*model.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.session, nil
}

func (f *fakeSessionClient) OnAuthStateChange(cb func(auth.Event)) func() {
	f.mu.Lock()
	id := f.nextID
	f.nextID++
	f.subs[id] = cb
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		delete(f.subs, id)
		f.mu.Unlock()
	}
}

func (f *fakeSessionClient) emit(ev auth.Event) {
	f.mu.Lock()
	cbs := make([]func(auth.Event), 0, len(f.subs))
	for _, cb := range f.subs {
		cbs = append(cbs, cb)
	}
	f.mu.Unlock()
	for _, cb := range cbs {
		cb(ev)
	}
}

func (f *fakeSessionClient) signIn(email string) (*model.Session, error) {
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	session := &model.Session{
		ID:       "new-session",
		UserID:   "user-1",
		Identity: &model.Identity{ID: "user-1", Email: email},
	}
	f.mu.Lock()
	f.session = session
	f.mu.Unlock()
	f.emit(auth.Event{Type: auth.EventSignedIn, Session: session})
	return session, nil
}

func (f *fakeSessionClient) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error) {
	return f.signIn(email)
}

func (f *fakeSessionClient) SignUp(ctx context.Context, email, password string) (*model.Session, error) {
	return f.signIn(email)
}

func (f *fakeSessionClient) SignOut(ctx context.Context) error {
	f.mu.Lock()
	f.session = nil
	f.signedOut = true
	f.mu.Unlock()
	f.emit(auth.Event{Type: auth.EventSignedOut})
	return nil
}

// fakeDirectory はresolver.Directoryのフェイク。
type fakeDirectory struct {
	rows map[string][]*model.Membership
	err  error
}

func (d *fakeDirectory) FindByUserID(ctx context.Context, userID string) ([]*model.Membership, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.rows[userID], nil
}

// --- テストヘルパー ---

func strPtr(s string) *string { return &s }

func testChurch() *model.Church {
	return &model.Church{
		ID:            "church-1",
		Name:          "Grace Chapel",
		Slug:          "grace-chapel",
		ContactEmail:  "office@grace.example.org",
		NotionPageURL: strPtr("https://www.notion.so/grace/Content-Hub-abc123"),
	}
}

// withMembership はテスト用にリクエストコンテキストにセッションと所属を注入するヘルパー。
func withMembership(r *http.Request, role model.Role, church *model.Church) *http.Request {
	ctx := middleware.ContextWithSession(r.Context(), &model.Session{ID: "s-1", UserID: "user-1"})
	ctx = middleware.ContextWithMembership(ctx, &model.Membership{
		ID:       "m-1",
		ChurchID: church.ID,
		UserID:   "user-1",
		Role:     role,
		Church:   church,
	})
	return r.WithContext(ctx)
}

// パスパラメータ用のID。
const (
	testSermonID      = "7b0f2c1e-3d4a-4c5b-9e6f-0a1b2c3d4e5f"
	testMissingID     = "00000000-0000-4000-8000-000000000009"
	testAdminChurchID = "3f6d8a2b-1c4e-4f5a-8b7c-9d0e1f2a3b4c"
)

// withChiURLParam はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) middleware.ErrorResponseBody {
	t.Helper()
	var result middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}
