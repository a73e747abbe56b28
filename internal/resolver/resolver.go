// Package resolver はセッション変化に追従してidentityとテナント所属を解決する。
package resolver

import (
	"context"
	"sync"

	"github.com/hitoshi/sermonhub/internal/auth"
	"github.com/hitoshi/sermonhub/internal/model"
)

// SessionStore はクライアントから見たSession Storeの契約。
type SessionStore interface {
	GetSession(ctx context.Context) (*model.Session, error)
	OnAuthStateChange(cb func(auth.Event)) (unsubscribe func())
	SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error)
	SignUp(ctx context.Context, email, password string) (*model.Session, error)
	SignOut(ctx context.Context) error
}

// State は解決済みの認証・テナント状態のスナップショット。
type State struct {
	Identity   *model.Identity
	Membership *model.Membership
	IsLoading  bool
	FetchError *model.APIError
}

// FetchErrorMessage はFetchErrorのメッセージを返す。エラーがない場合は空文字。
func (s State) FetchErrorMessage() string {
	if s.FetchError == nil {
		return ""
	}
	return s.FetchError.Message
}

// Resolver は1クライアント分の認証・テナント状態を保持する。
// Startで購読を開始し、Closeで購読と実行中の解決を破棄する。
//
// 各セッション変化は世代番号を進め、解決結果は開始時の世代が
// 最新である場合にのみ反映される。
type Resolver struct {
	store   SessionStore
	members *MembershipResolver

	mu          sync.Mutex
	state       State
	generation  uint64
	started     bool
	closed      bool
	unsubscribe func()
	ctx         context.Context
	cancel      context.CancelFunc
	changed     chan struct{}
	changes     chan State
	wg          sync.WaitGroup
}

// New はResolverを生成する。storeがnilの場合、Startは設定欠如を報告する。
func New(store SessionStore, members *MembershipResolver) *Resolver {
	return &Resolver{
		store:   store,
		members: members,
		state:   State{IsLoading: true},
		changed: make(chan struct{}),
		changes: make(chan State, 1),
	}
}

// Start は変化通知を購読してから現在のセッションを1回取得する。
// 2回目以降の呼び出しは何もしない。
func (r *Resolver) Start(ctx context.Context) {
	r.mu.Lock()
	if r.started || r.closed {
		r.mu.Unlock()
		return
	}
	r.started = true
	r.ctx, r.cancel = context.WithCancel(ctx)

	if r.store == nil {
		r.state = State{IsLoading: false, FetchError: model.NewConfigurationMissingError("DATABASE_URL")}
		r.publishLocked()
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	unsubscribe := r.store.OnAuthStateChange(func(ev auth.Event) {
		r.handleSession(ev.Session)
	})

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		unsubscribe()
		return
	}
	r.unsubscribe = unsubscribe
	initial := r.generation
	r.mu.Unlock()

	// 取得中に変化通知が届いた場合、初回取得の結果は古いので捨てる
	session, err := r.store.GetSession(r.ctx)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.generation != initial {
		return
	}
	if err != nil {
		r.generation++
		r.state = State{IsLoading: false, FetchError: model.Normalize(err)}
		r.publishLocked()
		return
	}
	r.applySessionLocked(session)
}

// Close は購読を解除し、実行中の解決の完了を待つ。以降の結果は反映されない。
func (r *Resolver) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	unsubscribe := r.unsubscribe
	cancel := r.cancel
	r.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if cancel != nil {
		cancel()
	}
	r.wg.Wait()
}

// Snapshot は現在の状態のコピーを返す。
func (r *Resolver) Snapshot() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Changes は状態変化のスナップショットを配送するチャネルを返す。
// 受信が追いつかない場合は最新の状態のみが残る。
func (r *Resolver) Changes() <-chan State {
	return r.changes
}

// Settled はIsLoadingがfalseになるまで待ち、その時点の状態を返す。
func (r *Resolver) Settled(ctx context.Context) (State, error) {
	for {
		r.mu.Lock()
		st, changed := r.state, r.changed
		r.mu.Unlock()

		if !st.IsLoading {
			return st, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return st, ctx.Err()
		}
	}
}

// SignIn はSession Storeに委譲する。所属の解決は後続の変化通知で行われる。
func (r *Resolver) SignIn(ctx context.Context, email, password string) (*model.Session, error) {
	if r.store == nil {
		return nil, model.NewConfigurationMissingError("DATABASE_URL")
	}
	return r.store.SignInWithPassword(ctx, email, password)
}

// SignUp はSession Storeに委譲する。所属の解決は後続の変化通知で行われる。
func (r *Resolver) SignUp(ctx context.Context, email, password string) (*model.Session, error) {
	if r.store == nil {
		return nil, model.NewConfigurationMissingError("DATABASE_URL")
	}
	return r.store.SignUp(ctx, email, password)
}

// SignOut はidentity・所属・エラーを同期的にクリアしてからSession Storeに委譲する。
// 実行中の解決はこの時点で無効になる。
func (r *Resolver) SignOut(ctx context.Context) error {
	r.mu.Lock()
	r.generation++
	r.state.Identity = nil
	r.state.Membership = nil
	r.state.FetchError = nil
	r.state.IsLoading = false
	r.publishLocked()
	r.mu.Unlock()

	if r.store == nil {
		return model.NewConfigurationMissingError("DATABASE_URL")
	}
	return r.store.SignOut(ctx)
}

// handleSession は変化通知のセッションを状態遷移として適用する。
func (r *Resolver) handleSession(session *model.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.applySessionLocked(session)
}

// applySessionLocked は世代を進めてセッションを反映する。r.muを保持して呼ぶこと。
func (r *Resolver) applySessionLocked(session *model.Session) {
	r.generation++
	if session == nil {
		r.state.Identity = nil
		r.state.Membership = nil
		r.state.IsLoading = false
		r.publishLocked()
		return
	}

	r.state.Identity = session.Identity
	r.state.FetchError = nil
	r.state.IsLoading = true
	r.publishLocked()

	r.wg.Add(1)
	go r.resolve(r.ctx, r.generation, session.UserID)
}

func (r *Resolver) resolve(ctx context.Context, generation uint64, userID string) {
	defer r.wg.Done()

	membership, apiErr := r.members.Resolve(ctx, userID)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || generation != r.generation {
		return
	}
	r.state.Membership = membership
	r.state.FetchError = apiErr
	r.state.IsLoading = false
	r.publishLocked()
}

// publishLocked は状態変化を待機者に通知する。r.muを保持して呼ぶこと。
func (r *Resolver) publishLocked() {
	close(r.changed)
	r.changed = make(chan struct{})

	st := r.state
	select {
	case r.changes <- st:
		return
	default:
	}
	select {
	case <-r.changes:
	default:
	}
	select {
	case r.changes <- st:
	default:
	}
}
