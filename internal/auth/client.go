package auth

import (
	"context"
	"sync"

	"github.com/hitoshi/sermonhub/internal/model"
)

// Client は1つのブラウザクライアントから見たSession Store。
// 現在のセッションIDを保持し、自クライアント宛てのイベントのみを購読者に渡す。
type Client struct {
	store    *Service
	clientID string

	mu        sync.Mutex
	sessionID string
}

// ClientID はクライアントIDを返す。
func (c *Client) ClientID() string {
	return c.clientID
}

// SessionID は現在のセッションIDを返す。
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Client) setSessionID(id string) {
	c.mu.Lock()
	c.sessionID = id
	c.mu.Unlock()
}

func (c *Client) context(ctx context.Context) context.Context {
	return WithClientID(ctx, c.clientID)
}

// GetSession は現在のセッションを返す。サインインしていない場合はnilを返す。
func (c *Client) GetSession(ctx context.Context) (*model.Session, error) {
	return c.store.GetSession(ctx, c.SessionID())
}

// OnAuthStateChange は自クライアント宛てのイベントを購読する。
// 現在のセッションIDはコールバック呼び出し前に更新される。
func (c *Client) OnAuthStateChange(cb func(Event)) func() {
	return c.store.OnAuthStateChange(func(ev Event) {
		if !c.owns(ev) {
			return
		}
		switch ev.Type {
		case EventSignedIn, EventTokenRefreshed:
			if ev.Session != nil {
				c.setSessionID(ev.Session.ID)
			}
		case EventSignedOut:
			c.setSessionID("")
		}
		cb(ev)
	})
}

func (c *Client) owns(ev Event) bool {
	if c.clientID != "" && ev.ClientID == c.clientID {
		return true
	}
	current := c.SessionID()
	return current != "" && ev.PreviousSessionID == current
}

// SignInWithPassword はこのクライアントとしてサインインする。
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*model.Session, error) {
	session, err := c.store.SignInWithPassword(c.context(ctx), email, password)
	if err != nil {
		return nil, err
	}
	c.setSessionID(session.ID)
	return session, nil
}

// SignUp はこのクライアントとしてサインアップする。
func (c *Client) SignUp(ctx context.Context, email, password string) (*model.Session, error) {
	session, err := c.store.SignUp(c.context(ctx), email, password)
	if err != nil {
		return nil, err
	}
	c.setSessionID(session.ID)
	return session, nil
}

// SignOut は現在のセッションを破棄する。サインインしていない場合は何もしない。
func (c *Client) SignOut(ctx context.Context) error {
	id := c.SessionID()
	if id == "" {
		return nil
	}
	if err := c.store.SignOut(c.context(ctx), id); err != nil {
		return err
	}
	c.setSessionID("")
	return nil
}
