package auth

import (
	"context"
	"sync"

	"github.com/hitoshi/sermonhub/internal/model"
)

// EventType は認証状態変化の種別。
type EventType string

const (
	EventSignedIn       EventType = "SIGNED_IN"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
)

// Event は認証状態変化の通知。
// ClientIDは操作を行ったクライアント（ブラウザ）を識別する。
type Event struct {
	Type              EventType
	ClientID          string
	Session           *model.Session // SIGNED_OUTではnil
	PreviousSessionID string
}

// Broadcaster はプロセス内の購読者へイベントを配送する。
// 配送は逐次で、同時に2つのコールバックが実行されることはない。
// コールバック内からPublishを呼んではならない。
type Broadcaster struct {
	mu      sync.Mutex
	deliver sync.Mutex
	nextID  int
	subs    map[int]func(Event)
}

// NewBroadcaster はBroadcasterを生成する。
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]func(Event))}
}

// Subscribe はコールバックを登録し、登録解除関数を返す。解除関数は冪等。
func (b *Broadcaster) Subscribe(cb func(Event)) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = cb
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish はイベントを現在の全購読者に配送する。
func (b *Broadcaster) Publish(ev Event) {
	b.deliver.Lock()
	defer b.deliver.Unlock()

	b.mu.Lock()
	cbs := make([]func(Event), 0, len(b.subs))
	for _, cb := range b.subs {
		cbs = append(cbs, cb)
	}
	b.mu.Unlock()

	for _, cb := range cbs {
		cb(ev)
	}
}

// subscriberCount は現在の購読者数を返す。
func (b *Broadcaster) subscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

type clientIDKey struct{}

// WithClientID はクライアントIDをコンテキストに設定する。
// Storeが発行するイベントにはこのIDが付与される。
func WithClientID(ctx context.Context, clientID string) context.Context {
	return context.WithValue(ctx, clientIDKey{}, clientID)
}

// ClientIDFromContext はコンテキストからクライアントIDを取得する。
func ClientIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(clientIDKey{}).(string)
	return id
}
