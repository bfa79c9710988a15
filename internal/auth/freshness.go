// Package auth はヘッダーベースのステートレス認証（APIキー/ユーザー）と、キャンパス単位の認可を実装する。
package auth

import (
	"errors"
	"fmt"
	"time"
)

// DefaultFreshnessWindow はエンベロープを受け付ける時間幅。
const DefaultFreshnessWindow = 60 * time.Second

// errStale は時間幅外のエンベロープを表す。
var errStale = errors.New("stale request")

// Clock は現在時刻を返す。テストで固定時刻を注入するために使う。
type Clock func() time.Time

// freshness はリプレイ対策の時間幅チェックを行う。
// 両フローとも |now - sentAt| < window のときのみ受け付ける。
type freshness struct {
	window time.Duration
	now    Clock
}

func newFreshness(window time.Duration, now Clock) freshness {
	if window <= 0 {
		window = DefaultFreshnessWindow
	}
	if now == nil {
		now = time.Now
	}
	return freshness{window: window, now: now}
}

func (f freshness) check(sentAt time.Time) error {
	delta := f.now().Sub(sentAt)
	if delta < 0 {
		delta = -delta
	}
	if delta >= f.window {
		return fmt.Errorf("%w: delta %s exceeds %s", errStale, delta, f.window)
	}
	return nil
}

// Option は認証器の設定を変更する。
type Option func(*options)

type options struct {
	window time.Duration
	clock  Clock
}

// WithWindow は時間幅を指定する。
func WithWindow(window time.Duration) Option {
	return func(o *options) { o.window = window }
}

// WithClock は時刻の取得元を指定する。
func WithClock(clock Clock) Option {
	return func(o *options) { o.clock = clock }
}

func buildFreshness(opts []Option) freshness {
	o := options{window: DefaultFreshnessWindow, clock: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return newFreshness(o.window, o.clock)
}
