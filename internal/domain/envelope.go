package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	principalSeparator = "_"
	envelopeSeparator  = "="
)

// タイムスタンプとして受け付けるレイアウト。秒省略形は Java の ZonedDateTime.toString() が出力する。
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
}

// APIKeyPrincipal はAPIキーフローのプリンシパル "<identity>_<scopeToken>" を表す。
type APIKeyPrincipal struct {
	Identity   string
	ScopeToken string
}

// String はヘッダー形式に戻す。
func (p APIKeyPrincipal) String() string {
	return p.Identity + principalSeparator + p.ScopeToken
}

// ParseAPIKeyPrincipal は "_" で2つの空でない要素に分割できる場合のみ成功する。
func ParseAPIKeyPrincipal(principal string) (APIKeyPrincipal, bool) {
	parts := strings.Split(principal, principalSeparator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return APIKeyPrincipal{}, false
	}
	return APIKeyPrincipal{Identity: parts[0], ScopeToken: parts[1]}, true
}

// APIKeyEnvelope はKEYヘッダーの復号結果 "<identity>=<timestamp>" を表す。
type APIKeyEnvelope struct {
	Identity string
	SentAt   time.Time
}

// ParseAPIKeyEnvelope は復号済みの平文を解釈する。
func ParseAPIKeyEnvelope(plaintext string) (APIKeyEnvelope, error) {
	parts := strings.Split(plaintext, envelopeSeparator)
	if len(parts) != 2 || parts[0] == "" {
		return APIKeyEnvelope{}, fmt.Errorf("%w: want 2 fields, got %d", ErrMalformedEnvelope, len(parts))
	}
	sentAt, err := ParseTimestamp(parts[1])
	if err != nil {
		return APIKeyEnvelope{}, err
	}
	return APIKeyEnvelope{Identity: parts[0], SentAt: sentAt}, nil
}

// String は暗号化前の平文形式を返す。
func (e APIKeyEnvelope) String() string {
	return e.Identity + envelopeSeparator + FormatTimestamp(e.SentAt)
}

// UserEnvelope はCredentialsヘッダーの復号結果 "<username>=<password>=<timestamp>" を表す。
// パスワードを含むためログに出力しないこと。
type UserEnvelope struct {
	Username string
	Password string
	SentAt   time.Time
}

// ParseUserEnvelope は復号済みの平文を解釈する。
func ParseUserEnvelope(plaintext string) (UserEnvelope, error) {
	parts := strings.Split(plaintext, envelopeSeparator)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return UserEnvelope{}, fmt.Errorf("%w: want 3 fields, got %d", ErrMalformedEnvelope, len(parts))
	}
	sentAt, err := ParseTimestamp(parts[2])
	if err != nil {
		return UserEnvelope{}, err
	}
	return UserEnvelope{Username: parts[0], Password: parts[1], SentAt: sentAt}, nil
}

// String は暗号化前の平文形式を返す。
func (e UserEnvelope) String() string {
	return e.Username + envelopeSeparator + e.Password + envelopeSeparator + FormatTimestamp(e.SentAt)
}

// ParseTimestamp はゾーン付きISO-8601タイムスタンプを解釈する。
// 末尾の "[Europe/London]" のようなゾーンIDは無視する（オフセットで時刻は確定する）。
func ParseTimestamp(s string) (time.Time, error) {
	if i := strings.IndexByte(s, '['); i >= 0 && strings.HasSuffix(s, "]") {
		s = s[:i]
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}

// FormatTimestamp はエンベロープ用のタイムスタンプ文字列を返す。
func FormatTimestamp(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}
