package auth

import (
	"context"
	"net/http"

	"penelope-api/internal/domain"
)

// Authenticator は1リクエスト分のプリンシパルと認証情報を判定する。
type Authenticator interface {
	Authenticate(ctx context.Context, principal, credential string) (*domain.Decision, error)
}

// Guard は抽出結果のフローに応じて認証器を選択する。
type Guard struct {
	extractor *Extractor
	apiKeys   Authenticator
	users     Authenticator
}

// NewGuard は新しいGuardを生成する。
func NewGuard(extractor *Extractor, apiKeys, users Authenticator) *Guard {
	return &Guard{extractor: extractor, apiKeys: apiKeys, users: users}
}

// Authenticate はリクエストを指定スコープで認証する。
// 戻り値の error が *domain.RejectionError でない場合は内部エラー。
func (g *Guard) Authenticate(r *http.Request, scope domain.Scope) (*domain.Decision, Flow, error) {
	raw := g.extractor.Extract(r, scope)

	var authn Authenticator
	switch raw.Flow {
	case FlowUser:
		authn = g.users
	default:
		authn = g.apiKeys
	}

	decision, err := authn.Authenticate(r.Context(), raw.Principal, raw.Credential)
	return decision, raw.Flow, err
}
