package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"penelope-api/internal/domain"
	"penelope-api/internal/rsautil"
)

// APIKeyFinder はAPIキーを参照する。存在しない場合は (nil, nil) を返す。
type APIKeyFinder interface {
	FindByIdentity(ctx context.Context, identity string) (*domain.APIKey, error)
}

// PrivateKeyLoader はIdentityごとの秘密鍵（PKCS#8 DER）を取得する。
type PrivateKeyLoader interface {
	LoadKey(ctx context.Context, identity string) ([]byte, error)
}

// APIKeyAuthenticator はAPIキーフローの認証・認可を行う。
type APIKeyAuthenticator struct {
	keys    APIKeyFinder
	custody PrivateKeyLoader
	fresh   freshness
}

// NewAPIKeyAuthenticator は新しいAPIKeyAuthenticatorを生成する。
func NewAPIKeyAuthenticator(keys APIKeyFinder, custody PrivateKeyLoader, opts ...Option) *APIKeyAuthenticator {
	return &APIKeyAuthenticator{
		keys:    keys,
		custody: custody,
		fresh:   buildFreshness(opts),
	}
}

// Authenticate は "<identity>_<scopeToken>" 形式のプリンシパルとKEYヘッダーの暗号文を検証する。
// プリンシパルが2要素に分割できない場合は匿名の判定を返す。
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context, principal, credential string) (*domain.Decision, error) {
	if principal == "" || credential == "" {
		return nil, domain.Reject(domain.ReasonMissingCredentials, nil)
	}

	p, ok := domain.ParseAPIKeyPrincipal(principal)
	if !ok {
		return domain.Anonymous(), nil
	}

	key, err := a.keys.FindByIdentity(ctx, p.Identity)
	if err != nil {
		return nil, fmt.Errorf("finding api key: %w", err)
	}
	if key == nil {
		return nil, domain.Reject(domain.ReasonUnknownIdentity, nil)
	}

	scope, err := a.authorize(key, p.ScopeToken)
	if err != nil {
		return nil, err
	}

	if err := a.verifyCredentials(ctx, key.Identity, credential); err != nil {
		return nil, err
	}

	return &domain.Decision{
		Authenticated: true,
		Kind:          domain.PrincipalAPIKey,
		Name:          key.Identity,
		Admin:         key.Admin,
		Scope:         scope,
	}, nil
}

// authorize はキーの管理フラグとキャンパス権限からスコープを許可する。
func (a *APIKeyAuthenticator) authorize(key *domain.APIKey, token string) (domain.Scope, error) {
	if !key.Admin && token == domain.AdminToken {
		return domain.Scope{}, domain.Reject(domain.ReasonUnauthorised, errors.New("non-admin key claimed admin scope"))
	}

	scope, err := domain.ParseScope(token)
	if err != nil {
		return domain.Scope{}, domain.Reject(domain.ReasonUnauthorised, err)
	}
	if key.Admin {
		return scope, nil
	}
	if !key.HasCampus(scope.Campus) {
		return domain.Scope{}, domain.Reject(domain.ReasonUnauthorised,
			fmt.Errorf("campus %s not granted to key", scope.Campus))
	}
	return scope, nil
}

// verifyCredentials は秘密鍵の取得から時刻チェックまでを行う。
// 古いリクエスト以外の失敗はすべて BadCredentials に丸める。
func (a *APIKeyAuthenticator) verifyCredentials(ctx context.Context, identity, credential string) error {
	blob, err := a.custody.LoadKey(ctx, identity)
	if err != nil {
		return domain.Reject(domain.ReasonBadCredentials, fmt.Errorf("loading private key: %w", err))
	}
	if len(blob) == 0 {
		return domain.Reject(domain.ReasonBadCredentials, errors.New("private key is empty"))
	}

	priv, err := rsautil.ParsePrivateKey(blob)
	if err != nil {
		return domain.Reject(domain.ReasonBadCredentials, err)
	}

	plaintext, err := rsautil.Decrypt(priv, credential)
	if err != nil {
		return domain.Reject(domain.ReasonBadCredentials, err)
	}

	env, err := domain.ParseAPIKeyEnvelope(plaintext)
	if err != nil {
		return domain.Reject(domain.ReasonBadCredentials, err)
	}

	if subtle.ConstantTimeCompare([]byte(env.Identity), []byte(identity)) != 1 {
		return domain.Reject(domain.ReasonBadCredentials, errors.New("principal mismatch"))
	}

	if err := a.fresh.check(env.SentAt); err != nil {
		return domain.Reject(domain.ReasonStaleRequest, err)
	}
	return nil
}
