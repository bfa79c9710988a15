package auth

import (
	"context"
	"errors"
	"fmt"

	"penelope-api/internal/domain"
	"penelope-api/internal/rsautil"
)

// DataManagerFinder はユーザーを参照する。存在しない場合は (nil, nil) を返す。
type DataManagerFinder interface {
	FindByUsername(ctx context.Context, username string) (*domain.DataManager, error)
}

// CampusChecker はキャンパスの存在を確認する。
type CampusChecker interface {
	ExistsByID(ctx context.Context, id domain.CampusID) (bool, error)
}

// PasswordVerifier は平文パスワードとハッシュを照合する。
type PasswordVerifier interface {
	Verify(password, hash string) bool
}

// UserAuthenticator はユーザーフローの認証・認可を行う。
// Credentials ヘッダーはサーバー鍵ペアの秘密鍵で復号する。
type UserAuthenticator struct {
	serverKey *rsautil.KeyPair
	users     DataManagerFinder
	campuses  CampusChecker
	passwords PasswordVerifier
	fresh     freshness
}

// NewUserAuthenticator は新しいUserAuthenticatorを生成する。
func NewUserAuthenticator(serverKey *rsautil.KeyPair, users DataManagerFinder, campuses CampusChecker, passwords PasswordVerifier, opts ...Option) *UserAuthenticator {
	return &UserAuthenticator{
		serverKey: serverKey,
		users:     users,
		campuses:  campuses,
		passwords: passwords,
		fresh:     buildFreshness(opts),
	}
}

// Verify はCredentialsヘッダーの暗号文を復号し、時刻・ユーザー・パスワードを検証する。
// 認可は行わない。
func (a *UserAuthenticator) Verify(ctx context.Context, ciphertext string) (*domain.DataManager, error) {
	if ciphertext == "" {
		return nil, domain.Reject(domain.ReasonMissingCredentials, nil)
	}

	plaintext, err := rsautil.Decrypt(a.serverKey.Private, ciphertext)
	if err != nil {
		return nil, domain.Reject(domain.ReasonBadCredentials, err)
	}

	env, err := domain.ParseUserEnvelope(plaintext)
	if err != nil {
		return nil, domain.Reject(domain.ReasonBadCredentials, err)
	}

	if err := a.fresh.check(env.SentAt); err != nil {
		return nil, domain.Reject(domain.ReasonStaleRequest, err)
	}

	dm, err := a.users.FindByUsername(ctx, env.Username)
	if err != nil {
		return nil, fmt.Errorf("finding data manager: %w", err)
	}
	if dm == nil {
		return nil, domain.Reject(domain.ReasonUnauthorised, errors.New("unknown username"))
	}

	if !a.passwords.Verify(env.Password, dm.PasswordHash) {
		return nil, domain.Reject(domain.ReasonUnauthorised, errors.New("password mismatch"))
	}
	return dm, nil
}

// Authenticate はプリンシパル（Credentialsヘッダーの暗号文）とクレーム（"admin" またはキャンパスID）を検証する。
func (a *UserAuthenticator) Authenticate(ctx context.Context, principal, claim string) (*domain.Decision, error) {
	if principal == "" || claim == "" {
		return nil, domain.Reject(domain.ReasonMissingCredentials, nil)
	}

	dm, err := a.Verify(ctx, principal)
	if err != nil {
		return nil, err
	}

	scope, err := a.authorize(ctx, dm, claim)
	if err != nil {
		return nil, err
	}

	return &domain.Decision{
		Authenticated: true,
		Kind:          domain.PrincipalDataManager,
		Name:          dm.Username,
		Admin:         dm.Sysadmin,
		Scope:         scope,
	}, nil
}

func (a *UserAuthenticator) authorize(ctx context.Context, dm *domain.DataManager, claim string) (domain.Scope, error) {
	if claim == domain.AdminToken {
		if !dm.Sysadmin {
			return domain.Scope{}, domain.Reject(domain.ReasonForbidden, errors.New("admin claim without sysadmin"))
		}
		return domain.AdminScope(), nil
	}

	id, err := domain.ParseCampusID(claim)
	if err != nil {
		return domain.Scope{}, domain.Reject(domain.ReasonNotFound, err)
	}
	scope := domain.CampusScope(id)
	if dm.Sysadmin {
		return scope, nil
	}

	exists, err := a.campuses.ExistsByID(ctx, id)
	if err != nil {
		return domain.Scope{}, fmt.Errorf("checking campus: %w", err)
	}
	if !exists {
		return domain.Scope{}, domain.Reject(domain.ReasonNotFound, fmt.Errorf("campus %s does not exist", id))
	}
	if !dm.HasCampus(id) {
		return domain.Scope{}, domain.Reject(domain.ReasonForbidden, fmt.Errorf("campus %s not granted", id))
	}
	return scope, nil
}
