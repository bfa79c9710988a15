// Package usecase はアプリケーションのユースケースを実装する。
package usecase

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"

	"penelope-api/internal/domain"
	"penelope-api/internal/rsautil"
)

const (
	identityLength  = 10
	identityCharset = "abcdefghijklmnoprstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	// maxIdentityAttempts を超えて衝突した場合は発行を諦める
	maxIdentityAttempts = 16
)

// APIKeyRepository はAPIキーのデータアクセスのインターフェース。
type APIKeyRepository interface {
	ExistsByIdentity(ctx context.Context, identity string) (bool, error)
	Create(ctx context.Context, key *domain.APIKey) error
	FindByIdentity(ctx context.Context, identity string) (*domain.APIKey, error)
	FindAll(ctx context.Context) ([]*domain.APIKey, error)
	Delete(ctx context.Context, identity string) (bool, error)
	AddCampus(ctx context.Context, identity string, campusID domain.CampusID) error
	RemoveCampus(ctx context.Context, identity string, campusID domain.CampusID) (bool, error)
}

// KeyCustody はAPIキー秘密鍵の保管先のインターフェース。
type KeyCustody interface {
	StoreKey(ctx context.Context, identity string, der []byte) error
	RemoveKey(ctx context.Context, identity string) error
}

// CampusFinder はキャンパスの存在確認のインターフェース。
type CampusFinder interface {
	ExistsByID(ctx context.Context, id domain.CampusID) (bool, error)
}

// APIKeyService はAPIキーの発行・削除・権限管理を提供する。
type APIKeyService struct {
	repo        APIKeyRepository
	custody     KeyCustody
	campuses    CampusFinder
	newIdentity func() (string, error)
	newKeyPair  func() (*rsautil.KeyPair, error)
}

// NewAPIKeyService は新しいAPIKeyServiceを生成する。
func NewAPIKeyService(repo APIKeyRepository, custody KeyCustody, campuses CampusFinder) *APIKeyService {
	return &APIKeyService{
		repo:        repo,
		custody:     custody,
		campuses:    campuses,
		newIdentity: generateIdentity,
		newKeyPair:  rsautil.GenerateKeyPair,
	}
}

// generateIdentity は暗号論的乱数でIdentityを生成する。
func generateIdentity() (string, error) {
	size := big.NewInt(int64(len(identityCharset)))
	var sb strings.Builder
	sb.Grow(identityLength)
	for range identityLength {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", fmt.Errorf("generating identity: %w", err)
		}
		sb.WriteByte(identityCharset[n.Int64()])
	}
	return sb.String(), nil
}

// uniqueIdentity は未使用のIdentityを生成する。
func (s *APIKeyService) uniqueIdentity(ctx context.Context) (string, error) {
	for range maxIdentityAttempts {
		identity, err := s.newIdentity()
		if err != nil {
			return "", err
		}
		exists, err := s.repo.ExistsByIdentity(ctx, identity)
		if err != nil {
			return "", fmt.Errorf("checking identity: %w", err)
		}
		if !exists {
			return identity, nil
		}
	}
	return "", errors.New("could not allocate a unique identity")
}

// CreateAPIKey は新しいAPIキーを発行する。公開鍵はこの戻り値でのみ取得できる。
func (s *APIKeyService) CreateAPIKey(ctx context.Context, ownerName string, admin bool) (*domain.ProvisionedAPIKey, error) {
	ownerName = strings.TrimSpace(ownerName)
	if ownerName == "" {
		return nil, domain.ErrInvalidOwnerName
	}

	identity, err := s.uniqueIdentity(ctx)
	if err != nil {
		return nil, err
	}

	kp, err := s.newKeyPair()
	if err != nil {
		return nil, fmt.Errorf("generating key pair: %w", err)
	}
	der, err := rsautil.MarshalPrivateKey(kp.Private)
	if err != nil {
		return nil, fmt.Errorf("marshalling private key: %w", err)
	}
	publicKey, err := rsautil.EncodePublicKey(kp.Public)
	if err != nil {
		return nil, fmt.Errorf("encoding public key: %w", err)
	}

	// 秘密鍵を先に保管し、レコード保存に失敗したら取り消す
	if err := s.custody.StoreKey(ctx, identity, der); err != nil {
		return nil, fmt.Errorf("storing private key: %w", err)
	}

	key := &domain.APIKey{
		Identity:  identity,
		OwnerName: ownerName,
		Admin:     admin,
	}
	if err := s.repo.Create(ctx, key); err != nil {
		if rmErr := s.custody.RemoveKey(ctx, identity); rmErr != nil {
			slog.ErrorContext(ctx, "failed to roll back private key",
				"operation", "create_api_key",
				"identity", identity,
				"error", rmErr,
			)
		}
		return nil, fmt.Errorf("creating api key: %w", err)
	}

	return &domain.ProvisionedAPIKey{APIKey: *key, PublicKey: publicKey}, nil
}

// RemoveAPIKey はAPIキーのレコードと秘密鍵を削除する。
func (s *APIKeyService) RemoveAPIKey(ctx context.Context, identity string) error {
	deleted, err := s.repo.Delete(ctx, identity)
	if err != nil {
		return fmt.Errorf("deleting api key: %w", err)
	}
	if !deleted {
		return domain.ErrAPIKeyNotFound
	}
	if err := s.custody.RemoveKey(ctx, identity); err != nil {
		return fmt.Errorf("removing private key: %w", err)
	}
	return nil
}

// GrantCampus はAPIキーにキャンパス権限を付与する。
func (s *APIKeyService) GrantCampus(ctx context.Context, identity string, campusID domain.CampusID) error {
	if err := s.requireKeyAndCampus(ctx, identity, campusID); err != nil {
		return err
	}
	if err := s.repo.AddCampus(ctx, identity, campusID); err != nil {
		return fmt.Errorf("granting campus: %w", err)
	}
	return nil
}

// RevokeCampus はAPIキーからキャンパス権限を剥奪する。
func (s *APIKeyService) RevokeCampus(ctx context.Context, identity string, campusID domain.CampusID) error {
	if err := s.requireKeyAndCampus(ctx, identity, campusID); err != nil {
		return err
	}
	removed, err := s.repo.RemoveCampus(ctx, identity, campusID)
	if err != nil {
		return fmt.Errorf("revoking campus: %w", err)
	}
	if !removed {
		return domain.ErrCampusNotGranted
	}
	return nil
}

func (s *APIKeyService) requireKeyAndCampus(ctx context.Context, identity string, campusID domain.CampusID) error {
	key, err := s.repo.FindByIdentity(ctx, identity)
	if err != nil {
		return fmt.Errorf("finding api key: %w", err)
	}
	if key == nil {
		return domain.ErrAPIKeyNotFound
	}
	exists, err := s.campuses.ExistsByID(ctx, campusID)
	if err != nil {
		return fmt.Errorf("finding campus: %w", err)
	}
	if !exists {
		return domain.ErrCampusNotFound
	}
	return nil
}

// ListAPIKeys は全APIキーを取得する。
func (s *APIKeyService) ListAPIKeys(ctx context.Context) ([]*domain.APIKey, error) {
	keys, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing api keys: %w", err)
	}
	return keys, nil
}
