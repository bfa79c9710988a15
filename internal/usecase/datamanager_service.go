package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"penelope-api/internal/domain"
)

// DataManagerRepository はデータ管理者のデータアクセスのインターフェース。
type DataManagerRepository interface {
	ExistsByUsername(ctx context.Context, username string) (bool, error)
	Create(ctx context.Context, dm *domain.DataManager) error
	FindByUsername(ctx context.Context, username string) (*domain.DataManager, error)
	FindAll(ctx context.Context) ([]*domain.DataManager, error)
	Delete(ctx context.Context, username string) (bool, error)
	AddCampus(ctx context.Context, username string, campusID domain.CampusID) error
	RemoveCampus(ctx context.Context, username string, campusID domain.CampusID) (bool, error)
}

// PasswordHasher はパスワードハッシュ生成のインターフェース。
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// CredentialVerifier は暗号化された Credentials ヘッダーを検証する。
type CredentialVerifier interface {
	Verify(ctx context.Context, ciphertext string) (*domain.DataManager, error)
}

// Validation はユーザー認証情報の検証結果。
// Campuses はシステム管理者の場合 nil（全キャンパス）。
type Validation struct {
	Valid    bool
	Admin    bool
	Campuses []domain.CampusID
}

// DataManagerService はデータ管理者の管理と認証情報の検証を提供する。
type DataManagerService struct {
	repo     DataManagerRepository
	campuses CampusFinder
	hasher   PasswordHasher
	verifier CredentialVerifier
}

// NewDataManagerService は新しいDataManagerServiceを生成する。
func NewDataManagerService(repo DataManagerRepository, campuses CampusFinder, hasher PasswordHasher, verifier CredentialVerifier) *DataManagerService {
	return &DataManagerService{
		repo:     repo,
		campuses: campuses,
		hasher:   hasher,
		verifier: verifier,
	}
}

// ユーザー名・パスワードは "=" 区切りの認証情報に埋め込むため "=" を含められない。
func validateAccount(username, password string) error {
	if username == "" || strings.Contains(username, "=") {
		return domain.ErrInvalidUsername
	}
	if password == "" || strings.Contains(password, "=") {
		return domain.ErrInvalidPassword
	}
	return nil
}

// CreateDataManager は新しいデータ管理者を作成する。
func (s *DataManagerService) CreateDataManager(ctx context.Context, username, password string, sysadmin bool) (*domain.DataManager, error) {
	if err := validateAccount(username, password); err != nil {
		return nil, err
	}

	exists, err := s.repo.ExistsByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("checking existing user: %w", err)
	}
	if exists {
		return nil, domain.ErrDataManagerAlreadyExists
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	dm := &domain.DataManager{
		Username:     username,
		PasswordHash: hash,
		Sysadmin:     sysadmin,
	}
	if err := s.repo.Create(ctx, dm); err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	return dm, nil
}

// EnsureSysadmin は指定ユーザーが存在しなければシステム管理者として作成する。
// 作成した場合は true を返す。
func (s *DataManagerService) EnsureSysadmin(ctx context.Context, username, password string) (bool, error) {
	if err := validateAccount(username, password); err != nil {
		return false, err
	}
	existing, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		return false, fmt.Errorf("finding user: %w", err)
	}
	if existing != nil {
		if !existing.Sysadmin {
			slog.WarnContext(ctx, "injected admin exists without sysadmin rights",
				"operation", "ensure_sysadmin",
				"username", username,
			)
		}
		return false, nil
	}
	if _, err := s.CreateDataManager(ctx, username, password, true); err != nil {
		return false, err
	}
	return true, nil
}

// RemoveDataManager はデータ管理者を削除する。
func (s *DataManagerService) RemoveDataManager(ctx context.Context, username string) error {
	deleted, err := s.repo.Delete(ctx, username)
	if err != nil {
		return fmt.Errorf("deleting user: %w", err)
	}
	if !deleted {
		return domain.ErrDataManagerNotFound
	}
	return nil
}

// GrantCampus はデータ管理者にキャンパス権限を付与する。
func (s *DataManagerService) GrantCampus(ctx context.Context, username string, campusID domain.CampusID) error {
	if err := s.requireUserAndCampus(ctx, username, campusID); err != nil {
		return err
	}
	if err := s.repo.AddCampus(ctx, username, campusID); err != nil {
		return fmt.Errorf("granting campus: %w", err)
	}
	return nil
}

// RevokeCampus はデータ管理者からキャンパス権限を剥奪する。
func (s *DataManagerService) RevokeCampus(ctx context.Context, username string, campusID domain.CampusID) error {
	if err := s.requireUserAndCampus(ctx, username, campusID); err != nil {
		return err
	}
	removed, err := s.repo.RemoveCampus(ctx, username, campusID)
	if err != nil {
		return fmt.Errorf("revoking campus: %w", err)
	}
	if !removed {
		return domain.ErrCampusNotGranted
	}
	return nil
}

func (s *DataManagerService) requireUserAndCampus(ctx context.Context, username string, campusID domain.CampusID) error {
	dm, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		return fmt.Errorf("finding user: %w", err)
	}
	if dm == nil {
		return domain.ErrDataManagerNotFound
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

// ListDataManagers は全データ管理者を取得する。
func (s *DataManagerService) ListDataManagers(ctx context.Context) ([]*domain.DataManager, error) {
	managers, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return managers, nil
}

// Validate は Credentials ヘッダーを検証し、権限の概要を返す。
// 認証失敗は Valid=false として扱い、エラーはストレージ障害など内部要因のみ返す。
func (s *DataManagerService) Validate(ctx context.Context, credentials string) (*Validation, error) {
	dm, err := s.verifier.Verify(ctx, credentials)
	if err != nil {
		var rej *domain.RejectionError
		if errors.As(err, &rej) {
			slog.InfoContext(ctx, "credential validation rejected",
				"operation", "validate_user",
				"reason", string(rej.Reason),
				"cause", rej.Cause(),
			)
			return &Validation{}, nil
		}
		return nil, fmt.Errorf("verifying credentials: %w", err)
	}

	if dm.Sysadmin {
		return &Validation{Valid: true, Admin: true}, nil
	}
	campuses := dm.Campuses
	if campuses == nil {
		campuses = []domain.CampusID{}
	}
	return &Validation{Valid: true, Campuses: campuses}, nil
}
