package usecase

import (
	"context"
	"fmt"
	"strings"

	"penelope-api/internal/domain"
)

// CampusRepository はキャンパスのデータアクセスのインターフェース。
type CampusRepository interface {
	CampusFinder
	Create(ctx context.Context, campus *domain.Campus) error
	FindAll(ctx context.Context) ([]*domain.Campus, error)
	Delete(ctx context.Context, id domain.CampusID) (bool, error)
}

// CampusService はキャンパスの管理を提供する。
type CampusService struct {
	repo CampusRepository
}

// NewCampusService は新しいCampusServiceを生成する。
func NewCampusService(repo CampusRepository) *CampusService {
	return &CampusService{repo: repo}
}

// CreateCampus はキャンパスを作成する。author は作成者のAPIキーIdentityまたはユーザー名。
func (s *CampusService) CreateCampus(ctx context.Context, name, author string) (*domain.Campus, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.ErrInvalidCampusName
	}
	campus := &domain.Campus{Name: name, Author: author}
	if err := s.repo.Create(ctx, campus); err != nil {
		return nil, fmt.Errorf("creating campus: %w", err)
	}
	return campus, nil
}

// RemoveCampus はキャンパスと関連する権限を削除する。
func (s *CampusService) RemoveCampus(ctx context.Context, id domain.CampusID) error {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("deleting campus: %w", err)
	}
	if !deleted {
		return domain.ErrCampusNotFound
	}
	return nil
}

// ListCampuses は全キャンパスを取得する。
func (s *CampusService) ListCampuses(ctx context.Context) ([]*domain.Campus, error) {
	campuses, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing campuses: %w", err)
	}
	return campuses, nil
}
