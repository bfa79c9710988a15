// Package repository はデータアクセス層の実装を提供する。
package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"penelope-api/internal/domain"
)

// CampusModel はgorm用のモデル定義。
type CampusModel struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	Name      string    `gorm:"type:varchar(255);not null"`
	Author    string    `gorm:"type:varchar(255);not null"`
	CreatedAt time.Time `gorm:"type:datetime(6);not null;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:datetime(6);not null;autoUpdateTime"`
}

// TableName はテーブル名を返す。
func (CampusModel) TableName() string {
	return "campuses"
}

func (m *CampusModel) toDomain() *domain.Campus {
	return &domain.Campus{
		ID:        domain.CampusID(m.ID),
		Name:      m.Name,
		Author:    m.Author,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

// CampusRepository はキャンパスのデータアクセスを提供する。
type CampusRepository struct {
	db *gorm.DB
}

// NewCampusRepository は新しいCampusRepositoryを生成する。
func NewCampusRepository(db *gorm.DB) *CampusRepository {
	return &CampusRepository{db: db}
}

// Create は新しいキャンパスを保存し、採番されたIDを反映する。
func (r *CampusRepository) Create(ctx context.Context, campus *domain.Campus) error {
	model := &CampusModel{Name: campus.Name, Author: campus.Author}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create campus",
			"operation", "create_campus",
			"name", campus.Name,
			"error", err,
		)
		return err
	}
	campus.ID = domain.CampusID(model.ID)
	campus.CreatedAt = model.CreatedAt
	campus.UpdatedAt = model.UpdatedAt
	return nil
}

// FindByID は指定IDのキャンパスを取得する。存在しない場合は (nil, nil)。
func (r *CampusRepository) FindByID(ctx context.Context, id domain.CampusID) (*domain.Campus, error) {
	var model CampusModel
	err := r.db.WithContext(ctx).Where("id = ?", uint64(id)).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find campus",
			"operation", "find_campus_by_id",
			"campus_id", uint64(id),
			"error", err,
		)
		return nil, err
	}
	return model.toDomain(), nil
}

// ExistsByID はキャンパスが存在するか確認する。
func (r *CampusRepository) ExistsByID(ctx context.Context, id domain.CampusID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&CampusModel{}).
		Where("id = ?", uint64(id)).
		Count(&count).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to count campuses",
			"operation", "exists_campus_by_id",
			"campus_id", uint64(id),
			"error", err,
		)
		return false, err
	}
	return count > 0, nil
}

// FindAll は全キャンパスをID順に取得する。
func (r *CampusRepository) FindAll(ctx context.Context) ([]*domain.Campus, error) {
	var models []CampusModel
	if err := r.db.WithContext(ctx).Order("id ASC").Find(&models).Error; err != nil {
		slog.ErrorContext(ctx, "failed to find campuses",
			"operation", "find_all_campuses",
			"error", err,
		)
		return nil, err
	}
	campuses := make([]*domain.Campus, len(models))
	for i := range models {
		campuses[i] = models[i].toDomain()
	}
	return campuses, nil
}

// Delete はキャンパスと、それに紐づくAPIキー・ユーザーの権限を削除する。
// 削除対象が存在しない場合は false を返す。
func (r *CampusRepository) Delete(ctx context.Context, id domain.CampusID) (bool, error) {
	var deleted bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("campus_id = ?", uint64(id)).Delete(&APIKeyCampusRightModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("campus_id = ?", uint64(id)).Delete(&UserCampusRightModel{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", uint64(id)).Delete(&CampusModel{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to delete campus",
			"operation", "delete_campus",
			"campus_id", uint64(id),
			"error", err,
		)
		return false, err
	}
	return deleted, nil
}
