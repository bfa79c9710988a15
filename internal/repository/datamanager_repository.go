package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"penelope-api/internal/domain"
)

// DataManagerModel はgorm用のモデル定義。Password にはbcryptハッシュを保存する。
type DataManagerModel struct {
	Username  string    `gorm:"type:varchar(255);primaryKey"`
	Password  string    `gorm:"type:varchar(255);not null"`
	Sysadmin  bool      `gorm:"not null"`
	CreatedAt time.Time `gorm:"type:datetime(6);not null;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:datetime(6);not null;autoUpdateTime"`
}

// TableName はテーブル名を返す。
func (DataManagerModel) TableName() string {
	return "data_managers"
}

// UserCampusRightModel はユーザーとキャンパスの権限関係。
type UserCampusRightModel struct {
	Username string `gorm:"column:username;type:varchar(255);primaryKey"`
	CampusID uint64 `gorm:"column:campus_id;primaryKey"`
}

// TableName はテーブル名を返す。
func (UserCampusRightModel) TableName() string {
	return "user_campus_rights"
}

func (m *DataManagerModel) toDomain(campuses []domain.CampusID) *domain.DataManager {
	return &domain.DataManager{
		Username:     m.Username,
		PasswordHash: m.Password,
		Sysadmin:     m.Sysadmin,
		Campuses:     campuses,
	}
}

// DataManagerRepository はデータ管理者のデータアクセスを提供する。
type DataManagerRepository struct {
	db *gorm.DB
}

// NewDataManagerRepository は新しいDataManagerRepositoryを生成する。
func NewDataManagerRepository(db *gorm.DB) *DataManagerRepository {
	return &DataManagerRepository{db: db}
}

// ExistsByUsername は指定ユーザー名のデータ管理者が存在するか確認する。
func (r *DataManagerRepository) ExistsByUsername(ctx context.Context, username string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&DataManagerModel{}).
		Where("username = ?", username).
		Count(&count).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to count data managers",
			"operation", "exists_by_username",
			"username", username,
			"error", err,
		)
		return false, err
	}
	return count > 0, nil
}

// Create は新しいデータ管理者を保存する。
func (r *DataManagerRepository) Create(ctx context.Context, dm *domain.DataManager) error {
	model := &DataManagerModel{
		Username: dm.Username,
		Password: dm.PasswordHash,
		Sysadmin: dm.Sysadmin,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create data manager",
			"operation", "create_data_manager",
			"username", dm.Username,
			"error", err,
		)
		return err
	}
	return nil
}

// FindByUsername はキャンパス権限を含めてデータ管理者を取得する。存在しない場合は (nil, nil)。
func (r *DataManagerRepository) FindByUsername(ctx context.Context, username string) (*domain.DataManager, error) {
	var model DataManagerModel
	err := r.db.WithContext(ctx).Where("username = ?", username).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find data manager",
			"operation", "find_by_username",
			"username", username,
			"error", err,
		)
		return nil, err
	}

	var ids []uint64
	err = r.db.WithContext(ctx).
		Model(&UserCampusRightModel{}).
		Where("username = ?", username).
		Order("campus_id ASC").
		Pluck("campus_id", &ids).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to find user campus rights",
			"operation", "find_by_username",
			"username", username,
			"error", err,
		)
		return nil, err
	}
	campuses := make([]domain.CampusID, len(ids))
	for i, id := range ids {
		campuses[i] = domain.CampusID(id)
	}
	return model.toDomain(campuses), nil
}

// FindAll は全データ管理者をユーザー名順に取得する。
func (r *DataManagerRepository) FindAll(ctx context.Context) ([]*domain.DataManager, error) {
	var models []DataManagerModel
	if err := r.db.WithContext(ctx).Order("username ASC").Find(&models).Error; err != nil {
		slog.ErrorContext(ctx, "failed to find data managers",
			"operation", "find_all_data_managers",
			"error", err,
		)
		return nil, err
	}

	var rights []UserCampusRightModel
	if err := r.db.WithContext(ctx).Order("campus_id ASC").Find(&rights).Error; err != nil {
		slog.ErrorContext(ctx, "failed to find user campus rights",
			"operation", "find_all_data_managers",
			"error", err,
		)
		return nil, err
	}
	byUser := make(map[string][]domain.CampusID)
	for _, right := range rights {
		byUser[right.Username] = append(byUser[right.Username], domain.CampusID(right.CampusID))
	}

	managers := make([]*domain.DataManager, len(models))
	for i := range models {
		managers[i] = models[i].toDomain(byUser[models[i].Username])
	}
	return managers, nil
}

// Delete はデータ管理者と権限を削除する。削除対象が存在しない場合は false を返す。
func (r *DataManagerRepository) Delete(ctx context.Context, username string) (bool, error) {
	var deleted bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("username = ?", username).Delete(&UserCampusRightModel{}).Error; err != nil {
			return err
		}
		res := tx.Where("username = ?", username).Delete(&DataManagerModel{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to delete data manager",
			"operation", "delete_data_manager",
			"username", username,
			"error", err,
		)
		return false, err
	}
	return deleted, nil
}

// AddCampus はデータ管理者にキャンパス権限を付与する。付与済みなら何もしない。
func (r *DataManagerRepository) AddCampus(ctx context.Context, username string, campusID domain.CampusID) error {
	err := r.db.WithContext(ctx).
		Where(UserCampusRightModel{Username: username, CampusID: uint64(campusID)}).
		FirstOrCreate(&UserCampusRightModel{}).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to add campus to data manager",
			"operation", "add_campus",
			"username", username,
			"campus_id", uint64(campusID),
			"error", err,
		)
		return err
	}
	return nil
}

// RemoveCampus はデータ管理者からキャンパス権限を剥奪する。付与されていなかった場合は false を返す。
func (r *DataManagerRepository) RemoveCampus(ctx context.Context, username string, campusID domain.CampusID) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("username = ? AND campus_id = ?", username, uint64(campusID)).
		Delete(&UserCampusRightModel{})
	if res.Error != nil {
		slog.ErrorContext(ctx, "failed to remove campus from data manager",
			"operation", "remove_campus",
			"username", username,
			"campus_id", uint64(campusID),
			"error", res.Error,
		)
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
