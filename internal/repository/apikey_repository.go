package repository

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"penelope-api/internal/domain"
)

// APIKeyModel はgorm用のモデル定義。秘密鍵はDBに保存しない。
type APIKeyModel struct {
	Identity  string    `gorm:"type:varchar(16);primaryKey"`
	OwnerName string    `gorm:"type:varchar(255);not null"`
	Admin     bool      `gorm:"not null"`
	CreatedAt time.Time `gorm:"type:datetime(6);not null;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:datetime(6);not null;autoUpdateTime"`
}

// TableName はテーブル名を返す。
func (APIKeyModel) TableName() string {
	return "api_keys"
}

// APIKeyCampusRightModel はAPIキーとキャンパスの権限関係。
type APIKeyCampusRightModel struct {
	PublicKey string `gorm:"column:public_key;type:varchar(16);primaryKey"`
	CampusID  uint64 `gorm:"column:campus_id;primaryKey"`
}

// TableName はテーブル名を返す。
func (APIKeyCampusRightModel) TableName() string {
	return "apikeys_campus_rights"
}

func (m *APIKeyModel) toDomain(campuses []domain.CampusID) *domain.APIKey {
	return &domain.APIKey{
		Identity:  m.Identity,
		OwnerName: m.OwnerName,
		Admin:     m.Admin,
		Campuses:  campuses,
	}
}

// APIKeyRepository はAPIキーのデータアクセスを提供する。
type APIKeyRepository struct {
	db *gorm.DB
}

// NewAPIKeyRepository は新しいAPIKeyRepositoryを生成する。
func NewAPIKeyRepository(db *gorm.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

// ExistsByIdentity は指定Identityのキーが存在するか確認する。
func (r *APIKeyRepository) ExistsByIdentity(ctx context.Context, identity string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&APIKeyModel{}).
		Where("identity = ?", identity).
		Count(&count).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to count api keys",
			"operation", "exists_by_identity",
			"identity", identity,
			"error", err,
		)
		return false, err
	}
	return count > 0, nil
}

// Create は新しいAPIキーを保存する。キャンパス権限は保存しない。
func (r *APIKeyRepository) Create(ctx context.Context, key *domain.APIKey) error {
	model := &APIKeyModel{
		Identity:  key.Identity,
		OwnerName: key.OwnerName,
		Admin:     key.Admin,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		slog.ErrorContext(ctx, "failed to create api key",
			"operation", "create_api_key",
			"identity", key.Identity,
			"error", err,
		)
		return err
	}
	return nil
}

// FindByIdentity はキャンパス権限を含めてAPIキーを取得する。存在しない場合は (nil, nil)。
func (r *APIKeyRepository) FindByIdentity(ctx context.Context, identity string) (*domain.APIKey, error) {
	var model APIKeyModel
	err := r.db.WithContext(ctx).Where("identity = ?", identity).First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to find api key",
			"operation", "find_by_identity",
			"identity", identity,
			"error", err,
		)
		return nil, err
	}

	var rights []APIKeyCampusRightModel
	if err := r.db.WithContext(ctx).Where("public_key = ?", identity).Order("campus_id ASC").Find(&rights).Error; err != nil {
		slog.ErrorContext(ctx, "failed to find api key campus rights",
			"operation", "find_by_identity",
			"identity", identity,
			"error", err,
		)
		return nil, err
	}
	campuses := make([]domain.CampusID, len(rights))
	for i, right := range rights {
		campuses[i] = domain.CampusID(right.CampusID)
	}
	return model.toDomain(campuses), nil
}

// FindAll は全APIキーをIdentity順に取得する。
func (r *APIKeyRepository) FindAll(ctx context.Context) ([]*domain.APIKey, error) {
	var models []APIKeyModel
	if err := r.db.WithContext(ctx).Order("identity ASC").Find(&models).Error; err != nil {
		slog.ErrorContext(ctx, "failed to find api keys",
			"operation", "find_all_api_keys",
			"error", err,
		)
		return nil, err
	}

	var rights []APIKeyCampusRightModel
	if err := r.db.WithContext(ctx).Order("campus_id ASC").Find(&rights).Error; err != nil {
		slog.ErrorContext(ctx, "failed to find api key campus rights",
			"operation", "find_all_api_keys",
			"error", err,
		)
		return nil, err
	}
	byKey := make(map[string][]domain.CampusID)
	for _, right := range rights {
		byKey[right.PublicKey] = append(byKey[right.PublicKey], domain.CampusID(right.CampusID))
	}

	keys := make([]*domain.APIKey, len(models))
	for i := range models {
		keys[i] = models[i].toDomain(byKey[models[i].Identity])
	}
	return keys, nil
}

// Delete はAPIキーと権限を削除する。削除対象が存在しない場合は false を返す。
func (r *APIKeyRepository) Delete(ctx context.Context, identity string) (bool, error) {
	var deleted bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("public_key = ?", identity).Delete(&APIKeyCampusRightModel{}).Error; err != nil {
			return err
		}
		res := tx.Where("identity = ?", identity).Delete(&APIKeyModel{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to delete api key",
			"operation", "delete_api_key",
			"identity", identity,
			"error", err,
		)
		return false, err
	}
	return deleted, nil
}

// AddCampus はAPIキーにキャンパス権限を付与する。付与済みなら何もしない。
func (r *APIKeyRepository) AddCampus(ctx context.Context, identity string, campusID domain.CampusID) error {
	err := r.db.WithContext(ctx).
		Where(APIKeyCampusRightModel{PublicKey: identity, CampusID: uint64(campusID)}).
		FirstOrCreate(&APIKeyCampusRightModel{}).Error
	if err != nil {
		slog.ErrorContext(ctx, "failed to add campus to api key",
			"operation", "add_campus",
			"identity", identity,
			"campus_id", uint64(campusID),
			"error", err,
		)
		return err
	}
	return nil
}

// RemoveCampus はAPIキーからキャンパス権限を剥奪する。付与されていなかった場合は false を返す。
func (r *APIKeyRepository) RemoveCampus(ctx context.Context, identity string, campusID domain.CampusID) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("public_key = ? AND campus_id = ?", identity, uint64(campusID)).
		Delete(&APIKeyCampusRightModel{})
	if res.Error != nil {
		slog.ErrorContext(ctx, "failed to remove campus from api key",
			"operation", "remove_campus",
			"identity", identity,
			"campus_id", uint64(campusID),
			"error", res.Error,
		)
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}
