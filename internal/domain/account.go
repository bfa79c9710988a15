// Package domain はドメインモデルとビジネスルールを定義する。
package domain

import (
	"slices"
	"strconv"
	"time"
)

// CampusID はキャンパスの識別子。権限付与の単位となる。
type CampusID uint64

// String はキャンパスIDの10進表現を返す。
func (id CampusID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ParseCampusID は10進文字列をキャンパスIDに変換する。
func ParseCampusID(s string) (CampusID, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil || n == 0 {
		return 0, ErrInvalidCampusID
	}
	return CampusID(n), nil
}

// Campus はキャンパスエンティティを表す。
type Campus struct {
	ID        CampusID
	Name      string
	Author    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// APIKey は機械用のAPIキーを表す。秘密鍵は Identity をキーに別途保管される。
type APIKey struct {
	Identity  string
	OwnerName string
	Admin     bool
	Campuses  []CampusID
}

// HasCampus はキーが指定キャンパスへの権限を持つか返す。
func (k *APIKey) HasCampus(id CampusID) bool {
	return slices.Contains(k.Campuses, id)
}

// ProvisionedAPIKey は発行直後のAPIキーと、その公開鍵（Base64）を表す。
// 公開鍵は発行時に一度だけ返す。
type ProvisionedAPIKey struct {
	APIKey
	PublicKey string
}

// DataManager は人間のユーザーアカウントを表す。
type DataManager struct {
	Username     string
	PasswordHash string
	Sysadmin     bool
	Campuses     []CampusID
}

// HasCampus はユーザーが指定キャンパスへの権限を持つか返す。
func (d *DataManager) HasCampus(id CampusID) bool {
	return slices.Contains(d.Campuses, id)
}
