package domain

import "errors"

var (
	// ErrAPIKeyNotFound は指定されたIdentityのAPIキーが存在しない場合のエラー。
	ErrAPIKeyNotFound = errors.New("api key not found")

	// ErrDataManagerNotFound は指定されたユーザーが存在しない場合のエラー。
	ErrDataManagerNotFound = errors.New("data manager not found")

	// ErrDataManagerAlreadyExists は同名のユーザーが既に存在する場合のエラー。
	ErrDataManagerAlreadyExists = errors.New("data manager already exists")

	// ErrCampusNotFound は指定されたキャンパスが存在しない場合のエラー。
	ErrCampusNotFound = errors.New("campus not found")

	// ErrCampusNotGranted は権限が付与されていないキャンパスを剥奪しようとした場合のエラー。
	ErrCampusNotGranted = errors.New("campus not granted")

	// ErrInvalidCampusID はキャンパスIDの形式が不正な場合のエラー。
	ErrInvalidCampusID = errors.New("invalid campus ID")

	// ErrInvalidIdentity はAPIキーIdentityの形式が不正な場合のエラー。
	ErrInvalidIdentity = errors.New("invalid identity")

	// ErrInvalidUsername はユーザー名が不正な場合のエラー。
	ErrInvalidUsername = errors.New("invalid username")

	// ErrInvalidPassword はパスワードが不正な場合のエラー。
	ErrInvalidPassword = errors.New("invalid password")

	// ErrInvalidOwnerName は所有者名が不正な場合のエラー。
	ErrInvalidOwnerName = errors.New("invalid owner name")

	// ErrInvalidCampusName はキャンパス名が不正な場合のエラー。
	ErrInvalidCampusName = errors.New("invalid campus name")

	// ErrKeyCustody は秘密鍵の保管・取得・削除に失敗した場合のエラー。
	ErrKeyCustody = errors.New("key custody failure")

	// ErrMalformedEnvelope は認証情報の形式が不正な場合のエラー。
	ErrMalformedEnvelope = errors.New("malformed credential envelope")

	// ErrInvalidTimestamp はタイムスタンプを解釈できない場合のエラー。
	ErrInvalidTimestamp = errors.New("invalid timestamp")

	// ErrMigrationFailed はマイグレーション実行時のエラー。
	ErrMigrationFailed = errors.New("migration failed")

	// ErrInvalidMigrationFile はマイグレーションファイルのフォーマットが不正な場合のエラー。
	ErrInvalidMigrationFile = errors.New("invalid migration file")
)
