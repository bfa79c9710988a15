// Package migrations はスキーマ定義SQLを埋め込んで提供する。
package migrations

import "embed"

// Files は {version}_{name}.sql 形式のマイグレーションファイル群。
//
//go:embed *.sql
var Files embed.FS
