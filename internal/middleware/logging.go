// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// 監査ログの結果。
const (
	ResultSuccess  = "SUCCESS"
	ResultFailed   = "FAILED"
	ResultRejected = "REJECTED"
)

// WriteAuditLog は監査ログを出力する。
// subject は操作対象（APIキーIdentity・ユーザー名・キャンパスID・スコープ）、principal は操作した主体。
// attrs には拒否理由など追加の属性を渡せる。パスワードや鍵は渡さないこと。
func WriteAuditLog(ctx context.Context, operation, subject, principal, result string, attrs ...any) {
	args := []any{
		"event_id", uuid.NewString(),
		"operation", operation,
		"subject", subject,
		"principal", principal,
		"result", result,
		"timestamp", time.Now().UTC().Format(time.RFC3339),
	}
	args = append(args, attrs...)
	slog.InfoContext(ctx, "audit", args...)
}
