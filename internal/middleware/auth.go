package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"penelope-api/internal/auth"
	"penelope-api/internal/domain"
	"penelope-api/pkg/httputil"
)

type decisionKey struct{}

// WithDecision は認証結果をコンテキストに格納する。
func WithDecision(ctx context.Context, d *domain.Decision) context.Context {
	return context.WithValue(ctx, decisionKey{}, d)
}

// DecisionFromContext は RequireScope が格納した認証結果を返す。
// 未認証のルートでは匿名の判定を返す。
func DecisionFromContext(ctx context.Context) *domain.Decision {
	if d, ok := ctx.Value(decisionKey{}).(*domain.Decision); ok && d != nil {
		return d
	}
	return domain.Anonymous()
}

// RejectionStatus は拒否理由をHTTPステータスに対応付ける。
func RejectionStatus(reason domain.RejectReason) int {
	switch reason {
	case domain.ReasonForbidden:
		return http.StatusForbidden
	case domain.ReasonNotFound:
		return http.StatusNotFound
	default:
		return http.StatusUnauthorized
	}
}

func rejectionCode(reason domain.RejectReason) string {
	switch reason {
	case domain.ReasonMissingCredentials:
		return "MISSING_CREDENTIALS"
	case domain.ReasonUnknownIdentity:
		return "UNKNOWN_IDENTITY"
	case domain.ReasonBadCredentials:
		return "BAD_CREDENTIALS"
	case domain.ReasonStaleRequest:
		return "STALE_REQUEST"
	case domain.ReasonForbidden:
		return "FORBIDDEN"
	case domain.ReasonNotFound:
		return "NOT_FOUND"
	default:
		return "UNAUTHORISED"
	}
}

// RequireScope はルートのスコープ規則でリクエストを認証・認可するミドルウェアを返す。
// 匿名の判定（プリンシパルを解釈できない場合）もここで拒否する。
func RequireScope(guard *auth.Guard, policy auth.ScopePolicy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			scope, err := policy.Resolve(r)
			if err != nil {
				reject(w, r, "", "", domain.Reject(domain.ReasonNotFound, err))
				return
			}

			decision, flow, err := guard.Authenticate(r, scope)
			if err != nil {
				var rej *domain.RejectionError
				if !errors.As(err, &rej) {
					slog.ErrorContext(ctx, "authentication failed",
						"operation", "authenticate",
						"flow", flow.String(),
						"scope", scope.Token(),
						"error", err,
					)
					httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
					return
				}
				reject(w, r, flow.String(), scope.Token(), rej)
				return
			}
			if !decision.Authenticated {
				reject(w, r, flow.String(), scope.Token(),
					domain.Reject(domain.ReasonMissingCredentials, errors.New("unparseable principal")))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithDecision(ctx, decision)))
		})
	}
}

// RequirePrincipal は RequireScope の後段で、認証済み主体の種別を限定する。
func RequirePrincipal(kind domain.PrincipalKind) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			d := DecisionFromContext(r.Context())
			if !d.Authenticated {
				reject(w, r, "", "", domain.Reject(domain.ReasonMissingCredentials, errors.New("no decision in context")))
				return
			}
			if d.Kind != kind {
				reject(w, r, string(d.Kind), d.Scope.Token(),
					domain.Reject(domain.ReasonForbidden, fmt.Errorf("principal kind %s is not allowed here", d.Kind)))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func reject(w http.ResponseWriter, r *http.Request, flow, scope string, err error) {
	var rej *domain.RejectionError
	errors.As(err, &rej)

	WriteAuditLog(r.Context(), "AUTHENTICATE", scope, flow, ResultRejected,
		"reason", string(rej.Reason),
		"cause", rej.Cause(),
		"path", r.URL.Path,
	)
	httputil.Error(w, RejectionStatus(rej.Reason), rejectionCode(rej.Reason), string(rej.Reason))
}
