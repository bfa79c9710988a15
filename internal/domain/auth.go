package domain

import (
	"errors"
	"fmt"
)

// AdminToken は管理スコープを表すスコープトークン。
const AdminToken = "admin"

// Scope はリクエストが要求するアクセス範囲（特定キャンパスまたは管理）を表す。
type Scope struct {
	Admin  bool
	Campus CampusID
}

// AdminScope は管理スコープを返す。
func AdminScope() Scope {
	return Scope{Admin: true}
}

// CampusScope は指定キャンパスのスコープを返す。
func CampusScope(id CampusID) Scope {
	return Scope{Campus: id}
}

// Token はスコープのトークン表現（"admin" またはキャンパスID）を返す。
func (s Scope) Token() string {
	if s.Admin {
		return AdminToken
	}
	return s.Campus.String()
}

// String は Token と同じ。
func (s Scope) String() string {
	return s.Token()
}

// ParseScope はスコープトークンを解釈する。
func ParseScope(token string) (Scope, error) {
	if token == AdminToken {
		return AdminScope(), nil
	}
	id, err := ParseCampusID(token)
	if err != nil {
		return Scope{}, err
	}
	return CampusScope(id), nil
}

// PrincipalKind は認証された主体の種別。
type PrincipalKind string

const (
	// PrincipalAPIKey はAPIキーによる主体。
	PrincipalAPIKey PrincipalKind = "api_key"
	// PrincipalDataManager はユーザーアカウントによる主体。
	PrincipalDataManager PrincipalKind = "data_manager"
)

// Decision は1リクエストに対する認証結果を表す。
// Authenticated が false の場合は匿名として扱う。
type Decision struct {
	Authenticated bool
	Kind          PrincipalKind
	Name          string
	Admin         bool
	Scope         Scope
}

// Anonymous は未認証の判定を返す。
func Anonymous() *Decision {
	return &Decision{}
}

// RejectReason は認証拒否の理由コード。
type RejectReason string

const (
	ReasonMissingCredentials RejectReason = "MissingCredentials"
	ReasonUnknownIdentity    RejectReason = "UnknownIdentity"
	ReasonBadCredentials     RejectReason = "BadCredentials"
	ReasonStaleRequest       RejectReason = "StaleRequest"
	ReasonUnauthorised       RejectReason = "Unauthorised"
	ReasonForbidden          RejectReason = "Forbidden"
	ReasonNotFound           RejectReason = "NotFound"
)

// RejectionError は認証拒否を表す。
// Error() は理由コードのみを返し、原因は Unwrap でのみ取得できる（ログ用）。
type RejectionError struct {
	Reason RejectReason
	Err    error
}

func (e *RejectionError) Error() string {
	return string(e.Reason)
}

func (e *RejectionError) Unwrap() error {
	return e.Err
}

// Cause は内部ログ用に原因を文字列化する。
func (e *RejectionError) Cause() string {
	if e.Err == nil {
		return ""
	}
	return fmt.Sprint(e.Err)
}

// Reject は拒否エラーを生成する。
func Reject(reason RejectReason, cause error) error {
	return &RejectionError{Reason: reason, Err: cause}
}

// ReasonOf はエラーから拒否理由を取り出す。拒否エラーでなければ空文字を返す。
func ReasonOf(err error) RejectReason {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.Reason
	}
	return ""
}
