package auth

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"penelope-api/internal/domain"
)

// ScopePolicy はルーティング時に決定されるスコープ解決規則。
type ScopePolicy interface {
	Resolve(r *http.Request) (domain.Scope, error)
}

type campusScopePolicy struct {
	param string
}

// CampusScope はURLパラメータ param のキャンパスIDをスコープとする規則を返す。
// 鳥データ・アセットなど1キャンパスに属するリソースに使う。
func CampusScope(param string) ScopePolicy {
	return campusScopePolicy{param: param}
}

func (p campusScopePolicy) Resolve(r *http.Request) (domain.Scope, error) {
	id, err := domain.ParseCampusID(chi.URLParam(r, p.param))
	if err != nil {
		return domain.Scope{}, err
	}
	return domain.CampusScope(id), nil
}

type adminScopePolicy struct{}

// AdminScope は常に管理スコープを返す規則。キャンパス・APIキー・ユーザー管理に使う。
func AdminScope() ScopePolicy {
	return adminScopePolicy{}
}

func (adminScopePolicy) Resolve(*http.Request) (domain.Scope, error) {
	return domain.AdminScope(), nil
}

// Flow は認証フローの種別。
type Flow int

const (
	// FlowAPIKey は IDENTITY/KEY ヘッダーによるAPIキーフロー。
	FlowAPIKey Flow = iota
	// FlowUser は Credentials ヘッダーによるユーザーフロー。
	FlowUser
)

func (f Flow) String() string {
	if f == FlowUser {
		return "user"
	}
	return "api_key"
}

// Headers は認証に使うヘッダー名。
type Headers struct {
	Identity    string
	Key         string
	Credentials string
}

// RawCredentials は抽出直後の未検証のプリンシパルと認証情報。空文字は欠落を表す。
type RawCredentials struct {
	Flow       Flow
	Principal  string
	Credential string
}

// Extractor はリクエストヘッダーとスコープから RawCredentials を組み立てる。
// 復号・DB参照・時刻チェックは行わない。
type Extractor struct {
	headers Headers
}

// NewExtractor は新しいExtractorを生成する。
func NewExtractor(headers Headers) *Extractor {
	return &Extractor{headers: headers}
}

// Extract は認証フローを判定し、プリンシパルと認証情報を返す。
//
// APIキーフロー: principal = "<IDENTITY>_<scope>", credential = KEY ヘッダーの値。
// ユーザーフロー: principal = Credentials ヘッダーの暗号文, credential = スコープのクレーム。
func (e *Extractor) Extract(r *http.Request, scope domain.Scope) RawCredentials {
	identity := r.Header.Get(e.headers.Identity)
	credentials := r.Header.Get(e.headers.Credentials)

	if identity == "" && credentials != "" {
		return RawCredentials{
			Flow:       FlowUser,
			Principal:  credentials,
			Credential: scope.Token(),
		}
	}

	raw := RawCredentials{
		Flow:       FlowAPIKey,
		Credential: r.Header.Get(e.headers.Key),
	}
	if identity != "" {
		raw.Principal = domain.APIKeyPrincipal{Identity: identity, ScopeToken: scope.Token()}.String()
	}
	return raw
}
