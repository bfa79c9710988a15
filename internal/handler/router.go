package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"penelope-api/internal/auth"
	"penelope-api/internal/domain"
	"penelope-api/internal/middleware"
	"penelope-api/pkg/httputil"
)

// Handlers はルーターに登録するハンドラ群。
type Handlers struct {
	APIKeys      *APIKeyHandler
	DataManagers *DataManagerHandler
	Campuses     *CampusHandler
	KeyPair      *KeyPairHandler
	// Content はキャンパス配下の鳥データ・ファイルを扱う。nil の場合は 501 を返す。
	Content http.Handler
}

// NewRouter はルーターを生成する。
// 管理系ルートは管理スコープ、キャンパス配下のルートはURLのキャンパスIDのスコープで保護する。
func NewRouter(h Handlers, guard *auth.Guard) http.Handler {
	r := chi.NewRouter()

	// ミドルウェア
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)

	// 公開ルート
	r.Get("/key", h.KeyPair.GetPublicKey)
	r.Post("/api/users/validate", h.DataManagers.Validate)

	// 管理スコープ
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireScope(guard, auth.AdminScope()))

		r.Post("/api/apikeys/new", h.APIKeys.Create)
		r.Get("/api/apikeys/list", h.APIKeys.List)
		r.Delete("/api/apikeys/remove", h.APIKeys.Remove)
		r.Patch("/api/apikeys/addCampus", h.APIKeys.AddCampus)
		r.Patch("/api/apikeys/removeCampus", h.APIKeys.RemoveCampus)

		// ユーザー管理はユーザーアカウントの管理者のみ
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequirePrincipal(domain.PrincipalDataManager))

			r.Post("/api/users/new", h.DataManagers.Create)
			r.Get("/api/users/list", h.DataManagers.List)
			r.Delete("/api/users/remove", h.DataManagers.Remove)
			r.Patch("/api/users/addCampus", h.DataManagers.AddCampus)
			r.Patch("/api/users/removeCampus", h.DataManagers.RemoveCampus)
		})

		r.Post("/api/campus/new", h.Campuses.Create)
		r.Get("/api/campus/list", h.Campuses.List)
		r.Delete("/api/campus/remove", h.Campuses.Remove)
	})

	// キャンパススコープ
	content := h.Content
	if content == nil {
		content = http.HandlerFunc(notImplemented)
	}
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireScope(guard, auth.CampusScope("campus_id")))

		r.Handle("/api/birds/{campus_id}", content)
		r.Handle("/api/birds/{campus_id}/*", content)
		r.Handle("/api/file/{campus_id}", content)
		r.Handle("/api/file/{campus_id}/*", content)
	})

	return r
}

func notImplemented(w http.ResponseWriter, r *http.Request) {
	httputil.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "content handler is not configured")
}
