package handler

import (
	"net/http"

	"penelope-api/internal/usecase"
	"penelope-api/pkg/httputil"
)

// APIKeyHandler はAPIキー管理のHTTPハンドラ。
type APIKeyHandler struct {
	service *usecase.APIKeyService
}

// NewAPIKeyHandler は新しいAPIKeyHandlerを生成する。
func NewAPIKeyHandler(service *usecase.APIKeyService) *APIKeyHandler {
	return &APIKeyHandler{service: service}
}

// ProvisionedAPIKeyResponse は発行したAPIキーのレスポンス形式。公開鍵はこの一度だけ返す。
type ProvisionedAPIKeyResponse struct {
	Identity  string `json:"identity"`
	PublicKey string `json:"public_key"`
	OwnerName string `json:"owner_name"`
	Admin     bool   `json:"admin"`
}

// APIKeyResponse はAPIキーのレスポンス形式。
type APIKeyResponse struct {
	Identity  string   `json:"identity"`
	OwnerName string   `json:"owner_name"`
	Admin     bool     `json:"admin"`
	Campuses  []uint64 `json:"campuses"`
}

// APIKeyListResponse はAPIキー一覧のレスポンス形式。
type APIKeyListResponse struct {
	APIKeys []APIKeyResponse `json:"api_keys"`
}

// Create はAPIキーを発行する。
func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	admin, err := queryBool(r, "admin")
	if err != nil {
		writeInvalidParameter(w, "admin")
		return
	}
	ownerName := r.URL.Query().Get("ownerName")

	key, err := h.service.CreateAPIKey(r.Context(), ownerName, admin)
	if err != nil {
		writeServiceError(w, r, "CREATE_API_KEY", ownerName, err)
		return
	}

	writeSuccessAudit(r, "CREATE_API_KEY", key.Identity)
	httputil.JSON(w, http.StatusCreated, ProvisionedAPIKeyResponse{
		Identity:  key.Identity,
		PublicKey: key.PublicKey,
		OwnerName: key.OwnerName,
		Admin:     key.Admin,
	})
}

// List は全APIキーを返す。
func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	keys, err := h.service.ListAPIKeys(r.Context())
	if err != nil {
		writeServiceError(w, r, "LIST_API_KEYS", "", err)
		return
	}

	resp := APIKeyListResponse{APIKeys: make([]APIKeyResponse, 0, len(keys))}
	for _, k := range keys {
		resp.APIKeys = append(resp.APIKeys, APIKeyResponse{
			Identity:  k.Identity,
			OwnerName: k.OwnerName,
			Admin:     k.Admin,
			Campuses:  campusIDs(k.Campuses),
		})
	}
	httputil.JSON(w, http.StatusOK, resp)
}

// Remove はAPIキーと秘密鍵を削除する。
func (h *APIKeyHandler) Remove(w http.ResponseWriter, r *http.Request) {
	identity := r.URL.Query().Get("targetIdentity")
	if identity == "" {
		writeInvalidParameter(w, "targetIdentity")
		return
	}

	if err := h.service.RemoveAPIKey(r.Context(), identity); err != nil {
		writeServiceError(w, r, "REMOVE_API_KEY", identity, err)
		return
	}

	writeSuccessAudit(r, "REMOVE_API_KEY", identity)
	httputil.NoContent(w)
}

// AddCampus はAPIキーにキャンパス権限を付与する。
func (h *APIKeyHandler) AddCampus(w http.ResponseWriter, r *http.Request) {
	h.changeCampus(w, r, "GRANT_API_KEY_CAMPUS", h.service.GrantCampus)
}

// RemoveCampus はAPIキーからキャンパス権限を剥奪する。
func (h *APIKeyHandler) RemoveCampus(w http.ResponseWriter, r *http.Request) {
	h.changeCampus(w, r, "REVOKE_API_KEY_CAMPUS", h.service.RevokeCampus)
}

func (h *APIKeyHandler) changeCampus(w http.ResponseWriter, r *http.Request, operation string, apply campusChange) {
	identity := r.URL.Query().Get("targetIdentity")
	if identity == "" {
		writeInvalidParameter(w, "targetIdentity")
		return
	}
	campusID, err := queryCampusID(r, "campusId")
	if err != nil {
		writeInvalidParameter(w, "campusId")
		return
	}

	subject := identity + "/" + campusID.String()
	if err := apply(r.Context(), identity, campusID); err != nil {
		writeServiceError(w, r, operation, subject, err)
		return
	}

	writeSuccessAudit(r, operation, subject)
	httputil.NoContent(w)
}
