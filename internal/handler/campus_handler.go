package handler

import (
	"net/http"
	"time"

	"penelope-api/internal/middleware"
	"penelope-api/internal/usecase"
	"penelope-api/pkg/httputil"
)

// CampusHandler はキャンパス管理のHTTPハンドラ。
type CampusHandler struct {
	service *usecase.CampusService
}

// NewCampusHandler は新しいCampusHandlerを生成する。
func NewCampusHandler(service *usecase.CampusService) *CampusHandler {
	return &CampusHandler{service: service}
}

// CampusResponse はキャンパスのレスポンス形式。
type CampusResponse struct {
	ID        uint64 `json:"id"`
	Name      string `json:"name"`
	Author    string `json:"author"`
	CreatedAt string `json:"created_at"`
}

// CampusListResponse はキャンパス一覧のレスポンス形式。
type CampusListResponse struct {
	Campuses []CampusResponse `json:"campuses"`
}

// Create はキャンパスを作成する。作成者は認証済みの主体。
func (h *CampusHandler) Create(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	author := middleware.DecisionFromContext(r.Context()).Name

	campus, err := h.service.CreateCampus(r.Context(), name, author)
	if err != nil {
		writeServiceError(w, r, "CREATE_CAMPUS", name, err)
		return
	}

	writeSuccessAudit(r, "CREATE_CAMPUS", campus.ID.String())
	httputil.JSON(w, http.StatusCreated, CampusResponse{
		ID:        uint64(campus.ID),
		Name:      campus.Name,
		Author:    campus.Author,
		CreatedAt: campus.CreatedAt.Format(time.RFC3339),
	})
}

// List は全キャンパスを返す。
func (h *CampusHandler) List(w http.ResponseWriter, r *http.Request) {
	campuses, err := h.service.ListCampuses(r.Context())
	if err != nil {
		writeServiceError(w, r, "LIST_CAMPUSES", "", err)
		return
	}

	resp := CampusListResponse{Campuses: make([]CampusResponse, 0, len(campuses))}
	for _, c := range campuses {
		resp.Campuses = append(resp.Campuses, CampusResponse{
			ID:        uint64(c.ID),
			Name:      c.Name,
			Author:    c.Author,
			CreatedAt: c.CreatedAt.Format(time.RFC3339),
		})
	}
	httputil.JSON(w, http.StatusOK, resp)
}

// Remove はキャンパスと関連する権限を削除する。
func (h *CampusHandler) Remove(w http.ResponseWriter, r *http.Request) {
	id, err := queryCampusID(r, "id")
	if err != nil {
		writeInvalidParameter(w, "id")
		return
	}

	if err := h.service.RemoveCampus(r.Context(), id); err != nil {
		writeServiceError(w, r, "REMOVE_CAMPUS", id.String(), err)
		return
	}

	writeSuccessAudit(r, "REMOVE_CAMPUS", id.String())
	httputil.NoContent(w)
}
