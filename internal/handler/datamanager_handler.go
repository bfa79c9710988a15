package handler

import (
	"net/http"
	"strconv"
	"strings"

	"penelope-api/internal/usecase"
	"penelope-api/pkg/httputil"
)

// ValidationHeaders はユーザー認証情報検証のリクエスト・レスポンスヘッダー名。
type ValidationHeaders struct {
	Credentials string
	Valid       string
	Admin       string
	Campuses    string
	// CampusesAll はシステム管理者（全キャンパス）を表す値。
	CampusesAll string
}

// DataManagerHandler はデータ管理者管理のHTTPハンドラ。
type DataManagerHandler struct {
	service *usecase.DataManagerService
	headers ValidationHeaders
}

// NewDataManagerHandler は新しいDataManagerHandlerを生成する。
func NewDataManagerHandler(service *usecase.DataManagerService, headers ValidationHeaders) *DataManagerHandler {
	return &DataManagerHandler{service: service, headers: headers}
}

// DataManagerResponse はデータ管理者のレスポンス形式。パスワードハッシュは含めない。
type DataManagerResponse struct {
	Username string   `json:"username"`
	Sysadmin bool     `json:"sysadmin"`
	Campuses []uint64 `json:"campuses"`
}

// DataManagerListResponse はデータ管理者一覧のレスポンス形式。
type DataManagerListResponse struct {
	DataManagers []DataManagerResponse `json:"data_managers"`
}

// Create はデータ管理者を作成する。
func (h *DataManagerHandler) Create(w http.ResponseWriter, r *http.Request) {
	sysadmin, err := queryBool(r, "sysadmin")
	if err != nil {
		writeInvalidParameter(w, "sysadmin")
		return
	}
	q := r.URL.Query()
	username := q.Get("username")

	dm, err := h.service.CreateDataManager(r.Context(), username, q.Get("password"), sysadmin)
	if err != nil {
		writeServiceError(w, r, "CREATE_USER", username, err)
		return
	}

	writeSuccessAudit(r, "CREATE_USER", dm.Username)
	httputil.JSON(w, http.StatusCreated, DataManagerResponse{
		Username: dm.Username,
		Sysadmin: dm.Sysadmin,
		Campuses: campusIDs(dm.Campuses),
	})
}

// List は全データ管理者を返す。
func (h *DataManagerHandler) List(w http.ResponseWriter, r *http.Request) {
	managers, err := h.service.ListDataManagers(r.Context())
	if err != nil {
		writeServiceError(w, r, "LIST_USERS", "", err)
		return
	}

	resp := DataManagerListResponse{DataManagers: make([]DataManagerResponse, 0, len(managers))}
	for _, dm := range managers {
		resp.DataManagers = append(resp.DataManagers, DataManagerResponse{
			Username: dm.Username,
			Sysadmin: dm.Sysadmin,
			Campuses: campusIDs(dm.Campuses),
		})
	}
	httputil.JSON(w, http.StatusOK, resp)
}

// Remove はデータ管理者を削除する。
func (h *DataManagerHandler) Remove(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		writeInvalidParameter(w, "username")
		return
	}

	if err := h.service.RemoveDataManager(r.Context(), username); err != nil {
		writeServiceError(w, r, "REMOVE_USER", username, err)
		return
	}

	writeSuccessAudit(r, "REMOVE_USER", username)
	httputil.NoContent(w)
}

// AddCampus はデータ管理者にキャンパス権限を付与する。
func (h *DataManagerHandler) AddCampus(w http.ResponseWriter, r *http.Request) {
	h.changeCampus(w, r, "GRANT_USER_CAMPUS", h.service.GrantCampus)
}

// RemoveCampus はデータ管理者からキャンパス権限を剥奪する。
func (h *DataManagerHandler) RemoveCampus(w http.ResponseWriter, r *http.Request) {
	h.changeCampus(w, r, "REVOKE_USER_CAMPUS", h.service.RevokeCampus)
}

func (h *DataManagerHandler) changeCampus(w http.ResponseWriter, r *http.Request, operation string, apply campusChange) {
	username := r.URL.Query().Get("username")
	if username == "" {
		writeInvalidParameter(w, "username")
		return
	}
	campusID, err := queryCampusID(r, "campusID")
	if err != nil {
		writeInvalidParameter(w, "campusID")
		return
	}

	subject := username + "/" + campusID.String()
	if err := apply(r.Context(), username, campusID); err != nil {
		writeServiceError(w, r, operation, subject, err)
		return
	}

	writeSuccessAudit(r, operation, subject)
	httputil.NoContent(w)
}

// Validate は Credentials ヘッダーを検証し、結果をレスポンスヘッダーで返す。
// 認証失敗も 204 で返し、Valid ヘッダーが false になる。
func (h *DataManagerHandler) Validate(w http.ResponseWriter, r *http.Request) {
	v, err := h.service.Validate(r.Context(), r.Header.Get(h.headers.Credentials))
	if err != nil {
		writeServiceError(w, r, "VALIDATE_USER", "", err)
		return
	}

	campuses := ""
	switch {
	case v.Admin:
		campuses = h.headers.CampusesAll
	case v.Valid:
		ids := make([]string, len(v.Campuses))
		for i, id := range v.Campuses {
			ids[i] = id.String()
		}
		campuses = strings.Join(ids, ",")
	}

	w.Header().Set(h.headers.Valid, strconv.FormatBool(v.Valid))
	w.Header().Set(h.headers.Admin, strconv.FormatBool(v.Admin))
	w.Header().Set(h.headers.Campuses, campuses)
	httputil.NoContent(w)
}
