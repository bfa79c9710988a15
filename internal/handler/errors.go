// Package handler はHTTPハンドラを提供する。
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"penelope-api/internal/domain"
	"penelope-api/internal/middleware"
	"penelope-api/pkg/httputil"
)

// serviceError はユースケースのエラーとレスポンスの対応。
type serviceError struct {
	err     error
	status  int
	code    string
	message string
}

var serviceErrors = []serviceError{
	{domain.ErrAPIKeyNotFound, http.StatusNotFound, "API_KEY_NOT_FOUND", "api key not found"},
	{domain.ErrDataManagerNotFound, http.StatusNotFound, "USER_NOT_FOUND", "user not found"},
	{domain.ErrCampusNotFound, http.StatusNotFound, "CAMPUS_NOT_FOUND", "campus not found"},
	{domain.ErrCampusNotGranted, http.StatusNotFound, "CAMPUS_NOT_GRANTED", "campus is not granted"},
	{domain.ErrDataManagerAlreadyExists, http.StatusConflict, "USER_ALREADY_EXISTS", "user already exists"},
	{domain.ErrInvalidCampusID, http.StatusBadRequest, "INVALID_CAMPUS_ID", "invalid campus ID"},
	{domain.ErrInvalidIdentity, http.StatusBadRequest, "INVALID_IDENTITY", "invalid identity"},
	{domain.ErrInvalidUsername, http.StatusBadRequest, "INVALID_USERNAME", "invalid username"},
	{domain.ErrInvalidPassword, http.StatusBadRequest, "INVALID_PASSWORD", "invalid password"},
	{domain.ErrInvalidOwnerName, http.StatusBadRequest, "INVALID_OWNER_NAME", "invalid owner name"},
	{domain.ErrInvalidCampusName, http.StatusBadRequest, "INVALID_CAMPUS_NAME", "invalid campus name"},
}

// writeServiceError はエラーをレスポンスに変換し、監査ログを出力する。
func writeServiceError(w http.ResponseWriter, r *http.Request, operation, subject string, err error) {
	principal := middleware.DecisionFromContext(r.Context()).Name
	middleware.WriteAuditLog(r.Context(), operation, subject, principal, middleware.ResultFailed)

	for _, se := range serviceErrors {
		if errors.Is(err, se.err) {
			httputil.Error(w, se.status, se.code, se.message)
			return
		}
	}

	slog.ErrorContext(r.Context(), "request failed",
		"operation", operation,
		"subject", subject,
		"error", err,
	)
	httputil.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
}

func writeSuccessAudit(r *http.Request, operation, subject string) {
	principal := middleware.DecisionFromContext(r.Context()).Name
	middleware.WriteAuditLog(r.Context(), operation, subject, principal, middleware.ResultSuccess)
}

// campusChange はキャンパス権限の付与・剥奪操作。
type campusChange func(ctx context.Context, subject string, campusID domain.CampusID) error

// queryCampusID はクエリパラメータからキャンパスIDを読む。
func queryCampusID(r *http.Request, name string) (domain.CampusID, error) {
	return domain.ParseCampusID(r.URL.Query().Get(name))
}

// queryBool は省略時 false として真偽値を読む。
func queryBool(r *http.Request, name string) (bool, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}

func writeInvalidParameter(w http.ResponseWriter, name string) {
	httputil.Error(w, http.StatusBadRequest, "INVALID_PARAMETER", "invalid parameter: "+name)
}

func campusIDs(ids []domain.CampusID) []uint64 {
	out := make([]uint64, len(ids))
	for i, id := range ids {
		out[i] = uint64(id)
	}
	return out
}
