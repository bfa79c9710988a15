package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"penelope-api/internal/auth"
	"penelope-api/internal/domain"
	"penelope-api/internal/infra"
	"penelope-api/internal/repository"
	"penelope-api/internal/rsautil"
	"penelope-api/internal/usecase"
	"penelope-api/pkg/httputil"
)

var serverKeyPair = sync.OnceValues(rsautil.GenerateKeyPair)

var testNow = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

// setupTestDB はテスト用のインメモリSQLiteデータベースを作成する。
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	statements := []string{
		`CREATE TABLE campuses (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			author TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE api_keys (
			identity TEXT PRIMARY KEY,
			owner_name TEXT NOT NULL,
			admin BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE apikeys_campus_rights (
			public_key TEXT NOT NULL,
			campus_id INTEGER NOT NULL,
			PRIMARY KEY (public_key, campus_id)
		)`,
		`CREATE TABLE data_managers (
			username TEXT PRIMARY KEY,
			password TEXT NOT NULL,
			sysadmin BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE user_campus_rights (
			username TEXT NOT NULL,
			campus_id INTEGER NOT NULL,
			PRIMARY KEY (username, campus_id)
		)`,
	}
	for _, stmt := range statements {
		if err := db.Exec(stmt).Error; err != nil {
			t.Fatalf("failed to create table: %v", err)
		}
	}
	return db
}

// testServer は実際のリポジトリ・認証器を組み立てたルーター。
type testServer struct {
	t         *testing.T
	router    http.Handler
	serverKey *rsautil.KeyPair
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	serverKey, err := serverKeyPair()
	if err != nil {
		t.Fatalf("failed to generate server key pair: %v", err)
	}
	db := setupTestDB(t)
	keyStore, err := infra.NewFileKeyStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create key store: %v", err)
	}

	campusRepo := repository.NewCampusRepository(db)
	apiKeyRepo := repository.NewAPIKeyRepository(db)
	userRepo := repository.NewDataManagerRepository(db)
	passwords := infra.NewBcryptHasher(bcrypt.MinCost)
	clock := auth.WithClock(func() time.Time { return testNow })

	apiKeyAuth := auth.NewAPIKeyAuthenticator(apiKeyRepo, keyStore, clock)
	userAuth := auth.NewUserAuthenticator(serverKey, userRepo, campusRepo, passwords, clock)
	guard := auth.NewGuard(auth.NewExtractor(auth.Headers{
		Identity:    "IDENTITY",
		Key:         "KEY",
		Credentials: "Credentials",
	}), apiKeyAuth, userAuth)

	userService := usecase.NewDataManagerService(userRepo, campusRepo, passwords, userAuth)
	if _, err := userService.EnsureSysadmin(t.Context(), "admin", "pwd"); err != nil {
		t.Fatalf("failed to create sysadmin: %v", err)
	}

	keyPair, err := NewKeyPairHandler(serverKey, "Key")
	if err != nil {
		t.Fatalf("failed to create key pair handler: %v", err)
	}

	router := NewRouter(Handlers{
		APIKeys: NewAPIKeyHandler(usecase.NewAPIKeyService(apiKeyRepo, keyStore, campusRepo)),
		DataManagers: NewDataManagerHandler(userService, ValidationHeaders{
			Credentials: "Credentials",
			Valid:       "Valid",
			Admin:       "Admin",
			Campuses:    "Campuses",
			CampusesAll: "-1",
		}),
		Campuses: NewCampusHandler(usecase.NewCampusService(campusRepo)),
		KeyPair:  keyPair,
	}, guard)

	return &testServer{t: t, router: router, serverKey: serverKey}
}

// asUser はユーザーフローの Credentials ヘッダーを返す。
func (s *testServer) asUser(username, password string, sentAt time.Time) map[string]string {
	s.t.Helper()
	env := domain.UserEnvelope{Username: username, Password: password, SentAt: sentAt}
	ct, err := rsautil.Encrypt(s.serverKey.Public, env.String())
	if err != nil {
		s.t.Fatalf("failed to encrypt credentials: %v", err)
	}
	return map[string]string{"Credentials": ct}
}

// asAPIKey はAPIキーフローの IDENTITY/KEY ヘッダーを返す。
func (s *testServer) asAPIKey(key ProvisionedAPIKeyResponse, sentAt time.Time) map[string]string {
	s.t.Helper()
	pub, err := rsautil.ParsePublicKey(key.PublicKey)
	if err != nil {
		s.t.Fatalf("failed to parse public key: %v", err)
	}
	env := domain.APIKeyEnvelope{Identity: key.Identity, SentAt: sentAt}
	ct, err := rsautil.Encrypt(pub, env.String())
	if err != nil {
		s.t.Fatalf("failed to encrypt key header: %v", err)
	}
	return map[string]string{"IDENTITY": key.Identity, "KEY": ct}
}

func (s *testServer) do(method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) expect(rec *httptest.ResponseRecorder, want int) {
	s.t.Helper()
	if rec.Code != want {
		s.t.Fatalf("expected status %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return v
}

func TestRouter_PublicKey(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/key", nil)
	s.expect(rec, http.StatusNoContent)

	pub, err := rsautil.ParsePublicKey(rec.Header().Get("Key"))
	if err != nil {
		t.Fatalf("public key header does not parse: %v", err)
	}
	if !pub.Equal(s.serverKey.Public) {
		t.Error("expected server public key")
	}
}

func TestRouter_AdminManagesCampusesAndAPIKeys(t *testing.T) {
	s := newTestServer(t)
	admin := s.asUser("admin", "pwd", testNow)

	rec := s.do(http.MethodPost, "/api/campus/new?name=Penryn", admin)
	s.expect(rec, http.StatusCreated)
	campus := decode[CampusResponse](t, rec)
	if campus.ID != 1 || campus.Author != "admin" {
		t.Errorf("unexpected campus: %+v", campus)
	}

	rec = s.do(http.MethodPost, "/api/apikeys/new?ownerName=bird-app", admin)
	s.expect(rec, http.StatusCreated)
	key := decode[ProvisionedAPIKeyResponse](t, rec)
	if key.Admin || key.OwnerName != "bird-app" || key.PublicKey == "" {
		t.Errorf("unexpected api key: %+v", key)
	}

	// 権限付与前は拒否
	s.expect(s.do(http.MethodGet, "/api/birds/1/list", s.asAPIKey(key, testNow)), http.StatusUnauthorized)

	s.expect(s.do(http.MethodPatch, "/api/apikeys/addCampus?campusId=1&targetIdentity="+key.Identity, admin), http.StatusNoContent)

	// 認証を通過するとコンテンツハンドラ（未設定なので 501）に到達する
	s.expect(s.do(http.MethodGet, "/api/birds/1/list", s.asAPIKey(key, testNow)), http.StatusNotImplemented)
	s.expect(s.do(http.MethodGet, "/api/file/1/photo.jpg", s.asAPIKey(key, testNow)), http.StatusNotImplemented)

	// 非管理キーで管理スコープは不可
	s.expect(s.do(http.MethodGet, "/api/campus/list", s.asAPIKey(key, testNow)), http.StatusUnauthorized)

	// 時間幅外
	s.expect(s.do(http.MethodGet, "/api/birds/1/list", s.asAPIKey(key, testNow.Add(-2*time.Minute))), http.StatusUnauthorized)

	rec = s.do(http.MethodGet, "/api/apikeys/list", admin)
	s.expect(rec, http.StatusOK)
	list := decode[APIKeyListResponse](t, rec)
	if len(list.APIKeys) != 1 || len(list.APIKeys[0].Campuses) != 1 || list.APIKeys[0].Campuses[0] != 1 {
		t.Errorf("unexpected api key list: %+v", list)
	}

	s.expect(s.do(http.MethodPatch, "/api/apikeys/removeCampus?campusId=1&targetIdentity="+key.Identity, admin), http.StatusNoContent)
	s.expect(s.do(http.MethodPatch, "/api/apikeys/removeCampus?campusId=1&targetIdentity="+key.Identity, admin), http.StatusNotFound)

	s.expect(s.do(http.MethodDelete, "/api/apikeys/remove?targetIdentity="+key.Identity, admin), http.StatusNoContent)
	s.expect(s.do(http.MethodGet, "/api/birds/1/list", s.asAPIKey(key, testNow)), http.StatusUnauthorized)
	s.expect(s.do(http.MethodDelete, "/api/apikeys/remove?targetIdentity="+key.Identity, admin), http.StatusNotFound)
}

func TestRouter_AdminAPIKey(t *testing.T) {
	s := newTestServer(t)
	admin := s.asUser("admin", "pwd", testNow)

	rec := s.do(http.MethodPost, "/api/apikeys/new?ownerName=ops&admin=true", admin)
	s.expect(rec, http.StatusCreated)
	key := decode[ProvisionedAPIKeyResponse](t, rec)

	rec = s.do(http.MethodPost, "/api/campus/new?name=Streatham", s.asAPIKey(key, testNow))
	s.expect(rec, http.StatusCreated)
	campus := decode[CampusResponse](t, rec)
	if campus.Author != key.Identity {
		t.Errorf("expected author %s, got %s", key.Identity, campus.Author)
	}
	s.expect(s.do(http.MethodGet, "/api/apikeys/list", s.asAPIKey(key, testNow)), http.StatusOK)

	// ユーザー管理はAPIキーでは操作できない
	for _, tt := range []struct{ method, path string }{
		{http.MethodGet, "/api/users/list"},
		{http.MethodPost, "/api/users/new?username=eve&password=secret"},
		{http.MethodDelete, "/api/users/remove?username=admin"},
	} {
		rec := s.do(tt.method, tt.path, s.asAPIKey(key, testNow))
		s.expect(rec, http.StatusForbidden)
		if body := decode[httputil.ErrorResponse](t, rec); body.Code != "FORBIDDEN" {
			t.Errorf("%s %s: unexpected error code %s", tt.method, tt.path, body.Code)
		}
	}
	s.expect(s.do(http.MethodGet, "/api/users/list", admin), http.StatusOK)
}

func TestRouter_CampusContentRoutes(t *testing.T) {
	s := newTestServer(t)
	admin := s.asUser("admin", "pwd", testNow)

	s.expect(s.do(http.MethodPost, "/api/campus/new?name=Penryn", admin), http.StatusCreated)
	rec := s.do(http.MethodPost, "/api/apikeys/new?ownerName=bird-app", admin)
	s.expect(rec, http.StatusCreated)
	key := decode[ProvisionedAPIKeyResponse](t, rec)
	s.expect(s.do(http.MethodPatch, "/api/apikeys/addCampus?campusId=1&targetIdentity="+key.Identity, admin), http.StatusNoContent)

	tests := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodPost, "/api/birds/1/new", http.StatusNotImplemented},
		{http.MethodGet, "/api/birds/1", http.StatusNotImplemented},
		{http.MethodGet, "/api/birds/1/42", http.StatusNotImplemented},
		{http.MethodPost, "/api/file/1/new", http.StatusNotImplemented},
		{http.MethodGet, "/api/file/1", http.StatusNotImplemented},
		{http.MethodPost, "/api/birds/2/new", http.StatusNotFound},
		{http.MethodPost, "/api/file/x/new", http.StatusNotFound},
		// キャンパスIDが先頭に来る形は存在しない
		{http.MethodPost, "/api/1/birds/new", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			s.expect(s.do(tt.method, tt.path, s.asAPIKey(key, testNow)), tt.want)
		})
	}
}

func TestRouter_DataManagerLifecycle(t *testing.T) {
	s := newTestServer(t)
	admin := s.asUser("admin", "pwd", testNow)

	s.expect(s.do(http.MethodPost, "/api/campus/new?name=Penryn", admin), http.StatusCreated)

	rec := s.do(http.MethodPost, "/api/users/new?username=alice&password=wonderland", admin)
	s.expect(rec, http.StatusCreated)
	if dm := decode[DataManagerResponse](t, rec); dm.Username != "alice" || dm.Sysadmin {
		t.Errorf("unexpected user: %+v", dm)
	}
	s.expect(s.do(http.MethodPost, "/api/users/new?username=alice&password=again", admin), http.StatusConflict)
	s.expect(s.do(http.MethodPost, "/api/users/new?username=bob&password=a=b", admin), http.StatusBadRequest)

	alice := s.asUser("alice", "wonderland", testNow)
	s.expect(s.do(http.MethodGet, "/api/birds/1/list", alice), http.StatusForbidden)

	s.expect(s.do(http.MethodPatch, "/api/users/addCampus?username=alice&campusID=1", admin), http.StatusNoContent)
	s.expect(s.do(http.MethodPatch, "/api/users/addCampus?username=alice&campusID=9", admin), http.StatusNotFound)
	s.expect(s.do(http.MethodPatch, "/api/users/addCampus?username=alice&campusID=x", admin), http.StatusBadRequest)

	s.expect(s.do(http.MethodGet, "/api/birds/1/list", alice), http.StatusNotImplemented)
	s.expect(s.do(http.MethodGet, "/api/birds/9/list", alice), http.StatusNotFound)
	s.expect(s.do(http.MethodGet, "/api/campus/list", alice), http.StatusForbidden)
	s.expect(s.do(http.MethodGet, "/api/birds/1/list", s.asUser("alice", "wrong", testNow)), http.StatusUnauthorized)

	rec = s.do(http.MethodGet, "/api/users/list", admin)
	s.expect(rec, http.StatusOK)
	if list := decode[DataManagerListResponse](t, rec); len(list.DataManagers) != 2 {
		t.Errorf("expected 2 users, got %+v", list)
	}

	s.expect(s.do(http.MethodPatch, "/api/users/removeCampus?username=alice&campusID=1", admin), http.StatusNoContent)
	s.expect(s.do(http.MethodGet, "/api/birds/1/list", alice), http.StatusForbidden)

	s.expect(s.do(http.MethodDelete, "/api/users/remove?username=alice", admin), http.StatusNoContent)
	s.expect(s.do(http.MethodGet, "/api/birds/1/list", alice), http.StatusUnauthorized)
}

func TestRouter_Validate(t *testing.T) {
	s := newTestServer(t)
	admin := s.asUser("admin", "pwd", testNow)
	s.expect(s.do(http.MethodPost, "/api/campus/new?name=Penryn", admin), http.StatusCreated)
	s.expect(s.do(http.MethodPost, "/api/campus/new?name=Truro", admin), http.StatusCreated)
	s.expect(s.do(http.MethodPost, "/api/users/new?username=alice&password=wonderland", admin), http.StatusCreated)
	s.expect(s.do(http.MethodPatch, "/api/users/addCampus?username=alice&campusID=1", admin), http.StatusNoContent)
	s.expect(s.do(http.MethodPatch, "/api/users/addCampus?username=alice&campusID=2", admin), http.StatusNoContent)

	tests := []struct {
		name         string
		headers      map[string]string
		wantValid    string
		wantAdmin    string
		wantCampuses string
	}{
		{"sysadmin", admin, "true", "true", "-1"},
		{"campus user", s.asUser("alice", "wonderland", testNow), "true", "false", "1,2"},
		{"wrong password", s.asUser("alice", "nope", testNow), "false", "false", ""},
		{"stale", s.asUser("alice", "wonderland", testNow.Add(time.Minute)), "false", "false", ""},
		{"missing", nil, "false", "false", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(http.MethodPost, "/api/users/validate", tt.headers)
			s.expect(rec, http.StatusNoContent)
			if got := rec.Header().Get("Valid"); got != tt.wantValid {
				t.Errorf("Valid: want %s, got %s", tt.wantValid, got)
			}
			if got := rec.Header().Get("Admin"); got != tt.wantAdmin {
				t.Errorf("Admin: want %s, got %s", tt.wantAdmin, got)
			}
			if got := rec.Header().Get("Campuses"); got != tt.wantCampuses {
				t.Errorf("Campuses: want %q, got %q", tt.wantCampuses, got)
			}
		})
	}
}

func TestRouter_CampusRemoval(t *testing.T) {
	s := newTestServer(t)
	admin := s.asUser("admin", "pwd", testNow)

	s.expect(s.do(http.MethodPost, "/api/campus/new?name=Penryn", admin), http.StatusCreated)
	s.expect(s.do(http.MethodPost, "/api/campus/new?name=", admin), http.StatusBadRequest)

	rec := s.do(http.MethodGet, "/api/campus/list", admin)
	s.expect(rec, http.StatusOK)
	if list := decode[CampusListResponse](t, rec); len(list.Campuses) != 1 || list.Campuses[0].Name != "Penryn" {
		t.Errorf("unexpected campus list: %+v", list)
	}

	s.expect(s.do(http.MethodDelete, "/api/campus/remove?id=1", admin), http.StatusNoContent)
	rec = s.do(http.MethodDelete, "/api/campus/remove?id=1", admin)
	s.expect(rec, http.StatusNotFound)
	if body := decode[httputil.ErrorResponse](t, rec); body.Code != "CAMPUS_NOT_FOUND" {
		t.Errorf("unexpected error code: %s", body.Code)
	}
}

func TestRouter_RejectsWithoutCredentials(t *testing.T) {
	s := newTestServer(t)

	paths := []string{"/api/campus/list", "/api/apikeys/list", "/api/users/list", "/api/birds/1/list"}
	for _, p := range paths {
		rec := s.do(http.MethodGet, p, nil)
		s.expect(rec, http.StatusUnauthorized)
		if body := decode[httputil.ErrorResponse](t, rec); body.Code != "MISSING_CREDENTIALS" {
			t.Errorf("%s: unexpected error code %s", p, body.Code)
		}
	}
}
