// Package main はAPIサーバーのエントリポイント。
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"penelope-api/config"
	"penelope-api/internal/auth"
	"penelope-api/internal/handler"
	"penelope-api/internal/infra"
	"penelope-api/internal/repository"
	"penelope-api/internal/rsautil"
	"penelope-api/internal/usecase"
)

func main() {
	ctx := context.Background()

	// .envファイルを読み込む（存在しない場合は無視）
	// 既存の環境変数は上書きしない
	_ = godotenv.Load()

	cfg := config.Load()

	// トレーサー初期化（ロガー設定の前に実行）
	tp, err := infra.InitTracer(ctx, cfg)
	if err != nil {
		slog.Error("failed to init tracer", "error", err)
		os.Exit(1)
	}
	if tp != nil {
		defer func() {
			if err := tp.Shutdown(ctx); err != nil {
				slog.Error("failed to shutdown tracer", "error", err)
			}
		}()
	}

	// トレース情報付きロガーを設定
	infra.SetupLogger(cfg)

	// DB初期化
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is not set")
		os.Exit(1)
	}
	db, err := infra.NewDB(cfg.DatabaseURL, cfg)
	if err != nil {
		slog.Error("failed to init database", "error", err)
		os.Exit(1)
	}

	// 秘密鍵の保管先
	keyStore, closers, err := openKeyStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to init key store", "backend", cfg.KeyStoreBackend, "error", err)
		os.Exit(1)
	}
	defer func() {
		for _, c := range closers {
			if err := c.Close(); err != nil {
				slog.Error("failed to close key store", "error", err)
			}
		}
	}()

	// サーバー鍵ペアは起動ごとに生成し、プロセス内でのみ保持する
	serverKey, err := rsautil.GenerateKeyPair()
	if err != nil {
		slog.Error("failed to generate server key pair", "error", err)
		os.Exit(1)
	}

	// DI
	campusRepo := repository.NewCampusRepository(db)
	apiKeyRepo := repository.NewAPIKeyRepository(db)
	userRepo := repository.NewDataManagerRepository(db)
	passwords := infra.NewBcryptHasher(cfg.BcryptCost)

	authOpts := []auth.Option{auth.WithWindow(cfg.FreshnessWindow)}
	apiKeyAuth := auth.NewAPIKeyAuthenticator(apiKeyRepo, keyStore, authOpts...)
	userAuth := auth.NewUserAuthenticator(serverKey, userRepo, campusRepo, passwords, authOpts...)
	guard := auth.NewGuard(auth.NewExtractor(auth.Headers{
		Identity:    cfg.IdentityHeader,
		Key:         cfg.KeyHeader,
		Credentials: cfg.CredentialsHeader,
	}), apiKeyAuth, userAuth)

	apiKeyService := usecase.NewAPIKeyService(apiKeyRepo, keyStore, campusRepo)
	userService := usecase.NewDataManagerService(userRepo, campusRepo, passwords, userAuth)
	campusService := usecase.NewCampusService(campusRepo)

	if cfg.InjectAdmin {
		created, err := userService.EnsureSysadmin(ctx, cfg.AdminUsername, cfg.AdminPassword)
		if err != nil {
			slog.Error("failed to inject sysadmin", "username", cfg.AdminUsername, "error", err)
			os.Exit(1)
		}
		slog.Info("sysadmin injection", "username", cfg.AdminUsername, "created", created)
	}

	keyPairHandler, err := handler.NewKeyPairHandler(serverKey, cfg.PublicKeyHeader)
	if err != nil {
		slog.Error("failed to init key pair handler", "error", err)
		os.Exit(1)
	}

	router := handler.NewRouter(handler.Handlers{
		APIKeys: handler.NewAPIKeyHandler(apiKeyService),
		DataManagers: handler.NewDataManagerHandler(userService, handler.ValidationHeaders{
			Credentials: cfg.CredentialsHeader,
			Valid:       cfg.ValidHeader,
			Admin:       cfg.AdminHeader,
			Campuses:    cfg.CampusesHeader,
			CampusesAll: cfg.CampusesAll,
		}),
		Campuses: handler.NewCampusHandler(campusService),
		KeyPair:  keyPairHandler,
	}, guard)

	var h http.Handler = router
	if cfg.OtelEnabled {
		h = otelhttp.NewHandler(router, cfg.OtelServiceName)
	}

	// サーバー起動
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		<-sigCh

		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("starting server", "port", cfg.Port, "key_store", cfg.KeyStoreBackend, "sealed", cfg.SealKeys)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// openKeyStore は設定に応じた秘密鍵の保管先を開く。
// KEY_STORE_SEAL が有効な場合は Cloud KMS で暗号化して保管する。
func openKeyStore(ctx context.Context, cfg *config.Config) (infra.KeyStore, []io.Closer, error) {
	var (
		store   infra.KeyStore
		closers []io.Closer
	)

	switch cfg.KeyStoreBackend {
	case "file":
		fs, err := infra.NewFileKeyStore(cfg.KeysDir)
		if err != nil {
			return nil, nil, err
		}
		store = fs
	case "badger":
		bs, err := infra.OpenBadgerKeyStore(cfg.BadgerDir)
		if err != nil {
			return nil, nil, err
		}
		store = bs
		closers = append(closers, bs)
	default:
		return nil, nil, fmt.Errorf("unknown key store backend %q", cfg.KeyStoreBackend)
	}

	if cfg.SealKeys {
		kmsClient, err := infra.NewKMSClient(ctx, cfg.KMSKeyName)
		if err != nil {
			for _, c := range closers {
				_ = c.Close()
			}
			return nil, nil, fmt.Errorf("init KMS client: %w", err)
		}
		// KMS クライアントは保管先より先に閉じる
		closers = append([]io.Closer{kmsClient}, closers...)
		store = infra.NewSealedKeyStore(store, kmsClient)
	}
	return store, closers, nil
}
