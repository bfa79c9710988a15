// Package main はCLIツールのエントリポイント。
package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"penelope-api/config"
)

const version = "1.0.0"

var (
	apiURL   string
	output   string
	timeout  time.Duration
	timeZone string

	// 管理操作の認証情報（ユーザーまたはAPIキーのどちらか）
	username  string
	password  string
	identity  string
	publicKey string
)

var cfg *config.Config

func main() {
	rootCmd := &cobra.Command{
		Use:   "penelopectl",
		Short: "Penelope API administration CLI",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			_ = godotenv.Load()
			cfg = config.Load()
			if apiURL == "" {
				apiURL = os.Getenv("PENELOPECTL_API_URL")
			}
			if username == "" {
				username = os.Getenv("PENELOPECTL_USERNAME")
			}
			if password == "" {
				password = os.Getenv("PENELOPECTL_PASSWORD")
			}
			if identity == "" {
				identity = os.Getenv("PENELOPECTL_IDENTITY")
			}
			if publicKey == "" {
				publicKey = os.Getenv("PENELOPECTL_PUBLIC_KEY")
			}
			if timeZone == "" {
				timeZone = cfg.TimeZone
			}
		},
	}

	// グローバルフラグ
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&apiURL, "api-url", "", "API endpoint URL (or set PENELOPECTL_API_URL)")
	pf.StringVar(&output, "output", "text", "Output format: text, json")
	pf.DurationVar(&timeout, "timeout", 30*time.Second, "Request timeout")
	pf.StringVar(&timeZone, "time-zone", "", "Time zone for envelope timestamps (defaults to AUTH_TIME_ZONE)")
	pf.StringVar(&username, "username", "", "Data manager username (or set PENELOPECTL_USERNAME)")
	pf.StringVar(&password, "password", "", "Data manager password (or set PENELOPECTL_PASSWORD)")
	pf.StringVar(&identity, "identity", "", "API key identity (or set PENELOPECTL_IDENTITY)")
	pf.StringVar(&publicKey, "public-key", "", "API key public key, Base64 (or set PENELOPECTL_PUBLIC_KEY)")

	// サブコマンド登録
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(campusCmd())
	rootCmd.AddCommand(envelopeCmd())
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// versionCmd はバージョン情報を表示する。
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("penelopectl version %s\n", version)
		},
	}
}

func headersFromConfig() headerNames {
	return headerNames{
		Identity:    cfg.IdentityHeader,
		Key:         cfg.KeyHeader,
		Credentials: cfg.CredentialsHeader,
		PublicKey:   cfg.PublicKeyHeader,
	}
}

// newClient はフラグから認証付きのAPIクライアントを組み立てる。
// APIキーが指定されていればAPIキーフロー、そうでなければユーザーフローを使う。
func newClient() (*apiClient, error) {
	if apiURL == "" {
		return nil, errors.New("--api-url is required (or set PENELOPECTL_API_URL)")
	}
	loc, err := time.LoadLocation(timeZone)
	if err != nil {
		return nil, fmt.Errorf("loading time zone %q: %w", timeZone, err)
	}

	c := &apiClient{
		baseURL: apiURL,
		http:    &http.Client{Timeout: timeout},
		headers: headersFromConfig(),
	}
	switch {
	case identity != "":
		if publicKey == "" {
			return nil, errors.New("--public-key is required with --identity")
		}
		c.signer = &apiKeySigner{client: c, identity: identity, publicKey: publicKey, location: loc, now: time.Now}
	case username != "":
		if password == "" {
			return nil, errors.New("--password is required with --username")
		}
		c.signer = &userSigner{client: c, username: username, password: password, location: loc, now: time.Now}
	default:
		return nil, errors.New("credentials are required: --username/--password or --identity/--public-key")
	}
	return c, nil
}
