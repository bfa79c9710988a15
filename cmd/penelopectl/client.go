package main

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"penelope-api/internal/domain"
	"penelope-api/internal/rsautil"
)

// headerNames はサーバーと合わせる認証ヘッダー名。
type headerNames struct {
	Identity    string
	Key         string
	Credentials string
	PublicKey   string
}

// signer はリクエストごとに新しい認証ヘッダーを付与する。
type signer interface {
	sign(ctx context.Context, req *http.Request) error
}

// userSigner はユーザーフローの Credentials ヘッダーを付与する。
// サーバー公開鍵は起動ごとに変わるため、初回リクエスト時に /key から取得する。
type userSigner struct {
	client   *apiClient
	username string
	password string
	location *time.Location
	now      func() time.Time
	pub      *rsa.PublicKey
}

func (s *userSigner) sign(ctx context.Context, req *http.Request) error {
	if s.pub == nil {
		pub, err := s.client.serverPublicKey(ctx)
		if err != nil {
			return err
		}
		s.pub = pub
	}
	env := domain.UserEnvelope{Username: s.username, Password: s.password, SentAt: s.now().In(s.location)}
	ct, err := rsautil.Encrypt(s.pub, env.String())
	if err != nil {
		return fmt.Errorf("encrypting credentials: %w", err)
	}
	req.Header.Set(s.client.headers.Credentials, ct)
	return nil
}

// apiKeySigner はAPIキーフローの IDENTITY/KEY ヘッダーを付与する。
type apiKeySigner struct {
	client    *apiClient
	identity  string
	publicKey string
	location  *time.Location
	now       func() time.Time
}

func (s *apiKeySigner) sign(ctx context.Context, req *http.Request) error {
	pub, err := rsautil.ParsePublicKey(s.publicKey)
	if err != nil {
		return fmt.Errorf("parsing api key public key: %w", err)
	}
	env := domain.APIKeyEnvelope{Identity: s.identity, SentAt: s.now().In(s.location)}
	ct, err := rsautil.Encrypt(pub, env.String())
	if err != nil {
		return fmt.Errorf("encrypting key header: %w", err)
	}
	req.Header.Set(s.client.headers.Identity, s.identity)
	req.Header.Set(s.client.headers.Key, ct)
	return nil
}

// apiClient はPenelope APIのHTTPクライアント。
type apiClient struct {
	baseURL string
	http    *http.Client
	headers headerNames
	signer  signer
}

// serverPublicKey は GET /key でサーバー公開鍵を取得する。
func (c *apiClient) serverPublicKey(ctx context.Context) (*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/key", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching server key: status %d", resp.StatusCode)
	}
	pub, err := rsautil.ParsePublicKey(resp.Header.Get(c.headers.PublicKey))
	if err != nil {
		return nil, fmt.Errorf("parsing server key: %w", err)
	}
	return pub, nil
}

// call は認証ヘッダー付きでリクエストを送り、期待したステータスなら本文を返す。
func (c *apiClient) call(ctx context.Context, method, path string, query url.Values, want int) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if c.signer != nil {
		if err := c.signer.sign(ctx, req); err != nil {
			return nil, err
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != want {
		return nil, handleErrorResponse(resp.StatusCode, body)
	}
	return body, nil
}

func handleErrorResponse(statusCode int, body []byte) error {
	var errResp struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.NewDecoder(bytes.NewReader(body)).Decode(&errResp); err == nil && errResp.Code != "" {
		return fmt.Errorf("server returned %d %s: %s", statusCode, errResp.Code, errResp.Message)
	}
	return fmt.Errorf("server returned status %d", statusCode)
}

// joinIDs はキャンパスIDの一覧を表示用に整形する。
func joinIDs(ids []uint64) string {
	if len(ids) == 0 {
		return "-"
	}
	s := make([]string, len(ids))
	for i, id := range ids {
		s[i] = fmt.Sprint(id)
	}
	return strings.Join(s, ",")
}
