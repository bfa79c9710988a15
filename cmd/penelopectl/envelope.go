package main

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

// envelopeCmd は認証ヘッダーの値を生成して表示する。
// 他のクライアントから手動でリクエストを送る場合に使う。
func envelopeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "envelope",
		Short: "Print freshly encrypted authentication header values",
	}

	apiKey := &cobra.Command{
		Use:   "apikey",
		Short: "Print IDENTITY and KEY header values for an API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if identity == "" || publicKey == "" {
				return errors.New("--identity and --public-key are required")
			}
			loc, err := time.LoadLocation(timeZone)
			if err != nil {
				return fmt.Errorf("loading time zone %q: %w", timeZone, err)
			}
			c := &apiClient{headers: headersFromConfig()}
			s := &apiKeySigner{client: c, identity: identity, publicKey: publicKey, location: loc, now: time.Now}
			return printSigned(cmd, s, c.headers.Identity, c.headers.Key)
		},
	}

	user := &cobra.Command{
		Use:   "user",
		Short: "Print the Credentials header value for a data manager (fetches the server key)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" || password == "" {
				return errors.New("--username and --password are required")
			}
			if apiURL == "" {
				return errors.New("--api-url is required (or set PENELOPECTL_API_URL)")
			}
			loc, err := time.LoadLocation(timeZone)
			if err != nil {
				return fmt.Errorf("loading time zone %q: %w", timeZone, err)
			}
			c := &apiClient{baseURL: apiURL, http: &http.Client{Timeout: timeout}, headers: headersFromConfig()}
			s := &userSigner{client: c, username: username, password: password, location: loc, now: time.Now}
			return printSigned(cmd, s, c.headers.Credentials)
		},
	}

	cmd.AddCommand(apiKey, user)
	return cmd
}

// printSigned は signer が付与したヘッダーを "Name: value" 形式で表示する。
func printSigned(cmd *cobra.Command, s signer, names ...string) error {
	req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, "/", nil)
	if err != nil {
		return err
	}
	if err := s.sign(cmd.Context(), req); err != nil {
		return err
	}
	for _, name := range names {
		fmt.Printf("%s: %s\n", name, req.Header.Get(name))
	}
	return nil
}
