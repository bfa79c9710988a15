package handler

import (
	"fmt"
	"net/http"

	"penelope-api/internal/rsautil"
)

// KeyPairHandler はサーバー公開鍵を配布する。
// クライアントはこの鍵で Credentials ヘッダーを暗号化する。
type KeyPairHandler struct {
	publicKey string
	header    string
}

// NewKeyPairHandler はサーバー鍵ペアの公開鍵をBase64化して保持する。
func NewKeyPairHandler(kp *rsautil.KeyPair, header string) (*KeyPairHandler, error) {
	encoded, err := rsautil.EncodePublicKey(kp.Public)
	if err != nil {
		return nil, fmt.Errorf("encoding server public key: %w", err)
	}
	return &KeyPairHandler{publicKey: encoded, header: header}, nil
}

// GetPublicKey は公開鍵をヘッダーに設定して 204 を返す。
func (h *KeyPairHandler) GetPublicKey(w http.ResponseWriter, r *http.Request) {
	w.Header().Set(h.header, h.publicKey)
	w.WriteHeader(http.StatusNoContent)
}
