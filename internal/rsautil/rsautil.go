// Package rsautil はRSA鍵ペアの生成と、OAEP(SHA-256)による短い文字列の暗号化/復号を提供する。
package rsautil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
)

// KeySize はRSA鍵のビット長。
const KeySize = 2048

// ErrDecryption は復号失敗を表す。原因（Base64不正・鍵違い・パディング不一致）は区別しない。
var ErrDecryption = errors.New("decryption failed")

// KeyPair はRSA鍵ペアを表す。生成後は変更しない。
type KeyPair struct {
	Public  *rsa.PublicKey
	Private *rsa.PrivateKey
}

// GenerateKeyPair は2048ビットのRSA鍵ペアを生成する。
func GenerateKeyPair() (*KeyPair, error) {
	priv, err := rsa.GenerateKey(rand.Reader, KeySize)
	if err != nil {
		return nil, fmt.Errorf("generating rsa key: %w", err)
	}
	return &KeyPair{Public: &priv.PublicKey, Private: priv}, nil
}

// Encrypt は平文をRSA-OAEP(SHA-256, MGF1-SHA-256)で暗号化し、Base64文字列で返す。
func Encrypt(pub *rsa.PublicKey, plaintext string) (string, error) {
	if pub == nil {
		return "", errors.New("public key is required")
	}
	out, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, []byte(plaintext), nil)
	if err != nil {
		return "", fmt.Errorf("encrypting: %w", err)
	}
	return base64.StdEncoding.EncodeToString(out), nil
}

// Decrypt はBase64文字列を復号する。
// 失敗時は常に ErrDecryption を返す。
func Decrypt(priv *rsa.PrivateKey, ciphertext string) (string, error) {
	if priv == nil {
		return "", ErrDecryption
	}
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrDecryption
	}
	out, err := rsa.DecryptOAEP(sha256.New(), nil, priv, raw, nil)
	if err != nil {
		return "", ErrDecryption
	}
	return string(out), nil
}

// MarshalPrivateKey は秘密鍵をPKCS#8 DERにシリアライズする。
func MarshalPrivateKey(priv *rsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("marshaling private key: %w", err)
	}
	return der, nil
}

// ParsePrivateKey はPKCS#8 DERから秘密鍵を復元する。
func ParsePrivateKey(der []byte) (*rsa.PrivateKey, error) {
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not RSA")
	}
	return priv, nil
}

// EncodePublicKey は公開鍵をPKIX DERのBase64文字列にする。
func EncodePublicKey(pub *rsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("marshaling public key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// ParsePublicKey は EncodePublicKey の逆変換。
func ParsePublicKey(encoded string) (*rsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decoding public key: %w", err)
	}
	key, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}
	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("public key is not RSA")
	}
	return pub, nil
}
