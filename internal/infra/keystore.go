package infra

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"

	"penelope-api/internal/domain"
)

// APIキーの秘密鍵（PKCS#8 DER）を保管するストア群。
// LoadKey は未登録の identity に対して (nil, nil) を返す。

// FileKeyStore は identity ごとに1ファイルで秘密鍵を保存する。
type FileKeyStore struct {
	dir string
}

// NewFileKeyStore はディレクトリを作成してFileKeyStoreを生成する。
func NewFileKeyStore(dir string) (*FileKeyStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating key directory: %w", err)
	}
	return &FileKeyStore{dir: dir}, nil
}

func (s *FileKeyStore) path(identity string) (string, error) {
	if identity == "" || filepath.Base(identity) != identity || identity == "." || identity == ".." {
		return "", domain.ErrInvalidIdentity
	}
	return filepath.Join(s.dir, identity+".der"), nil
}

// StoreKey は秘密鍵を書き込む。既存のファイルは上書きする。
func (s *FileKeyStore) StoreKey(ctx context.Context, identity string, der []byte) error {
	p, err := s.path(identity)
	if err != nil {
		return err
	}
	if err := os.WriteFile(p, der, 0o600); err != nil {
		slog.ErrorContext(ctx, "failed to write private key",
			"operation", "store_key",
			"identity", identity,
			"error", err,
		)
		return fmt.Errorf("%w: %v", domain.ErrKeyCustody, err)
	}
	return nil
}

// LoadKey は秘密鍵を読み込む。
func (s *FileKeyStore) LoadKey(ctx context.Context, identity string) ([]byte, error) {
	p, err := s.path(identity)
	if err != nil {
		return nil, nil
	}
	der, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to read private key",
			"operation", "load_key",
			"identity", identity,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %v", domain.ErrKeyCustody, err)
	}
	return der, nil
}

// RemoveKey は秘密鍵を削除する。存在しない場合は何もしない。
func (s *FileKeyStore) RemoveKey(ctx context.Context, identity string) error {
	p, err := s.path(identity)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.ErrorContext(ctx, "failed to remove private key",
			"operation", "remove_key",
			"identity", identity,
			"error", err,
		)
		return fmt.Errorf("%w: %v", domain.ErrKeyCustody, err)
	}
	return nil
}

const badgerKeyPrefix = "apikey/private/"

// BadgerKeyStore はBadgerに秘密鍵を保存する。
type BadgerKeyStore struct {
	db *badger.DB
}

// OpenBadgerKeyStore はディレクトリ上のBadgerを開く。dir が空ならインメモリで開く。
func OpenBadgerKeyStore(dir string) (*BadgerKeyStore, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(newBadgerLogger(slog.Default().WithGroup("badger")))

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger: %w", err)
	}
	return &BadgerKeyStore{db: db}, nil
}

// StoreKey は秘密鍵を書き込む。
func (s *BadgerKeyStore) StoreKey(ctx context.Context, identity string, der []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(badgerKeyPrefix+identity), der)
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to store private key",
			"operation", "store_key",
			"identity", identity,
			"error", err,
		)
		return fmt.Errorf("%w: %v", domain.ErrKeyCustody, err)
	}
	return nil
}

// LoadKey は秘密鍵を読み込む。
func (s *BadgerKeyStore) LoadKey(ctx context.Context, identity string) ([]byte, error) {
	var der []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerKeyPrefix + identity))
		if err != nil {
			return err
		}
		der, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		slog.ErrorContext(ctx, "failed to load private key",
			"operation", "load_key",
			"identity", identity,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %v", domain.ErrKeyCustody, err)
	}
	return der, nil
}

// RemoveKey は秘密鍵を削除する。
func (s *BadgerKeyStore) RemoveKey(ctx context.Context, identity string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(badgerKeyPrefix + identity))
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to remove private key",
			"operation", "remove_key",
			"identity", identity,
			"error", err,
		)
		return fmt.Errorf("%w: %v", domain.ErrKeyCustody, err)
	}
	return nil
}

// Close はBadgerを閉じる。
func (s *BadgerKeyStore) Close() error {
	return s.db.Close()
}

type badgerLogger struct {
	logger *slog.Logger
}

func newBadgerLogger(logger *slog.Logger) badger.Logger {
	return &badgerLogger{logger: logger}
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// KeyStore は秘密鍵の保存先。
type KeyStore interface {
	StoreKey(ctx context.Context, identity string, der []byte) error
	LoadKey(ctx context.Context, identity string) ([]byte, error)
	RemoveKey(ctx context.Context, identity string) error
}

// Sealer は保存前の秘密鍵を暗号化する（Cloud KMSなど）。
// aad は追加認証データで、暗号化時と同じ値でなければ復号に失敗する。
type Sealer interface {
	Encrypt(ctx context.Context, plaintext, aad []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext, aad []byte) ([]byte, error)
}

// sealContext は秘密鍵を封印するときの追加認証データ。
func sealContext(identity string) []byte {
	return []byte("penelope-api/api-key/" + identity)
}

// SealedKeyStore は秘密鍵を Sealer で暗号化してから下位ストアに保存する。
type SealedKeyStore struct {
	store  KeyStore
	sealer Sealer
}

// NewSealedKeyStore は新しいSealedKeyStoreを生成する。
func NewSealedKeyStore(store KeyStore, sealer Sealer) *SealedKeyStore {
	return &SealedKeyStore{store: store, sealer: sealer}
}

// StoreKey は秘密鍵を暗号化して保存する。
func (s *SealedKeyStore) StoreKey(ctx context.Context, identity string, der []byte) error {
	sealed, err := s.sealer.Encrypt(ctx, der, sealContext(identity))
	if err != nil {
		slog.ErrorContext(ctx, "failed to seal private key",
			"operation", "store_key",
			"identity", identity,
			"error", err,
		)
		return fmt.Errorf("%w: %v", domain.ErrKeyCustody, err)
	}
	return s.store.StoreKey(ctx, identity, sealed)
}

// LoadKey は保存された秘密鍵を復号して返す。
func (s *SealedKeyStore) LoadKey(ctx context.Context, identity string) ([]byte, error) {
	sealed, err := s.store.LoadKey(ctx, identity)
	if err != nil || sealed == nil {
		return nil, err
	}
	der, err := s.sealer.Decrypt(ctx, sealed, sealContext(identity))
	if err != nil {
		slog.ErrorContext(ctx, "failed to unseal private key",
			"operation", "load_key",
			"identity", identity,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %v", domain.ErrKeyCustody, err)
	}
	return der, nil
}

// RemoveKey は下位ストアから秘密鍵を削除する。
func (s *SealedKeyStore) RemoveKey(ctx context.Context, identity string) error {
	return s.store.RemoveKey(ctx, identity)
}
