package auth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"penelope-api/internal/domain"
	"penelope-api/internal/rsautil"
)

// RSA鍵の生成は遅いのでパッケージ内で使い回す。
var testKeyPairs = sync.OnceValues(func() ([]*rsautil.KeyPair, error) {
	pairs := make([]*rsautil.KeyPair, 3)
	for i := range pairs {
		kp, err := rsautil.GenerateKeyPair()
		if err != nil {
			return nil, err
		}
		pairs[i] = kp
	}
	return pairs, nil
})

// keyPairs は (abc123用, 別Identity用, サーバー用) の鍵ペアを返す。
func keyPairs(t *testing.T) (identityKey, otherKey, serverKey *rsautil.KeyPair) {
	t.Helper()
	pairs, err := testKeyPairs()
	require.NoError(t, err)
	return pairs[0], pairs[1], pairs[2]
}

func fixedClock(s string) Clock {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return t }
}

type fakeAPIKeys struct {
	keys map[string]*domain.APIKey
	err  error
}

func (f *fakeAPIKeys) FindByIdentity(ctx context.Context, identity string) (*domain.APIKey, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.keys[identity], nil
}

type fakeCustody struct {
	blobs map[string][]byte
}

func (f *fakeCustody) LoadKey(ctx context.Context, identity string) ([]byte, error) {
	blob, ok := f.blobs[identity]
	if !ok {
		return nil, errors.New("no such key")
	}
	return blob, nil
}

type fakeUsers struct {
	users map[string]*domain.DataManager
}

func (f *fakeUsers) FindByUsername(ctx context.Context, username string) (*domain.DataManager, error) {
	return f.users[username], nil
}

type fakeCampuses struct {
	ids map[domain.CampusID]bool
}

func (f *fakeCampuses) ExistsByID(ctx context.Context, id domain.CampusID) (bool, error) {
	return f.ids[id], nil
}

// prefixVerifier は "hash:" + password をハッシュとみなす。
type prefixVerifier struct{}

func (prefixVerifier) Verify(password, hash string) bool {
	return strings.TrimPrefix(hash, "hash:") == password && strings.HasPrefix(hash, "hash:")
}
