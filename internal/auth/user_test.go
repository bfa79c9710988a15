package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"penelope-api/internal/domain"
)

type userFixture struct {
	users    *fakeUsers
	campuses *fakeCampuses
}

func newUserFixture() *userFixture {
	return &userFixture{
		users: &fakeUsers{users: map[string]*domain.DataManager{
			"admin": {Username: "admin", PasswordHash: "hash:pwd", Sysadmin: true},
			"alice": {Username: "alice", PasswordHash: "hash:wonderland", Campuses: []domain.CampusID{1}},
		}},
		campuses: &fakeCampuses{ids: map[domain.CampusID]bool{1: true, 2: true}},
	}
}

func (f *userFixture) authenticator(t *testing.T, now string) *UserAuthenticator {
	_, _, server := keyPairs(t)
	return NewUserAuthenticator(server, f.users, f.campuses, prefixVerifier{}, WithClock(fixedClock(now)))
}

func userCredentials(t *testing.T, plaintext string) string {
	_, _, server := keyPairs(t)
	return seal(t, server, plaintext)
}

func TestUserAuthenticator_SysadminClaimsAdmin(t *testing.T) {
	f := newUserFixture()
	authn := f.authenticator(t, "2024-01-01T12:00:05Z")

	d, err := authn.Authenticate(context.Background(), userCredentials(t, "admin=pwd=2024-01-01T12:00:00Z"), "admin")
	require.NoError(t, err)
	assert.True(t, d.Authenticated)
	assert.True(t, d.Admin)
	assert.Equal(t, domain.PrincipalDataManager, d.Kind)
	assert.Equal(t, "admin", d.Name)
	assert.Equal(t, domain.AdminScope(), d.Scope)
}

func TestUserAuthenticator_WrongPassword(t *testing.T) {
	f := newUserFixture()
	authn := f.authenticator(t, "2024-01-01T12:00:05Z")
	creds := userCredentials(t, "admin=nope=2024-01-01T12:00:00Z")

	for _, claim := range []string{"admin", "1", "2"} {
		_, err := authn.Authenticate(context.Background(), creds, claim)
		requireReason(t, err, domain.ReasonUnauthorised)
	}
}

func TestUserAuthenticator_UnknownUser(t *testing.T) {
	f := newUserFixture()
	_, err := f.authenticator(t, "2024-01-01T12:00:05Z").
		Authenticate(context.Background(), userCredentials(t, "bob=pwd=2024-01-01T12:00:00Z"), "admin")
	requireReason(t, err, domain.ReasonUnauthorised)
}

func TestUserAuthenticator_CampusGrant(t *testing.T) {
	f := newUserFixture()
	authn := f.authenticator(t, "2024-01-01T12:00:05Z")
	creds := userCredentials(t, "alice=wonderland=2024-01-01T12:00:00Z")

	d, err := authn.Authenticate(context.Background(), creds, "1")
	require.NoError(t, err)
	assert.Equal(t, domain.CampusScope(1), d.Scope)
	assert.False(t, d.Admin)

	_, err = authn.Authenticate(context.Background(), creds, "2")
	requireReason(t, err, domain.ReasonForbidden)

	f.users.users["alice"].Campuses = append(f.users.users["alice"].Campuses, 2)

	d, err = authn.Authenticate(context.Background(), creds, "2")
	require.NoError(t, err)
	assert.Equal(t, domain.CampusScope(2), d.Scope)
}

func TestUserAuthenticator_NonSysadminClaimsAdmin(t *testing.T) {
	f := newUserFixture()
	_, err := f.authenticator(t, "2024-01-01T12:00:05Z").
		Authenticate(context.Background(), userCredentials(t, "alice=wonderland=2024-01-01T12:00:00Z"), "admin")
	requireReason(t, err, domain.ReasonForbidden)
}

func TestUserAuthenticator_UnknownCampus(t *testing.T) {
	f := newUserFixture()
	authn := f.authenticator(t, "2024-01-01T12:00:05Z")

	_, err := authn.Authenticate(context.Background(), userCredentials(t, "alice=wonderland=2024-01-01T12:00:00Z"), "99")
	requireReason(t, err, domain.ReasonNotFound)

	// システム管理者はキャンパス所属チェックを行わない
	d, err := authn.Authenticate(context.Background(), userCredentials(t, "admin=pwd=2024-01-01T12:00:00Z"), "99")
	require.NoError(t, err)
	assert.Equal(t, domain.CampusScope(99), d.Scope)
}

func TestUserAuthenticator_Stale(t *testing.T) {
	f := newUserFixture()
	creds := userCredentials(t, "admin=pwd=2024-01-01T12:00:00Z")

	_, err := f.authenticator(t, "2024-01-01T12:01:30Z").Authenticate(context.Background(), creds, "admin")
	requireReason(t, err, domain.ReasonStaleRequest)
}

func TestUserAuthenticator_Malformed(t *testing.T) {
	f := newUserFixture()
	authn := f.authenticator(t, "2024-01-01T12:00:05Z")

	tests := map[string]string{
		"two fields":    userCredentials(t, "admin=pwd"),
		"bad timestamp": userCredentials(t, "admin=pwd=noon"),
		"not encrypted": "admin=pwd=2024-01-01T12:00:00Z",
	}
	for name, creds := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := authn.Authenticate(context.Background(), creds, "admin")
			requireReason(t, err, domain.ReasonBadCredentials)
		})
	}
}

func TestUserAuthenticator_Missing(t *testing.T) {
	f := newUserFixture()
	authn := f.authenticator(t, "2024-01-01T12:00:05Z")

	_, err := authn.Authenticate(context.Background(), "", "admin")
	requireReason(t, err, domain.ReasonMissingCredentials)
	_, err = authn.Authenticate(context.Background(), userCredentials(t, "admin=pwd=2024-01-01T12:00:00Z"), "")
	requireReason(t, err, domain.ReasonMissingCredentials)
}

func TestUserAuthenticator_Verify(t *testing.T) {
	f := newUserFixture()
	authn := f.authenticator(t, "2024-01-01T12:00:05Z")

	dm, err := authn.Verify(context.Background(), userCredentials(t, "alice=wonderland=2024-01-01T12:00:00Z"))
	require.NoError(t, err)
	assert.Equal(t, "alice", dm.Username)
}
