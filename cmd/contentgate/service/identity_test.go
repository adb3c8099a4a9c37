package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/walrusgate/contentgate/cmd/contentgate/repository"
	"github.com/walrusgate/contentgate/common/logger"
)

const testAddress = "0xa1b2c3d4e5f6"

type identityFixture struct {
	svc  *IdentityService
	keys *repository.MemoryAPIKeyRepository
}

func newIdentityFixture(t *testing.T, ttl time.Duration) *identityFixture {
	t.Helper()
	keys := repository.NewMemoryAPIKeyRepository()
	svc, err := NewIdentityService(repository.NewMemoryUserRepository(), keys, "test-secret", ttl, logger.Discard())
	require.NoError(t, err)
	return &identityFixture{svc: svc, keys: keys}
}

func TestTokenRoundTrip(t *testing.T) {
	f := newIdentityFixture(t, time.Hour)

	token, err := f.svc.IssueToken(testAddress)
	require.NoError(t, err)

	address, err := f.svc.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, testAddress, address)
}

func TestVerifyTokenRejects(t *testing.T) {
	f := newIdentityFixture(t, time.Hour)

	t.Run("expired", func(t *testing.T) {
		token, err := f.svc.IssueToken(testAddress)
		require.NoError(t, err)

		later := newIdentityFixture(t, time.Hour).svc
		later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err = later.VerifyToken(token)
		assertKind(t, err, KindUnauthenticated)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other, err := NewIdentityService(repository.NewMemoryUserRepository(), f.keys, "other-secret", time.Hour, logger.Discard())
		require.NoError(t, err)
		token, err := other.IssueToken(testAddress)
		require.NoError(t, err)

		_, err = f.svc.VerifyToken(token)
		assertKind(t, err, KindUnauthenticated)
	})

	t.Run("unsigned", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"address": testAddress}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = f.svc.VerifyToken(token)
		assertKind(t, err, KindUnauthenticated)
	})

	t.Run("no address", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": testAddress}).
			SignedString([]byte("test-secret"))
		require.NoError(t, err)

		_, err = f.svc.VerifyToken(token)
		assertKind(t, err, KindUnauthenticated)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := f.svc.VerifyToken("not.a.token")
		assertKind(t, err, KindUnauthenticated)
	})
}

func TestEphemeralSecret(t *testing.T) {
	a, err := NewIdentityService(repository.NewMemoryUserRepository(), repository.NewMemoryAPIKeyRepository(), "", time.Hour, logger.Discard())
	require.NoError(t, err)
	b, err := NewIdentityService(repository.NewMemoryUserRepository(), repository.NewMemoryAPIKeyRepository(), "", time.Hour, logger.Discard())
	require.NoError(t, err)

	token, err := a.IssueToken(testAddress)
	require.NoError(t, err)

	_, err = a.VerifyToken(token)
	require.NoError(t, err)
	_, err = b.VerifyToken(token)
	assert.Error(t, err)
}

func TestLogin(t *testing.T) {
	f := newIdentityFixture(t, time.Hour)
	ctx := context.Background()

	resp, err := f.svc.Login(ctx, testAddress)
	require.NoError(t, err)
	assert.Equal(t, testAddress, resp.User.Address)
	assert.Equal(t, "User 0xa1b2", resp.User.Username)

	address, err := f.svc.VerifyToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, testAddress, address)

	again, err := f.svc.Login(ctx, testAddress)
	require.NoError(t, err)
	assert.Equal(t, resp.User.CreatedAt, again.User.CreatedAt, "login is an upsert")

	_, err = f.svc.Login(ctx, "  ")
	assertKind(t, err, KindInvalidInput)
}

func TestProfile(t *testing.T) {
	f := newIdentityFixture(t, time.Hour)
	ctx := context.Background()

	_, err := f.svc.Profile(ctx, "")
	assertKind(t, err, KindUnauthenticated)

	_, err = f.svc.Profile(ctx, testAddress)
	assertKind(t, err, KindNotFound)

	_, err = f.svc.Login(ctx, testAddress)
	require.NoError(t, err)

	user, err := f.svc.Profile(ctx, testAddress)
	require.NoError(t, err)
	assert.Equal(t, testAddress, user.Address)
}

func TestAPIKeyLifecycle(t *testing.T) {
	f := newIdentityFixture(t, time.Hour)
	ctx := context.Background()

	_, err := f.svc.CreateAPIKey(ctx, testAddress, "ci")
	assertKind(t, err, KindNotFound)

	_, err = f.svc.Login(ctx, testAddress)
	require.NoError(t, err)

	created, err := f.svc.CreateAPIKey(ctx, testAddress, "")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(created.APIKey, APIKeyPrefix))
	assert.Len(t, created.APIKey, len(APIKeyPrefix)+48)

	stored, err := f.keys.GetByHash(ctx, HashAPIKey(created.APIKey))
	require.NoError(t, err)
	assert.Equal(t, "My API Key", stored.Name)
	assert.NotContains(t, stored.KeyHash, created.APIKey)
	assert.Nil(t, stored.LastUsedAt)

	address, err := f.svc.ResolveAPIKey(ctx, created.APIKey)
	require.NoError(t, err)
	assert.Equal(t, testAddress, address)

	keys, err := f.svc.ListAPIKeys(ctx, testAddress)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.NotNil(t, keys[0].LastUsedAt, "resolving a key records its use")

	err = f.svc.DeleteAPIKey(ctx, "0xsomeoneelse", created.ID.String())
	assertKind(t, err, KindNotFound)

	require.NoError(t, f.svc.DeleteAPIKey(ctx, testAddress, created.ID.String()))

	_, err = f.svc.ResolveAPIKey(ctx, created.APIKey)
	assertKind(t, err, KindUnauthenticated)

	err = f.svc.DeleteAPIKey(ctx, testAddress, "nope")
	assertKind(t, err, KindInvalidInput)
}

func TestListAPIKeysEmpty(t *testing.T) {
	f := newIdentityFixture(t, time.Hour)
	ctx := context.Background()

	_, err := f.svc.Login(ctx, testAddress)
	require.NoError(t, err)

	keys, err := f.svc.ListAPIKeys(ctx, testAddress)
	require.NoError(t, err)
	assert.NotNil(t, keys)
	assert.Empty(t, keys)
}

func TestUpdateProfile(t *testing.T) {
	f := newIdentityFixture(t, time.Hour)
	ctx := context.Background()

	_, err := f.svc.UpdateProfile(ctx, testAddress, []byte(`{"bio":"hi"}`))
	assertKind(t, err, KindNotFound)

	_, err = f.svc.Login(ctx, testAddress)
	require.NoError(t, err)

	user, err := f.svc.UpdateProfile(ctx, testAddress, []byte(`{
		"username": "alice",
		"email": "alice@example.com",
		"avatar": "https://img.example/a.png",
		"bio": "makes music"
	}`))
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, "https://img.example/a.png", user.Avatar)
	assert.Empty(t, user.Banner)

	// Fields left out of the patch are kept
	user, err = f.svc.UpdateProfile(ctx, testAddress, []byte(`{"banner":"https://img.example/b.png"}`))
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.Equal(t, "makes music", user.Bio)

	stored, err := f.svc.Profile(ctx, testAddress)
	require.NoError(t, err)
	assert.Equal(t, "https://img.example/b.png", stored.Banner)
}

func TestUpdateProfileRejects(t *testing.T) {
	f := newIdentityFixture(t, time.Hour)
	ctx := context.Background()
	_, err := f.svc.Login(ctx, testAddress)
	require.NoError(t, err)

	_, err = f.svc.UpdateProfile(ctx, "", []byte(`{"bio":"hi"}`))
	assertKind(t, err, KindUnauthenticated)

	for _, body := range []string{
		`{"username":""}`,
		`{"username":"   "}`,
		`{"username":"` + strings.Repeat("a", 51) + `"}`,
		`{"bio":"` + strings.Repeat("é", 161) + `"}`,
		`{"email":"not-an-email"}`,
		`{"email":"Alice <alice@example.com>"}`,
		`{"email":""}`,
		`{"address":"0xother"}`,
		`{"bio":null}`,
		`{"bio":7}`,
		`[1]`,
		`nope`,
	} {
		_, err := f.svc.UpdateProfile(ctx, testAddress, []byte(body))
		assertKind(t, err, KindInvalidInput)
	}

	user, err := f.svc.UpdateProfile(ctx, testAddress, []byte(`{"username":"`+strings.Repeat("a", 50)+`","bio":"`+strings.Repeat("é", 160)+`"}`))
	require.NoError(t, err, "limits are inclusive")
	assert.Len(t, []rune(user.Bio), 160)
}

func TestLookupProfile(t *testing.T) {
	f := newIdentityFixture(t, time.Hour)
	ctx := context.Background()
	_, err := f.svc.Login(ctx, testAddress)
	require.NoError(t, err)

	user, err := f.svc.LookupProfile(ctx, testAddress, "")
	require.NoError(t, err)
	assert.Equal(t, testAddress, user.Address)

	user, err = f.svc.LookupProfile(ctx, " ", testAddress)
	require.NoError(t, err)
	assert.Equal(t, testAddress, user.Address)

	_, err = f.svc.LookupProfile(ctx, "0xnobody", testAddress)
	assertKind(t, err, KindNotFound)

	_, err = f.svc.LookupProfile(ctx, "", "")
	assertKind(t, err, KindUnauthenticated)
}
