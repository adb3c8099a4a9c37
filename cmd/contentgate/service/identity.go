package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/walrusgate/contentgate/cmd/contentgate/models"
	"github.com/walrusgate/contentgate/cmd/contentgate/repository"
	"github.com/walrusgate/contentgate/common/logger"
)

// APIKeyPrefix marks raw API keys so they can share the Bearer header with
// session tokens
const APIKeyPrefix = "sk_"

const defaultAPIKeyName = "My API Key"

// sessionClaims are the claims of a session token
type sessionClaims struct {
	Address string `json:"address"`
	jwt.RegisteredClaims
}

// IdentityService issues and checks the credentials that resolve a request
// to a wallet address
type IdentityService struct {
	users  UserStore
	keys   APIKeyStore
	secret []byte
	ttl    time.Duration
	log    *logger.Logger
	now    func() time.Time
}

// NewIdentityService creates a new identity service. An empty secret is
// replaced with a random one, so tokens do not survive a restart.
func NewIdentityService(users UserStore, keys APIKeyStore, secret string, ttl time.Duration, log *logger.Logger) (*IdentityService, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate jwt secret: %w", err)
		}
		log.Warn("JWT_SECRET not set, using an ephemeral signing key")
	}

	return &IdentityService{
		users:  users,
		keys:   keys,
		secret: key,
		ttl:    ttl,
		log:    log,
		now:    time.Now,
	}, nil
}

// IssueToken signs a session token for address
func (s *IdentityService) IssueToken(address string) (string, error) {
	now := s.now()
	claims := sessionClaims{
		Address: address,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  address,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if s.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}

// VerifyToken checks a session token and returns its address
func (s *IdentityService) VerifyToken(token string) (string, error) {
	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}
	if claims.Address == "" {
		return "", fmt.Errorf("%w: token has no address", ErrUnauthenticated)
	}
	return claims.Address, nil
}

// HashAPIKey returns the stored form of a raw API key
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// ResolveAPIKey returns the address owning a raw API key and records its use
func (s *IdentityService) ResolveAPIKey(ctx context.Context, raw string) (string, error) {
	if raw == "" {
		return "", ErrUnauthenticated
	}

	key, err := s.keys.GetByHash(ctx, HashAPIKey(raw))
	if errors.Is(err, repository.ErrNotFound) {
		return "", fmt.Errorf("%w: unknown api key", ErrUnauthenticated)
	}
	if err != nil {
		return "", fmt.Errorf("failed to look up api key: %w", err)
	}

	if err := s.keys.Touch(ctx, key.ID, s.now().UTC()); err != nil {
		s.log.Warn("failed to record api key use", "key_id", key.ID, "error", err)
	}

	return key.UserAddress, nil
}

// Login upserts the wallet's user and issues a session token
func (s *IdentityService) Login(ctx context.Context, address string) (*models.LoginResponse, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, fmt.Errorf("%w: address is required", ErrInvalidInput)
	}

	username := address
	if len(username) > 6 {
		username = username[:6]
	}
	now := s.now().UTC()

	user, err := s.users.Upsert(ctx, &models.User{
		Address:   address,
		Username:  "User " + username,
		CreatedAt: now,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to save user: %w", err)
	}

	token, err := s.IssueToken(user.Address)
	if err != nil {
		return nil, err
	}

	s.log.Info("wallet login", "address", user.Address)
	return &models.LoginResponse{User: user, Token: token}, nil
}

// Profile returns the stored user for requester
func (s *IdentityService) Profile(ctx context.Context, requester string) (*models.User, error) {
	if requester == "" {
		return nil, ErrUnauthenticated
	}
	user, err := s.users.Get(ctx, requester)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// LookupProfile returns the public profile of address, or of requester
// when address is empty
func (s *IdentityService) LookupProfile(ctx context.Context, address, requester string) (*models.User, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return s.Profile(ctx, requester)
	}
	return s.Profile(ctx, address)
}

const (
	maxUsernameLen = 50
	maxBioLen      = 160
)

// profileFields are the keys a user may set through UpdateProfile
var profileFields = map[string]bool{
	"username": true,
	"email":    true,
	"avatar":   true,
	"banner":   true,
	"bio":      true,
}

// UpdateProfile applies a JSON merge patch over requester's profile fields.
// Unknown keys and nulls are rejected.
func (s *IdentityService) UpdateProfile(ctx context.Context, requester string, patch []byte) (*models.User, error) {
	if requester == "" {
		return nil, ErrUnauthenticated
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(patch, &fields); err != nil {
		return nil, fmt.Errorf("%w: body must be a JSON object", ErrInvalidInput)
	}
	for key, value := range fields {
		if !profileFields[key] {
			return nil, fmt.Errorf("%w: field %q is not editable", ErrInvalidInput, key)
		}
		if string(value) == "null" {
			return nil, fmt.Errorf("%w: field %q cannot be null", ErrInvalidInput, key)
		}
	}

	user, err := s.Profile(ctx, requester)
	if err != nil {
		return nil, err
	}

	current, err := json.Marshal(models.ProfilePatch{
		Username: user.Username,
		Email:    user.Email,
		Avatar:   user.Avatar,
		Banner:   user.Banner,
		Bio:      user.Bio,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode profile: %w", err)
	}

	merged, err := jsonpatch.MergePatch(current, patch)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	var edited models.ProfilePatch
	if err := json.Unmarshal(merged, &edited); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := validateProfile(&edited, fields); err != nil {
		return nil, err
	}

	user.Username = edited.Username
	user.Email = edited.Email
	user.Avatar = edited.Avatar
	user.Banner = edited.Banner
	user.Bio = edited.Bio
	user.UpdatedAt = s.now().UTC()

	err = s.users.Update(ctx, user)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}

	s.log.Info("updated profile", "address", user.Address)
	return user, nil
}

// validateProfile checks the merged profile. Email format is only checked
// when the patch sets it, so a stored empty email stays valid.
func validateProfile(p *models.ProfilePatch, patched map[string]json.RawMessage) error {
	switch n := utf8.RuneCountInString(strings.TrimSpace(p.Username)); {
	case n == 0:
		return fmt.Errorf("%w: username must not be empty", ErrInvalidInput)
	case n > maxUsernameLen:
		return fmt.Errorf("%w: username must be at most %d characters", ErrInvalidInput, maxUsernameLen)
	}
	if utf8.RuneCountInString(p.Bio) > maxBioLen {
		return fmt.Errorf("%w: bio must be at most %d characters", ErrInvalidInput, maxBioLen)
	}
	if _, ok := patched["email"]; ok && !validEmail(p.Email) {
		return fmt.Errorf("%w: invalid email %q", ErrInvalidInput, p.Email)
	}
	return nil
}

// validEmail accepts a bare addr-spec such as a@b.io, without a display name
func validEmail(email string) bool {
	addr, err := mail.ParseAddress(email)
	return err == nil && addr.Name == "" && addr.Address == email && strings.Contains(email, "@")
}

// CreateAPIKey generates a key for requester. The raw key is only ever
// returned here.
func (s *IdentityService) CreateAPIKey(ctx context.Context, requester, name string) (*models.CreateAPIKeyResponse, error) {
	if _, err := s.Profile(ctx, requester); err != nil {
		return nil, err
	}

	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("failed to generate api key: %w", err)
	}
	raw := APIKeyPrefix + hex.EncodeToString(buf)

	if strings.TrimSpace(name) == "" {
		name = defaultAPIKeyName
	}
	key := &models.APIKey{
		ID:          uuid.New(),
		UserAddress: requester,
		KeyHash:     HashAPIKey(raw),
		Name:        name,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.keys.Create(ctx, key); err != nil {
		return nil, fmt.Errorf("failed to store api key: %w", err)
	}

	s.log.Info("created api key", "address", requester, "key_id", key.ID)
	return &models.CreateAPIKeyResponse{
		ID:      key.ID,
		APIKey:  raw,
		Message: "Save this key now! You won't be able to see it again.",
	}, nil
}

// ListAPIKeys lists requester's keys without their hashes
func (s *IdentityService) ListAPIKeys(ctx context.Context, requester string) ([]*models.APIKey, error) {
	if _, err := s.Profile(ctx, requester); err != nil {
		return nil, err
	}
	keys, err := s.keys.ListByUser(ctx, requester)
	if err != nil {
		return nil, fmt.Errorf("failed to list api keys: %w", err)
	}
	if keys == nil {
		keys = []*models.APIKey{}
	}
	return keys, nil
}

// DeleteAPIKey revokes one of requester's keys
func (s *IdentityService) DeleteAPIKey(ctx context.Context, requester, id string) error {
	if requester == "" {
		return ErrUnauthenticated
	}
	keyID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("%w: invalid api key id", ErrInvalidInput)
	}

	err = s.keys.Delete(ctx, keyID, requester)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrAPIKeyNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete api key: %w", err)
	}

	s.log.Info("deleted api key", "address", requester, "key_id", keyID)
	return nil
}
