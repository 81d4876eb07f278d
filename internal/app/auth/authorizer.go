package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt"
	"golang.org/x/crypto/bcrypt"

	"github.com/trackfit/trackfit/internal/domain/user"
)

var (
	ErrAccessTokenInvalid = errors.New("invalid access token")
)

// Authorizer issues and validates the self-hosted access tokens.
// The hosted backend brings its own; this one exists for the
// postgres mode only.
type Authorizer struct {
	Cost             int
	Secret           string
	AccessTokenTTL   time.Duration
	AuthorizationTTL time.Duration
}

func (a *Authorizer) Hash(password string) string {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.Cost)
	if err != nil {
		panic(err)
	}
	return hex.EncodeToString(hash)
}

func (a *Authorizer) Authorize(u *user.User, password string, dev user.Device) (user.Authorization, error) {
	hashBytes, err := hex.DecodeString(u.PasswordHash)
	if err != nil {
		return user.Authorization{}, err
	}

	if err := bcrypt.CompareHashAndPassword(hashBytes, []byte(password)); err != nil {
		return user.Authorization{}, user.ErrInvalidCredentials
	}

	now := time.Now().UTC()
	return user.Authorization{
		ID:         a.generateIdentifier(),
		CreatedAt:  now,
		ValidUntil: now.Add(a.AuthorizationTTL),
		Device:     dev,
	}, nil
}

func (a *Authorizer) generateIdentifier() string {
	var bytes [16]byte
	if n, err := rand.Read(bytes[:]); n != len(bytes) || err != nil {
		panic("failed to generate identifier")
	}
	return hex.EncodeToString(bytes[:])
}

func (a *Authorizer) GenerateAccessToken(u *user.User, auth *user.Authorization) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"jti": auth.ID,
		"sub": u.UserID,
		"exp": now.Add(a.AccessTokenTTL).Unix(),
		"iat": now.Unix(),
	})
	return token.SignedString([]byte(a.Secret))
}

type AccessTokenData struct {
	AuthorizationID string
	UserID          string
}

func (a *Authorizer) ValidateAccessToken(accessToken string) (*AccessTokenData, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(accessToken, &claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(a.Secret), nil
	})
	if err != nil {
		return nil, ErrAccessTokenInvalid
	}

	jti, ok := claims["jti"].(string)
	sub, subOK := claims["sub"].(string)
	if !ok || !subOK {
		return nil, ErrAccessTokenInvalid
	}

	return &AccessTokenData{
		AuthorizationID: jti,
		UserID:          sub,
	}, nil
}
