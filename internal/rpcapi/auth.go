package rpcapi

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/teaclave-go/platform/internal/model"
	"github.com/teaclave-go/platform/internal/storage"
	"github.com/teaclave-go/platform/internal/taclerr"
)

// Claims mirrors the teacher's cmd/gateway JWT claims shape: a UserID
// embedded alongside the standard registered claims (expiry, issuer).
type Claims struct {
	UserID string     `json:"user_id"`
	Role   model.Role `json:"role"`
	jwt.RegisteredClaims
}

// credential is the persisted account record backing UserLogin/UserRegister.
// Out of scope per spec §1 ("authentication service" is external), but the
// frontend RPC surface names both RPCs, so a minimal credential store lives
// here rather than leaving them unimplemented.
type credential struct {
	UserID       string     `json:"user_id"`
	Role         model.Role `json:"role"`
	Attribute    string     `json:"attribute,omitempty"`
	PasswordHash string     `json:"password_hash"`
}

// Authenticator issues and validates JWTs and owns the minimal credential
// store used by UserRegister/UserLogin.
type Authenticator struct {
	secret  []byte
	ttl     time.Duration
	backend storage.Backend
}

// NewAuthenticator builds an Authenticator. secret must be at least 32
// bytes, matching the teacher's cmd/gateway length requirement.
func NewAuthenticator(secret []byte, ttl time.Duration, backend storage.Backend) *Authenticator {
	return &Authenticator{secret: secret, ttl: ttl, backend: backend}
}

// Register creates a new credential record. Returns Conflict if the user ID
// is already taken.
func (a *Authenticator) Register(ctx context.Context, userID, password string, role model.Role) (model.User, error) {
	if userID == "" || password == "" {
		return model.User{}, taclerr.InvalidArgument("user_id/password", "both are required")
	}
	switch role {
	case model.RolePlatformAdmin, model.RoleFunctionOwner, model.RoleDataOwnerManager, model.RoleDataOwner:
	default:
		return model.User{}, taclerr.InvalidArgument("role", "unknown role")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return model.User{}, taclerr.Internal(err)
	}
	cred := credential{UserID: userID, Role: role, PasswordHash: string(hash)}
	data, err := json.Marshal(cred)
	if err != nil {
		return model.User{}, taclerr.Internal(err)
	}
	if err := a.backend.CompareAndSwap(ctx, storage.PrefixUser+userID, nil, data); err != nil {
		return model.User{}, err
	}
	return model.User{UserID: userID, Role: role}, nil
}

// Login verifies password against the stored credential and returns a
// signed bearer token valid for ttl.
func (a *Authenticator) Login(ctx context.Context, userID, password string) (string, error) {
	raw, err := a.backend.Get(ctx, storage.PrefixUser+userID)
	if err != nil {
		return "", taclerr.Authentication("invalid credentials")
	}
	var cred credential
	if err := json.Unmarshal(raw, &cred); err != nil {
		return "", taclerr.Internal(err)
	}
	if bcrypt.CompareHashAndPassword([]byte(cred.PasswordHash), []byte(password)) != nil {
		return "", taclerr.Authentication("invalid credentials")
	}
	now := time.Now().UTC()
	claims := Claims{
		UserID: userID,
		Role:   cred.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			Issuer:    "teaclave-authentication",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

// Validate parses and verifies a bearer token, returning its claims.
func (a *Authenticator) Validate(tokenString string) (Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, taclerr.Authentication("unexpected signing method")
		}
		return a.secret, nil
	})
	if err != nil || !token.Valid {
		return Claims{}, taclerr.Authentication("invalid or expired token")
	}
	return claims, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value.
func BearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, prefix))
	return token, token != ""
}
