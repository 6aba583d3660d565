package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"passkey-gate/internal/identity/domain"
)

var (
	// ErrInvalidToken is returned when a token is malformed or invalid.
	ErrInvalidToken = errors.New("invalid token")
)

// AccessClaims holds JWT claims for the access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	Role  string `json:"role"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// TokenProvider issues and validates admin access JWTs signed with a KeyPair.
type TokenProvider struct {
	keys      *KeyPair
	method    jwt.SigningMethod
	issuer    string
	audience  string
	accessTTL time.Duration
}

// NewTokenProvider returns a TokenProvider for keys. issuer and audience are set on claims and
// validated on every parse. Only the pair's algorithm is accepted when validating.
func NewTokenProvider(keys *KeyPair, issuer, audience string, accessTTL time.Duration) *TokenProvider {
	method := jwt.SigningMethod(jwt.SigningMethodES256)
	if keys.Alg == AlgRS256 {
		method = jwt.SigningMethodRS256
	}
	return &TokenProvider{
		keys:      keys,
		method:    method,
		issuer:    issuer,
		audience:  audience,
		accessTTL: accessTTL,
	}
}

// IssueAccess issues a short-lived access JWT for caller.
// Returns the token string, its jti, and expiration time.
func (p *TokenProvider) IssueAccess(caller domain.Caller) (token string, jti string, expiresAt time.Time, err error) {
	jti, err = generateJTI()
	if err != nil {
		return "", "", time.Time{}, err
	}
	now := time.Now().UTC()
	expiresAt = now.Add(p.accessTTL)
	claims := AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   caller.ID,
			Issuer:    p.issuer,
			Audience:  jwt.ClaimStrings{p.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Role:  string(caller.Role),
		Email: caller.Email,
		Name:  caller.Name,
	}
	token, err = jwt.NewWithClaims(p.method, claims).SignedString(p.keys.Signer)
	return token, jti, expiresAt, err
}

// ValidateAccess parses and validates the access token (signature, exp, iss, aud) and returns its caller.
func (p *TokenProvider) ValidateAccess(tokenString string) (domain.Caller, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AccessClaims{}, func(*jwt.Token) (interface{}, error) {
		return p.keys.Public, nil
	},
		jwt.WithValidMethods([]string{p.method.Alg()}),
		jwt.WithIssuer(p.issuer),
		jwt.WithAudience(p.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return domain.Caller{}, ErrInvalidToken
	}
	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return domain.Caller{}, ErrInvalidToken
	}
	return domain.Caller{
		ID:    claims.Subject,
		Email: claims.Email,
		Name:  claims.Name,
		Role:  domain.Role(claims.Role),
	}, nil
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
