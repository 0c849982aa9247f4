package auth

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrUnauthenticated is returned for a missing, expired or otherwise
// invalid credential. Callers reject the request or leave the connection
// without room membership; no partial identity is ever granted.
var ErrUnauthenticated = errors.New("unauthenticated")

const (
	RoleRider  = "rider"
	RoleDriver = "driver"
	RoleAdmin  = "admin"
)

// Identity is the result of verifying a bearer credential. It is bound to
// a connection once at handshake and never rotated mid-connection.
type Identity struct {
	Email string
	Role  string
}

// Verifier turns a bearer credential into an identity. The same credential
// format is accepted on HTTP requests and on the websocket handshake.
type Verifier interface {
	Verify(credential string) (Identity, error)
}

type claims struct {
	Email string `json:"email"`
	Role  string `json:"role"`
	jwt.RegisteredClaims
}

// JWTVerifier validates HS256 tokens carrying email and role claims.
type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) Verify(credential string) (Identity, error) {
	credential = strings.TrimSpace(strings.TrimPrefix(credential, "Bearer "))
	if credential == "" {
		return Identity{}, ErrUnauthenticated
	}
	token, err := jwt.ParseWithClaims(credential, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrUnauthenticated
	}
	c, ok := token.Claims.(*claims)
	if !ok || c.Email == "" {
		return Identity{}, ErrUnauthenticated
	}
	role := c.Role
	if role == "" {
		role = RoleRider
	}
	return Identity{Email: c.Email, Role: role}, nil
}

// Sign issues a token for the given identity. Used by tests and local
// tooling; token issuance proper lives outside this service.
func (v *JWTVerifier) Sign(id Identity, opts ...func(*jwt.RegisteredClaims)) (string, error) {
	rc := jwt.RegisteredClaims{}
	for _, o := range opts {
		o(&rc)
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{Email: id.Email, Role: id.Role, RegisteredClaims: rc})
	return token.SignedString(v.secret)
}
