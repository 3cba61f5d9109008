package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/abhigit-saha/hack36-sub000/internal/apperror"
	"github.com/abhigit-saha/hack36-sub000/internal/model"
)

const identityKey = "chat.identity"

var ErrMissingToken = errors.New("missing session token")

// Identity is the authenticated participant behind a request or socket.
type Identity struct {
	ID   string
	Type model.SenderType
}

// Claims are the session claims issued by the identity service.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Verifier checks HMAC-signed session tokens. A Verifier built with an empty
// secret is disabled and identifies nobody.
type Verifier struct {
	secret     []byte
	cookieName string
}

func NewVerifier(secret, cookieName string) *Verifier {
	return &Verifier{secret: []byte(secret), cookieName: cookieName}
}

func (v *Verifier) Enabled() bool {
	return v != nil && len(v.secret) > 0
}

// Verify parses token and returns the identity it carries.
func (v *Verifier) Verify(token string) (Identity, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	if err != nil {
		return Identity{}, err
	}
	if !parsed.Valid {
		return Identity{}, jwt.ErrTokenInvalidClaims
	}

	role := model.SenderType(claims.Role)
	if claims.Subject == "" || !role.Valid() {
		return Identity{}, fmt.Errorf("%w: subject and role are required", jwt.ErrTokenInvalidClaims)
	}
	return Identity{ID: claims.Subject, Type: role}, nil
}

// Issue signs a session token. The identity service owns issuance in
// production; this exists for tooling and tests.
func (v *Verifier) Issue(id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Role: string(id.Type),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// FromRequest authenticates r. ok is false when the verifier is disabled.
func (v *Verifier) FromRequest(r *http.Request) (id Identity, ok bool, err error) {
	if !v.Enabled() {
		return Identity{}, false, nil
	}

	token := tokenFromRequest(r, v.cookieName)
	if token == "" {
		return Identity{}, false, apperror.Unauthorized(ErrMissingToken.Error())
	}

	id, err = v.Verify(token)
	if err != nil {
		return Identity{}, false, apperror.Unauthorized("invalid session token")
	}
	return id, true, nil
}

// Middleware authenticates every request when the verifier is enabled and stores
// the identity on the gin context.
func (v *Verifier) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok, err := v.FromRequest(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(apperror.HTTPStatus(err), gin.H{"message": apperror.PublicMessage(err)})
			return
		}
		if ok {
			c.Set(identityKey, id)
		}
		c.Next()
	}
}

// IdentityFrom returns the identity stored by Middleware, if any.
func IdentityFrom(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}

func tokenFromRequest(r *http.Request, cookieName string) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	if cookieName != "" {
		if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
			return c.Value
		}
	}
	// Browsers cannot set headers on a websocket handshake.
	return r.URL.Query().Get("token")
}
