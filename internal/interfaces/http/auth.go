package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/garyjia/receivables-portal/internal/domain/entity"
	"github.com/garyjia/receivables-portal/internal/domain/workflow"
)

const actorKey = "portal.actor"

// ErrInvalidToken is returned for tokens that fail verification
var ErrInvalidToken = errors.New("invalid token")

// ActorClaims carries the actor identity inside a signed token
type ActorClaims struct {
	jwt.RegisteredClaims
	Role  workflow.Role `json:"role"`
	Scope string        `json:"scope,omitempty"`
}

// TokenManager issues and verifies HS256 actor tokens
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager creates a token manager
func NewTokenManager(secret, issuer string, ttl time.Duration) *TokenManager {
	return &TokenManager{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue signs a token for the actor
func (m *TokenManager) Issue(actor entity.Actor) (string, error) {
	if actor.UserID == "" || !actor.Role.IsValid() {
		return "", fmt.Errorf("actor requires a user id and a known role")
	}
	now := m.now()
	claims := ActorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.UserID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
		},
		Role:  actor.Role,
		Scope: actor.RoleScopeID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Parse verifies the token and returns the actor it names
func (m *TokenManager) Parse(token string) (entity.Actor, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	claims := &ActorClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil {
		return entity.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.Subject == "" || !claims.Role.IsValid() {
		return entity.Actor{}, ErrInvalidToken
	}
	return entity.Actor{
		UserID:      claims.Subject,
		Role:        claims.Role,
		RoleScopeID: claims.Scope,
	}, nil
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// authMiddleware rejects requests without a valid bearer token and stores the actor
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortJSON(c, http.StatusUnauthorized, "authentication required", "unauthorized")
			return
		}
		actor, err := s.tokens.Parse(token)
		if err != nil {
			s.logger.Info("Rejected token", "error", err, "path", c.Request.URL.Path)
			abortJSON(c, http.StatusUnauthorized, "invalid credentials", "unauthorized")
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

// requireRoles allows only the listed roles through
func requireRoles(roles ...workflow.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor := actorFrom(c)
		for _, r := range roles {
			if actor.Role == r {
				c.Next()
				return
			}
		}
		abortJSON(c, http.StatusForbidden, fmt.Sprintf("role %s may not access this resource", actor.Role), "forbidden")
	}
}

func actorFrom(c *gin.Context) entity.Actor {
	if v, ok := c.Get(actorKey); ok {
		if actor, ok := v.(entity.Actor); ok {
			return actor
		}
	}
	return entity.Actor{}
}
