package authenticator

import (
	"errors"
	"fmt"
	"time"

	"github.com/curaious/xm/internal/security"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid access token")

// UserClaims is the payload of access tokens issued by this server
type UserClaims struct {
	jwt.RegisteredClaims
	UserID uuid.UUID       `json:"uid"`
	Email  string          `json:"email"`
	Name   string          `json:"name"`
	Roles  []security.Role `json:"roles"`
}

// UserContext converts the claims into the caller description services read.
func (c *UserClaims) UserContext() *security.UserContext {
	id := c.UserID
	return &security.UserContext{
		User: security.User{
			ID:    &id,
			Email: c.Email,
			Name:  c.Name,
		},
		AssignedRoles: append([]security.Role(nil), c.Roles...),
	}
}

// GenerateToken issues an HS256 access token carrying the user's global roles.
func (a *Authenticator) GenerateToken(userID uuid.UUID, email, name string, roles []security.Role) (string, error) {
	now := time.Now()
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, UserClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.tokenTTL)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
		UserID: userID,
		Email:  email,
		Name:   name,
		Roles:  roles,
	})

	return t.SignedString(a.jwtSecret)
}

func (a *Authenticator) VerifyAccessToken(tokenString string) (*UserClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.jwtSecret, nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*UserClaims)
	if !ok || !token.Valid || claims.UserID == uuid.Nil {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
