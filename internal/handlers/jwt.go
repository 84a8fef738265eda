package handlers

import (
	"errors"
	"time"

	"retro-backend/internal/common"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
)

const adminTokenTTL = 12 * time.Hour

type JwtAuth struct {
	Secret string
	TTL    time.Duration
}

func NewJwtAuth(secret string) *JwtAuth {
	return &JwtAuth{Secret: secret, TTL: adminTokenTTL}
}

func (j *JwtAuth) GenerateToken(team string) (string, error) {
	role := common.RoleAdmin
	if team != "" {
		role = common.RoleScrumMaster
	}

	now := time.Now()
	claims := &common.AdminClaims{
		Role: role,
		Team: team,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   role,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.TTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(j.Secret))
}

func (j *JwtAuth) Middleware() echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey: []byte(j.Secret),
		NewClaimsFunc: func(c echo.Context) jwt.Claims {
			return new(common.AdminClaims)
		},
	})
}

func (j *JwtAuth) GetClaims(c echo.Context) (*common.AdminClaims, error) {
	token, ok := c.Get("user").(*jwt.Token)
	if !ok || token == nil {
		return nil, errors.New("missing admin token")
	}
	claims, ok := token.Claims.(*common.AdminClaims)
	if !ok {
		return nil, errors.New("unexpected token claims")
	}
	if claims.Role != common.RoleAdmin && claims.Role != common.RoleScrumMaster {
		return nil, errors.New("token does not grant admin access")
	}
	if claims.Role == common.RoleScrumMaster && claims.Team == "" {
		return nil, errors.New("scrum master token has no team")
	}
	return claims, nil
}
