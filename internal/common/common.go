package common

import (
	"retro-backend/internal/config"
	"retro-backend/internal/models"
	"retro-backend/internal/query"
	"retro-backend/internal/store"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// Admin token roles
const (
	// RoleAdmin sees every team
	RoleAdmin = "admin"
	// RoleScrumMaster is scoped to the team in the token
	RoleScrumMaster = "scrum_master"
)

type AdminClaims struct {
	Role string `json:"role"`
	Team string `json:"team,omitempty"`
	jwt.RegisteredClaims
}

// Scoped reports whether the token only grants access to one team
func (c *AdminClaims) Scoped() bool {
	return c.Role != RoleAdmin
}

type JWTIssuer interface {
	// GenerateToken issues an admin token; a non-empty team scopes it to that team
	GenerateToken(team string) (string, error)
	Middleware() echo.MiddlewareFunc
	GetClaims(c echo.Context) (*AdminClaims, error)
}

type ServerState struct {
	Echo      *echo.Echo
	Config    *config.Config
	Schema    models.Schema
	Store     store.FeedbackStore
	Query     *query.Service
	JwtIssuer JWTIssuer
	Redis     *redis.Client
}
