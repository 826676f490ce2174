package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lessslie/Pelu-PetShop/pkg/auth"
	apperrors "github.com/lessslie/Pelu-PetShop/pkg/errors"
	"github.com/lessslie/Pelu-PetShop/pkg/httputil"
)

const ContextClaims = "claims"

type AuthMiddleware struct {
	jwt auth.JWTService
}

func NewAuthMiddleware(jwt auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwt}
}

// RequireAdmin lets through only bearer tokens carrying the admin role.
func (m *AuthMiddleware) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			httputil.RespondWithError(c, apperrors.Unauthorized(errors.New("missing bearer token")))
			return
		}

		claims, err := m.jwt.ValidateAdmin(token)
		switch {
		case errors.Is(err, auth.ErrNotAdmin):
			httputil.RespondWithError(c, apperrors.Forbidden(err))
			return
		case err != nil:
			httputil.RespondWithError(c, apperrors.Unauthorized(err))
			return
		}

		c.Set(ContextClaims, claims)
		c.Next()
	}
}
