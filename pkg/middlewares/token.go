package middlewares

import (
	t_token "messenger_sync/pkg/token"

	"github.com/gofiber/fiber/v2"
)

const (
	//QueryToken token in query name, EventSource and websocket clients cannot set headers
	QueryToken = "token"

	//TokenUserID get user from token, set c.locals name
	TokenUserID = "UserID"
)

// JWTMiddleware validates JWT in the Authorization header or the token query
func JWTMiddleware(issuer *t_token.Issuer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenStr := t_token.BearerToken(c.Get(fiber.HeaderAuthorization))

		// header 沒有 token，則嘗試從查詢參數中獲取
		if tokenStr == "" {
			tokenStr = c.Query(QueryToken)
		}

		if tokenStr == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Missing token",
			})
		}

		claims, err := issuer.ParseJWT(tokenStr)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Invalid token",
			})
		}

		c.Locals(TokenUserID, claims.UserID)
		return c.Next()
	}
}

// UserID read the user id stored by JWTMiddleware
func UserID(c *fiber.Ctx) string {
	id, _ := c.Locals(TokenUserID).(string)
	return id
}
