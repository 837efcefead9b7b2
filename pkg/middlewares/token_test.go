package middlewares

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"

	t_token "family_chat_service/pkg/token"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func protectedApp() *fiber.App {
	app := fiber.New()
	app.Use(JWTMiddleware())
	app.Get("/whoami", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"name":   c.Locals(TokenMemberName),
			"family": c.Locals(TokenFamily),
			"role":   c.Locals(TokenRole),
		})
	})
	return app
}

func TestJWTMiddleware(t *testing.T) {
	t.Run("missing token is rejected", func(t *testing.T) {
		app := protectedApp()
		resp, err := app.Test(httptest.NewRequest("GET", "/whoami", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("garbage token is rejected", func(t *testing.T) {
		app := protectedApp()
		resp, err := app.Test(httptest.NewRequest("GET", "/whoami?auth=not-a-jwt", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("issued token populates locals", func(t *testing.T) {
		tok, err := t_token.GenerateJWTWrapper("anna", "family-7", string(t_token.RoleMember))
		require.NoError(t, err)

		app := protectedApp()
		resp, err := app.Test(httptest.NewRequest("GET", "/whoami?auth="+tok, nil))
		require.NoError(t, err)
		require.Equal(t, fiber.StatusOK, resp.StatusCode)

		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		var got map[string]string
		require.NoError(t, json.Unmarshal(body, &got))
		assert.Equal(t, "anna", got["name"])
		assert.Equal(t, "family-7", got["family"])
		assert.Equal(t, string(t_token.RoleMember), got["role"])
	})

	t.Run("parse goes through the swappable wrapper", func(t *testing.T) {
		var seen string
		t_token.ParseJWTFunc = func(tokenStr string) (*t_token.Claims, error) {
			seen = tokenStr
			return &t_token.Claims{Name: "stub", Family: "fam"}, nil
		}
		defer func() { t_token.ParseJWTFunc = t_token.ParseJWT }()

		app := protectedApp()
		resp, err := app.Test(httptest.NewRequest("GET", "/whoami?auth=opaque", nil))
		require.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
		assert.Equal(t, "opaque", seen)
	})
}
