package identity

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/medreg/medreg/internal/platform/auth"
)

// Handler serves the token issuer endpoint. Login is a public route; every
// other route in the system sits behind the gateway filter.
type Handler struct {
	svc    *Service
	signer *auth.Signer
}

func NewHandler(svc *Service, signer *auth.Signer) *Handler {
	return &Handler{svc: svc, signer: signer}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/auth/login", h.Login)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Email == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email and password are required")
	}

	u, err := h.svc.Authenticate(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "login failed")
	}

	token, expiresAt, err := h.signer.Sign(u.ID.String(), u.Role)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "token issue failed")
	}

	return c.JSON(http.StatusOK, loginResponse{Token: token, ExpiresAt: expiresAt})
}
