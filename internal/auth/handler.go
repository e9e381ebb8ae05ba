package auth

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mBelstad/preke-r58-recorder-sub015/pkg/response"
	"github.com/mBelstad/preke-r58-recorder-sub015/pkg/utils"
)

// Handler exposes the operator login endpoint. There is a single panel
// credential: the bcrypt hash configured on the service.
type Handler struct {
	passwordHash string
	jwt          *JWTService
	log          *zap.Logger
}

// NewHandler creates the auth handler. An empty hash disables login
// (and with it, all token-gated routes).
func NewHandler(passwordHash string, jwt *JWTService, log *zap.Logger) *Handler {
	return &Handler{passwordHash: passwordHash, jwt: jwt, log: log}
}

type loginRequest struct {
	Password string `json:"password" binding:"required"`
}

// Login validates the operator password and issues a token.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "password required")
		return
	}
	if h.passwordHash == "" || !utils.CheckPassword(req.Password, h.passwordHash) {
		h.log.Warn("operator login rejected", zap.String("client_ip", c.ClientIP()))
		response.Unauthorized(c, "invalid credentials")
		return
	}
	token, err := h.jwt.Generate()
	if err != nil {
		response.Internal(c, "token generation failed")
		return
	}
	response.OK(c, gin.H{"token": token})
}
