package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/replweb/pkg/auth"
	"github.com/d60-Lab/replweb/pkg/response"
)

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login 管理端登录，签发会话令牌
// @Summary 登录
// @Tags 认证
// @Accept json
// @Produce json
// @Param request body loginRequest true "账号口令"
// @Success 200 {object} response.Response
// @Failure 401 {object} response.Response
// @Router /api/v1/login [post]
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	u, err := h.users.FindByUsername(c.Request.Context(), req.Username)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if u == nil {
		response.Unauthorized(c, "bad credentials")
		return
	}
	ok, err := auth.VerifyPassword(req.Password, u.Password)
	if err != nil || !ok {
		response.Unauthorized(c, "bad credentials")
		return
	}
	token, err := auth.IssueToken(h.cfg.Auth.JWTSecret, u.ID, u.Username, h.cfg.Auth.TokenTTL)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"token": token})
}
