package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/replweb/internal/model"
	"github.com/d60-Lab/replweb/pkg/response"
)

type createEmailRequest struct {
	From    string `json:"from"`
	To      string `json:"to" binding:"required"`
	Subject string `json:"subject"`
	Body    string `json:"body" binding:"required"`
	HTML    bool   `json:"html"`
}

// CreateEmail 入队出站邮件并触发即时投递
// @Summary 入队邮件
// @Tags 邮件
// @Accept json
// @Produce json
// @Param request body createEmailRequest true "邮件内容"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/emails [post]
func (h *Handler) CreateEmail(c *gin.Context) {
	if !h.store.Leader() {
		response.Misdirected(c, "followers do not accept writes")
		return
	}
	var req createEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	msg := &model.EmailMessage{
		From:    req.From,
		To:      req.To,
		Subject: req.Subject,
		Body:    req.Body,
		HTML:    req.HTML,
	}
	if err := h.mailer.Enqueue(c.Request.Context(), msg); err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"id": msg.ID})
}

// ListEmails 查询邮件（含状态与重试信息）
// @Summary 查询邮件列表
// @Tags 邮件
// @Param limit query int false "数量上限" default(100)
// @Success 200 {object} response.Response
// @Router /api/v1/emails [get]
func (h *Handler) ListEmails(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	msgs, err := h.emails.List(c.Request.Context(), limit)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"list": msgs})
}

// ListEmailErrors 查询终局错误日志
// @Summary 查询投递错误日志
// @Tags 邮件
// @Param limit query int false "数量上限" default(100)
// @Success 200 {object} response.Response
// @Router /api/v1/emails/errors [get]
func (h *Handler) ListEmailErrors(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	errs, err := h.emails.Errors(c.Request.Context(), limit)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"list": errs})
}
