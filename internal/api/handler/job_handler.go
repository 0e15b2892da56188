package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/replweb/pkg/response"
)

type createJobRequest struct {
	Name    string    `json:"name" binding:"required"`
	DueAt   time.Time `json:"due_at" binding:"required"`
	Attempt int       `json:"attempt"`
}

// CreateJob 插入延迟任务（插入会缩短调度器正在等待的睡眠）
// @Summary 插入延迟任务
// @Tags 任务
// @Accept json
// @Produce json
// @Param request body createJobRequest true "任务信息"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /api/v1/jobs [post]
func (h *Handler) CreateJob(c *gin.Context) {
	if !h.store.Leader() {
		response.Misdirected(c, "followers do not accept writes")
		return
	}
	var req createJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	id, err := h.sched.InsertJob(c.Request.Context(), req.Name, req.DueAt, req.Attempt)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"id": id})
}

// ListJobs 查询待执行任务
// @Summary 查询任务列表
// @Tags 任务
// @Param limit query int false "数量上限" default(100)
// @Success 200 {object} response.Response
// @Router /api/v1/jobs [get]
func (h *Handler) ListJobs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	jobs, err := h.jobs.List(c.Request.Context(), limit)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Success(c, gin.H{"list": jobs})
}
