package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/replweb/pkg/response"
)

const statusCacheKey = "replweb:status"

type statusPayload struct {
	Role        string      `json:"role"`
	LastLogID   int64       `json:"last_log_id,omitempty"`
	Replication interface{} `json:"replication,omitempty"`
	PendingJobs int64       `json:"pending_jobs"`
	QueuedMails int64       `json:"queued_mails"`
}

// Status 进程状态：角色、日志位置、队列深度（短 TTL 缓存）
// @Summary 状态
// @Tags 状态
// @Produce json
// @Success 200 {object} response.Response
// @Router /api/v1/status [get]
func (h *Handler) Status(c *gin.Context) {
	ctx := c.Request.Context()
	if cached, ok := h.cache.Get(ctx, statusCacheKey); ok {
		c.Data(http.StatusOK, "application/json", []byte(cached))
		return
	}

	var st statusPayload
	if h.store.Leader() {
		st.Role = "leader"
		last, err := h.txlog.LastID(ctx)
		if err != nil {
			response.InternalError(c, err)
			return
		}
		st.LastLogID = last
	} else {
		st.Role = "follower"
		if h.repl != nil {
			st.Replication = h.repl.Status()
		}
	}
	st.PendingJobs, _ = h.jobs.PendingCount(ctx)
	st.QueuedMails, _ = h.emails.QueuedCount(ctx)

	body := response.Response{Code: 0, Msg: "ok", Data: st}
	if raw, err := json.Marshal(body); err == nil {
		h.cache.Set(ctx, statusCacheKey, string(raw), 2*time.Second)
	}
	response.Success(c, st)
}
