package handler

import (
	"crypto/subtle"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/d60-Lab/replweb/internal/logstore"
	"github.com/d60-Lab/replweb/internal/service"
	"github.com/d60-Lab/replweb/pkg/response"
)

const msgpackContentType = "application/msgpack"

// replicaAuth 校验 follower 凭证；leader 未配置凭证即不要求鉴权
func (h *Handler) replicaAuth(c *gin.Context) bool {
	want := h.cfg.Replication
	if want.UserID == "" {
		return true
	}
	user := c.GetHeader(service.HeaderReplicaUser)
	token := c.GetHeader(service.HeaderReplicaToken)
	if subtle.ConstantTimeCompare([]byte(user), []byte(want.UserID)) == 1 &&
		subtle.ConstantTimeCompare([]byte(token), []byte(want.Token)) == 1 {
		return true
	}
	response.Unauthorized(c, "replica credentials rejected")
	return false
}

// Transactions 复制端点：返回 id > after 的日志批次（msgpack）
// @Summary 拉取事务日志
// @Tags 复制
// @Param after query int true "已应用的最后事务 id"
// @Param limit query int false "批次条数上限"
// @Param bytes query int false "批次字节预算"
// @Produce octet-stream
// @Success 200 {string} binary "msgpack 编码的日志批次"
// @Router /api/v1/replication/transactions [get]
func (h *Handler) Transactions(c *gin.Context) {
	if !h.replicaAuth(c) {
		return
	}
	after, _ := strconv.ParseInt(c.DefaultQuery("after", "0"), 10, 64)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "0"))
	maxBytes, _ := strconv.Atoi(c.DefaultQuery("bytes", "0"))

	recs, err := h.txlog.ListAfter(c.Request.Context(), after, limit, maxBytes)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	entries := make([]logstore.LogEntry, len(recs))
	for i, rec := range recs {
		entries[i] = logstore.LogEntry{ID: rec.ID, Payload: rec.Payload}
	}
	data, err := logstore.EncodeEntries(entries)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	c.Data(http.StatusOK, msgpackContentType, data)
}

// Snapshot 全量快照：截至当前的完整日志回放（bootstrap 用）
// @Summary 拉取全量快照
// @Tags 复制
// @Produce octet-stream
// @Success 200 {string} binary "msgpack 编码的快照"
// @Router /api/v1/replication/snapshot [get]
func (h *Handler) Snapshot(c *gin.Context) {
	if !h.replicaAuth(c) {
		return
	}
	ctx := c.Request.Context()
	last, err := h.txlog.LastID(ctx)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	recs, err := h.txlog.All(ctx)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	snap := &logstore.Snapshot{SnapshotID: last, Records: make([]logstore.LogEntry, len(recs))}
	for i, rec := range recs {
		snap.Records[i] = logstore.LogEntry{ID: rec.ID, Payload: rec.Payload}
	}
	data, err := logstore.EncodeSnapshot(snap)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	c.Data(http.StatusOK, msgpackContentType, data)
}
