package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/d60-Lab/replweb/config"
	"github.com/d60-Lab/replweb/internal/logstore"
)

// ErrUnauthorized leader 拒绝凭证：配置错误，不可重试
var ErrUnauthorized = errors.New("replication: credentials rejected by leader")

// Fetcher 从 leader 拉取日志的传输接口
type Fetcher interface {
	// FetchBatch 拉取 id > after 的事务，受条数与字节预算约束；追平时返回空
	FetchBatch(ctx context.Context, after int64, maxCount, maxBytes int) ([]logstore.LogEntry, error)
	// FetchSnapshot 全量快照（bootstrap 用）
	FetchSnapshot(ctx context.Context) (*logstore.Snapshot, error)
}

// 复制凭证请求头（user id + 预哈希口令）
const (
	HeaderReplicaUser  = "X-Replica-User"
	HeaderReplicaToken = "X-Replica-Token"
)

// LeaderFetcher HTTP 实现；凭证未配置表示 leader 不要求鉴权
type LeaderFetcher struct {
	base   string
	userID string
	token  string
	client *http.Client
}

func NewLeaderFetcher(cfg config.ReplicationConfig) *LeaderFetcher {
	return &LeaderFetcher{
		base:   cfg.Source,
		userID: cfg.UserID,
		token:  cfg.Token,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

func (f *LeaderFetcher) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.base+path, nil)
	if err != nil {
		return nil, err
	}
	if f.userID != "" {
		req.Header.Set(HeaderReplicaUser, f.userID)
		req.Header.Set(HeaderReplicaToken, f.token)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("replication: leader returned %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func (f *LeaderFetcher) FetchBatch(ctx context.Context, after int64, maxCount, maxBytes int) ([]logstore.LogEntry, error) {
	path := fmt.Sprintf("/api/v1/replication/transactions?after=%d&limit=%d&bytes=%d", after, maxCount, maxBytes)
	body, err := f.get(ctx, path)
	if err != nil {
		return nil, err
	}
	return logstore.DecodeEntries(body)
}

func (f *LeaderFetcher) FetchSnapshot(ctx context.Context) (*logstore.Snapshot, error) {
	body, err := f.get(ctx, "/api/v1/replication/snapshot")
	if err != nil {
		return nil, err
	}
	return logstore.DecodeSnapshot(body)
}
