package handler

import (
	"github.com/d60-Lab/replweb/config"
	"github.com/d60-Lab/replweb/internal/logstore"
	"github.com/d60-Lab/replweb/internal/repository"
	"github.com/d60-Lab/replweb/internal/service"
	"github.com/d60-Lab/replweb/pkg/cache"
)

// Handler HTTP 处理器集合
type Handler struct {
	cfg    *config.Config
	store  *logstore.Store
	txlog  repository.TxLogRepository
	jobs   repository.JobRepository
	emails repository.EmailRepository
	users  repository.UserRepository
	mailer *service.Mailer
	sched  *service.Scheduler
	repl   *service.Replicator // follower 才有
	cache  *cache.Cache
}

func NewHandler(
	cfg *config.Config,
	store *logstore.Store,
	txlog repository.TxLogRepository,
	jobs repository.JobRepository,
	emails repository.EmailRepository,
	users repository.UserRepository,
	mailer *service.Mailer,
	sched *service.Scheduler,
	repl *service.Replicator,
	c *cache.Cache,
) *Handler {
	return &Handler{
		cfg:    cfg,
		store:  store,
		txlog:  txlog,
		jobs:   jobs,
		emails: emails,
		users:  users,
		mailer: mailer,
		sched:  sched,
		repl:   repl,
		cache:  c,
	}
}
