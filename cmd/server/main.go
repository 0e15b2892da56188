package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/d60-Lab/replweb/config"
	_ "github.com/d60-Lab/replweb/docs"
	"github.com/d60-Lab/replweb/internal/api/handler"
	"github.com/d60-Lab/replweb/internal/logstore"
	"github.com/d60-Lab/replweb/internal/repository"
	"github.com/d60-Lab/replweb/internal/service"
	"github.com/d60-Lab/replweb/pkg/auth"
	"github.com/d60-Lab/replweb/pkg/cache"
	"github.com/d60-Lab/replweb/pkg/database"
	"github.com/d60-Lab/replweb/pkg/logger"
	"github.com/d60-Lab/replweb/pkg/tracing"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if err := logger.Init(cfg.Server.Mode, cfg.Sentry.Enabled); err != nil {
		panic(err)
	}
	defer logger.Sync()

	if cfg.Sentry.Enabled {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.Sentry.DSN}); err != nil {
			logger.Warn("sentry init failed", zap.Error(err))
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Otel.Enabled {
		shutdown, err := tracing.Init(ctx, cfg.Otel.Endpoint, "replweb")
		if err != nil {
			logger.Warn("tracing init failed", zap.Error(err))
		} else {
			defer func() { _ = shutdown(context.Background()) }()
		}
	}

	db, err := database.InitDB(cfg)
	if err != nil {
		logger.Error("database init failed", zap.Error(err))
		return
	}

	isLeader := cfg.IsLeader()
	store := logstore.NewStore(db, isLeader)
	txlogRepo := repository.NewTxLogRepository(db)
	cursorRepo := repository.NewCursorRepository(db)
	jobRepo := repository.NewJobRepository(store)
	emailRepo := repository.NewEmailRepository(store)
	userRepo := repository.NewUserRepository(store)

	sched := service.NewScheduler(jobRepo, cfg.Scheduler)

	var sender service.Sender
	if cfg.Email.SMTPHost != "" {
		sender, err = service.NewSMTPSender(cfg.Email)
		if err != nil {
			logger.Error("smtp init failed", zap.Error(err))
			return
		}
	} else {
		logger.Warn("smtp not configured, outbound email disabled")
		sender = service.NewDisabledSender()
	}
	mailer := service.NewMailer(emailRepo, sched, sender, cfg.Email)
	mailer.RegisterJobs()

	var repl *service.Replicator
	if !isLeader {
		repl = service.NewReplicator(store, cursorRepo, service.NewLeaderFetcher(cfg.Replication), cfg.Replication)
	}

	c := cache.Disabled()
	if cfg.Redis.Enabled {
		c = cache.New(cfg.Redis.Addr)
		defer c.Close()
	}

	if isLeader {
		seedAdmin(ctx, userRepo)
	}

	h := handler.NewHandler(cfg, store, txlogRepo, jobRepo, emailRepo, userRepo, mailer, sched, repl, c)
	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Server.IP, cfg.Server.Port),
		Handler: handler.NewRouter(h),
	}

	// 后台子系统：leader 跑调度器（邮件管线挂在上面），
	// follower 跑复制客户端；互不依赖，退避与恢复各自负责。
	var wg sync.WaitGroup
	if isLeader {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := sched.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("scheduler stopped", zap.Error(err))
			}
		}()
	} else {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := repl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				// 凭证类致命错误：复制停了，但请求服务继续
				logger.Error("replication stopped", zap.Error(err))
			}
		}()
	}

	go func() {
		logger.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.Bool("leader", isLeader))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	// 协作式退出：进行中的回放/任务事务在 Run 返回前已提交或回滚
	wg.Wait()
}

// seedAdmin 空库时生成管理员账号，随机口令只打印一次
func seedAdmin(ctx context.Context, users repository.UserRepository) {
	u, err := users.FindByUsername(ctx, "admin")
	if err != nil {
		logger.Error("admin seed lookup failed", zap.Error(err))
		return
	}
	if u != nil {
		return
	}
	password := uuid.New().String()
	hash, err := auth.HashPassword(password)
	if err != nil {
		logger.Error("admin seed failed", zap.Error(err))
		return
	}
	if _, err := users.Create(ctx, "admin", hash); err != nil {
		logger.Error("admin seed failed", zap.Error(err))
		return
	}
	logger.Info("admin user created", zap.String("username", "admin"), zap.String("password", password))
}
