package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/Spok95/entry-gate/internal/config"
	"github.com/Spok95/entry-gate/internal/domain/gate"
	"github.com/Spok95/entry-gate/internal/domain/pending"
	"github.com/Spok95/entry-gate/internal/domain/report"
	"github.com/Spok95/entry-gate/internal/domain/session"
	"github.com/Spok95/entry-gate/internal/domain/token"
	httpx "github.com/Spok95/entry-gate/internal/infra/http"
	"github.com/Spok95/entry-gate/internal/infra/ledger"
	"github.com/Spok95/entry-gate/internal/infra/logger"
	"github.com/Spok95/entry-gate/internal/infra/notify"
	"github.com/Spok95/entry-gate/internal/qr"
)

func main() {
	cfg, err := config.Load("config/example.yaml")
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.App.Env)

	if err := os.MkdirAll(cfg.Data.Dir, 0o755); err != nil {
		log.Error("data dir", "err", err)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	key, err := token.LoadOrCreateKey(cfg.DataFile("secret.key"))
	if err != nil {
		log.Error("token key", "err", err)
		return
	}
	codec, err := token.New(key)
	if err != nil {
		log.Error("token codec", "err", err)
		return
	}

	pendingStore := pending.NewStore(cfg.DataFile("pending_keys.json"), log)
	if err := pendingStore.Load(); err != nil {
		log.Error("pending store load", "err", err)
		return
	}
	sessionStore := session.NewStore(cfg.DataFile("active_sessions.json"), log)
	if err := sessionStore.Load(); err != nil {
		log.Error("session store load", "err", err)
		return
	}
	contacts := notify.NewContacts(cfg.DataFile("contacts.json"), log)
	if err := contacts.Load(); err != nil {
		log.Error("contacts load", "err", err)
		return
	}
	reportState := report.NewState(cfg.DataFile("server_state.json"), log)
	if err := reportState.Load(); err != nil {
		log.Error("report state load", "err", err)
		return
	}

	api, err := tgbotapi.NewBotAPI(cfg.Telegram.Token)
	if err != nil {
		log.Error("telegram init failed", "err", err)
		return
	}
	log.Info("telegram authorized", "account", api.Self.UserName)

	tg := notify.NewTelegram(api, contacts, cfg.Telegram.AdminChatID, log)
	go func() {
		if err := tg.Run(ctx, 30); err != nil && ctx.Err() == nil {
			log.Error("telegram updates stopped", "err", err)
		}
	}()

	queue := notify.NewQueue(tg, cfg.Notify.QueueSize, log)
	go queue.Run(ctx)

	book := ledger.New(cfg.Ledger.Path)

	qrGen, err := qr.New("generated_qrs")
	if err != nil {
		log.Error("qr dir", "err", err)
		return
	}

	timers := session.NewManager(ctx, sessionStore, queue, cfg.WarningBuffer(), log, nil)
	resumed := timers.Recover()
	log.Info("session recovery done", "resumed", resumed)

	svc := gate.NewService(ctx, log, codec, pendingStore, sessionStore, timers,
		book, queue, qrGen, cfg.PublicBaseURL())

	reporter := report.NewTask(log, book, queue, reportState,
		cfg.Admin.Phone, cfg.ReportInterval(), cfg.ReportCooldown(), nil)
	go reporter.Run(ctx)

	h := httpx.NewHandler(log, svc, book, queue, cfg.Admin.Username, cfg.Admin.Password)
	srv := httpx.New(cfg.HTTP.Addr, h, qrGen.Dir(), cfg.Metrics.Enabled)
	go func() {
		if err := srv.Start(); err != nil && err.Error() != "http: Server closed" {
			log.Error("http server error", "err", err)
		}
	}()
	log.Info("gate server started", "addr", cfg.HTTP.Addr, "base_url", cfg.PublicBaseURL())

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	timers.Wait()
	log.Info("graceful shutdown complete")
}
