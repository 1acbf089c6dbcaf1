package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/joho/godotenv"

	"github.com/liangxiao/meya/backend/internal/config"
	"github.com/liangxiao/meya/backend/internal/handler"
	"github.com/liangxiao/meya/backend/internal/handler/stream"
	"github.com/liangxiao/meya/backend/internal/service/ai"
	"github.com/liangxiao/meya/backend/internal/service/chat"
	"github.com/liangxiao/meya/backend/internal/service/train"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Initialize session service and the idle-session sweeper
	chatSvc := chat.NewService(chat.Config{
		IdleTTL:       cfg.Session.IdleTTL,
		SweepInterval: cfg.Session.SweepInterval,
	})
	chatSvc.StartSweeper(ctx)

	// Initialize train lookup collaborator and its model-callable tool
	trainSvc := train.NewService(cfg.Train)
	trainTool, err := trainSvc.Tool()
	if err != nil {
		log.Fatalf("failed to build train tool: %v", err)
	}

	// Initialize AI service
	var streamHandler *stream.Handler
	if cfg.AI.Enabled() {
		aiService, err := ai.NewService(ctx, cfg.AI, []tool.BaseTool{trainTool})
		if err != nil {
			log.Printf("warning: failed to initialize AI service: %v", err)
			log.Println("continuing without AI functionality - 请检查 Ark 模型相关环境变量")
		} else {
			streamHandler = stream.New(aiService, chatSvc, cfg.Session.StreamTimeout)
			log.Println("AI service initialized successfully")
		}
	} else {
		log.Println("Ark 凭证未配置，跳过 AI 功能初始化")
	}

	router := handler.NewRouter(cfg.Server, chatSvc, streamHandler)

	startServer(ctx, cfg.Server, router)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	addr := serverCfg.Addr
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Meya backend listening on %s", addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
