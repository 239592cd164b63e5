package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/chatloop/chatloop/config"
	"github.com/chatloop/chatloop/db"
	"github.com/chatloop/chatloop/services"
)

// Server wires the HTTP surface to the repositories and services.
type Server struct {
	Config                 *config.Config
	AuthRepository         db.AuthRepository
	ConversationRepository db.ConversationRepository
	MessageRepository      db.MessageRepository
	ChatService            services.ChatService
	MessageService         services.MessageService
	Broadcaster            services.Broadcaster
}

// Start serves HTTP until SIGINT/SIGTERM, then drains for up to 10 seconds.
func (s *Server) Start() {
	r := s.setupRouter()

	addr := fmt.Sprintf(":%d", s.Config.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.WithField("addr", addr).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}
	log.Info("server exited")
}
