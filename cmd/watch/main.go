package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"motorent/internal/config"
	"motorent/internal/live"
	"motorent/internal/notification"
	"motorent/internal/pkg/token"
	"motorent/internal/realtime"
)

// watch signs on with an access token and tails live notification and chat
// events. Handy for poking at a running backend.
func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	accessToken := os.Getenv("ACCESS_TOKEN")
	if accessToken == "" {
		log.Fatal("ACCESS_TOKEN is empty")
	}
	claims, err := token.Peek(accessToken)
	if err != nil {
		log.Fatal(err)
	}

	svc := live.New(cfg)
	if err := svc.SignIn(context.Background(), claims.UserID, accessToken); err != nil {
		log.Fatal(err)
	}
	defer svc.SignOut()

	svc.Manager().Subscribe(realtime.KindAny, func(ev realtime.Event) {
		log.Printf("event kind=%s payload=%+v", ev.Kind(), ev)
	})

	if err := svc.Store().LoadFirstPage(context.Background(), notification.Filters{}); err != nil {
		log.Printf("initial load failed err=%v", err)
	}

	log.Printf("watching user_id=%d unread=%d", claims.UserID, svc.Store().UnreadCount())

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}
