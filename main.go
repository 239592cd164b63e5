package main

import (
	log "github.com/sirupsen/logrus"

	"github.com/chatloop/chatloop/config"
	"github.com/chatloop/chatloop/db"
	"github.com/chatloop/chatloop/server"
	"github.com/chatloop/chatloop/services"
)

func main() {
	conf, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	gormDB := db.GetDB(conf)
	authRepo := db.NewAuthRepo(gormDB)
	convRepo := db.NewConversationRepo(gormDB)
	msgRepo := db.NewMessageRepo(gormDB)

	broadcaster := services.NewBroadcastService(convRepo, authRepo, conf.FirebaseCredentials)
	chatService := services.NewChatService(convRepo, msgRepo, authRepo, broadcaster, conf)
	messageService := services.NewMessageService(msgRepo, convRepo, services.SenderDeletePolicy{}, conf)

	s := &server.Server{
		Config:                 conf,
		AuthRepository:         authRepo,
		ConversationRepository: convRepo,
		MessageRepository:      msgRepo,
		ChatService:            chatService,
		MessageService:         messageService,
		Broadcaster:            broadcaster,
	}

	s.Start()
}
