package services

import (
	"context"
	"encoding/json"
	"sync"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/messaging"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"google.golang.org/api/option"

	"github.com/chatloop/chatloop/db"
	"github.com/chatloop/chatloop/models"
)

// Broadcaster is the event sink for chat side effects. Delivery is
// best-effort and fully decoupled from persistence: a failed broadcast never
// fails the request that triggered it.
type Broadcaster interface {
	MessageCreated(msg *models.Message, attachments []models.Attachment)
	ConversationCreated(conv *models.Conversation)
	Subscribe(userID uint, conn *websocket.Conn)
}

type subscriber struct {
	id     string
	userID uint
	conn   *websocket.Conn
	mu     sync.Mutex
}

func (s *subscriber) send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

type broadcastService struct {
	convRepo db.ConversationRepository
	authRepo db.AuthRepository
	push     *messaging.Client

	mu          sync.RWMutex
	subscribers map[uint][]*subscriber
}

// NewBroadcastService builds the websocket hub. When credentialsFile is set
// it also wires an FCM client for push delivery to offline counterparts.
func NewBroadcastService(convRepo db.ConversationRepository, authRepo db.AuthRepository, credentialsFile string) Broadcaster {
	b := &broadcastService{
		convRepo:    convRepo,
		authRepo:    authRepo,
		subscribers: make(map[uint][]*subscriber),
	}
	if credentialsFile != "" {
		app, err := firebase.NewApp(context.Background(), nil, option.WithCredentialsFile(credentialsFile))
		if err != nil {
			log.WithError(err).Error("firebase init failed, push delivery disabled")
			return b
		}
		client, err := app.Messaging(context.Background())
		if err != nil {
			log.WithError(err).Error("firebase messaging init failed, push delivery disabled")
			return b
		}
		b.push = client
	}
	return b
}

func (b *broadcastService) Subscribe(userID uint, conn *websocket.Conn) {
	sub := &subscriber{id: uuid.NewString(), userID: userID, conn: conn}
	b.mu.Lock()
	b.subscribers[userID] = append(b.subscribers[userID], sub)
	b.mu.Unlock()

	if err := b.authRepo.UpdateUserOnline(userID, true); err != nil {
		log.WithError(err).Warn("mark user online")
	}

	// Drain the connection until the peer goes away, then drop the
	// subscription.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		b.unsubscribe(sub)
	}()
}

func (b *broadcastService) unsubscribe(sub *subscriber) {
	b.mu.Lock()
	subs := b.subscribers[sub.userID]
	for i, s := range subs {
		if s.id == sub.id {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(b.subscribers, sub.userID)
	} else {
		b.subscribers[sub.userID] = subs
	}
	remaining := len(b.subscribers[sub.userID])
	b.mu.Unlock()

	_ = sub.conn.Close()
	if remaining == 0 {
		if err := b.authRepo.UpdateUserOnline(sub.userID, false); err != nil {
			log.WithError(err).Warn("mark user offline")
		}
	}
}

func (b *broadcastService) MessageCreated(msg *models.Message, attachments []models.Attachment) {
	event := models.MessageCreatedEvent{
		EventID:     uuid.NewString(),
		Type:        "message.created",
		Message:     msg,
		Attachments: attachments,
	}
	go b.fanout(msg.ConversationID, msg.UserID, event)
}

func (b *broadcastService) ConversationCreated(conv *models.Conversation) {
	event := models.ConversationCreatedEvent{
		EventID:      uuid.NewString(),
		Type:         "conversation.created",
		Conversation: conv,
	}
	go b.fanout(conv.ID, conv.UserID, event)
}

// fanout delivers an event to every participant's open sockets and pushes to
// counterpart devices. Runs detached; errors are logged, never propagated.
func (b *broadcastService) fanout(conversationID, senderID uint, event interface{}) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.WithError(err).Error("marshal broadcast event")
		return
	}

	participants, err := b.convRepo.Participants(conversationID)
	if err != nil {
		log.WithError(err).WithField("conversation_id", conversationID).
			Error("load participants for broadcast")
		return
	}

	for _, p := range participants {
		b.mu.RLock()
		subs := append([]*subscriber(nil), b.subscribers[p.UserID]...)
		b.mu.RUnlock()
		for _, sub := range subs {
			if err := sub.send(payload); err != nil {
				log.WithError(err).WithField("user_id", p.UserID).
					Warn("websocket delivery failed")
				b.unsubscribe(sub)
			}
		}
		if p.UserID != senderID {
			b.pushTo(p.UserID, payload)
		}
	}
}

func (b *broadcastService) pushTo(userID uint, payload []byte) {
	if b.push == nil {
		return
	}
	user, err := b.authRepo.FindUserByID(userID)
	if err != nil || user.DeviceToken == "" {
		return
	}
	_, err = b.push.Send(context.Background(), &messaging.Message{
		Token: user.DeviceToken,
		Notification: &messaging.Notification{
			Title: "New message",
		},
		Data: map[string]string{"event": string(payload)},
	})
	if err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("push delivery failed")
	}
}
