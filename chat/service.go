package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/friendzone/friendzone-server/cache"
	"github.com/friendzone/friendzone-server/config"
	"github.com/friendzone/friendzone-server/db"
	"github.com/friendzone/friendzone-server/model"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Service errors, mapped to HTTP statuses by the REST layer.
var (
	ErrSelfChat        = errors.New("chat: cannot open a chat with yourself")
	ErrUserNotFound    = errors.New("chat: user not found")
	ErrChatNotFound    = errors.New("chat: chat not found")
	ErrNotParticipant  = errors.New("chat: user is not a participant of this chat")
	ErrEmptyMessage    = errors.New("chat: message must carry text or at least one attachment")
	ErrMessageNotFound = errors.New("chat: message not found")
	ErrAttachmentType  = errors.New("chat: attachment type not allowed")
	ErrAttachmentSize  = errors.New("chat: attachment exceeds the size limit")
)

// defaultAllowedTypes is used when the config does not list any MIME types.
var defaultAllowedTypes = []string{
	"image/jpeg", "image/png", "image/gif", "image/webp",
	"application/pdf",
	"application/vnd.ms-powerpoint",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation",
}

// ChatDetail is a chat annotated with the other participant's profile.
type ChatDetail struct {
	model.Chat
	Other model.Profile `json:"other_user"`
}

// Service owns one-to-one chats, their messages, and realtime delivery.
// Send persists first, then publishes on the chat's pub/sub channel;
// delivery to subscribers is fire-and-forget.
type Service struct {
	db     *gorm.DB
	cache  cache.Cache
	pubsub cache.PubSub
	cfg    config.ChatConfig
	logger *zap.Logger
}

// NewService creates a new conversation Service.
func NewService(gdb *gorm.DB, c cache.Cache, ps cache.PubSub, cfg config.ChatConfig, logger *zap.Logger) *Service {
	return &Service{db: gdb, cache: c, pubsub: ps, cfg: cfg, logger: logger}
}

// Channel returns the pub/sub channel name for a chat.
func Channel(chatID int64) string {
	return fmt.Sprintf("chat:%d", chatID)
}

func historyKey(chatID int64) string {
	return fmt.Sprintf("chat:%d:history", chatID)
}

// GetOrCreate returns the chat for the unordered user pair, creating it on
// first contact. Participants are stored in canonical order so the
// composite unique index admits at most one row per pair; when two
// concurrent calls race, the loser re-reads the winner's row.
func (s *Service) GetOrCreate(ctx context.Context, userIDA, userIDB int64) (*model.Chat, error) {
	if userIDA == userIDB {
		return nil, ErrSelfChat
	}
	var other model.User
	if err := s.db.WithContext(ctx).First(&other, userIDB).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	u1, u2 := userIDA, userIDB
	if u1 > u2 {
		u1, u2 = u2, u1
	}

	var chat model.Chat
	err := s.db.WithContext(ctx).
		Where("user_id_1 = ? AND user_id_2 = ?", u1, u2).
		First(&chat).Error
	if err == nil {
		return &chat, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	chat = model.Chat{UserID1: u1, UserID2: u2}
	if err := s.db.WithContext(ctx).Create(&chat).Error; err != nil {
		if db.IsUniqueViolation(err) {
			err = s.db.WithContext(ctx).
				Where("user_id_1 = ? AND user_id_2 = ?", u1, u2).
				First(&chat).Error
			if err != nil {
				return nil, err
			}
			return &chat, nil
		}
		return nil, err
	}
	s.logger.Info("chat created",
		zap.Int64("chat_id", chat.ID),
		zap.Int64("user_id_1", u1),
		zap.Int64("user_id_2", u2),
	)
	return &chat, nil
}

// ListChats returns every chat userID participates in, most recently
// created first, each annotated with the other participant's profile.
func (s *Service) ListChats(ctx context.Context, userID int64) ([]ChatDetail, error) {
	var chats []model.Chat
	err := s.db.WithContext(ctx).
		Where("user_id_1 = ? OR user_id_2 = ?", userID, userID).
		Order("created_at DESC").
		Find(&chats).Error
	if err != nil {
		return nil, err
	}

	otherIDs := make([]int64, len(chats))
	for i, c := range chats {
		otherIDs[i] = c.OtherParticipant(userID)
	}
	profiles := make(map[int64]model.Profile, len(otherIDs))
	if len(otherIDs) > 0 {
		var users []model.User
		if err := s.db.WithContext(ctx).Where("id IN ?", otherIDs).Find(&users).Error; err != nil {
			return nil, err
		}
		for i := range users {
			profiles[users[i].ID] = users[i].PublicProfile()
		}
	}

	details := make([]ChatDetail, len(chats))
	for i, c := range chats {
		details[i] = ChatDetail{Chat: c, Other: profiles[c.OtherParticipant(userID)]}
	}
	return details, nil
}

// ListMessages returns the full message history of a chat in creation
// order. No pagination yet; large chats pay for their whole history.
func (s *Service) ListMessages(ctx context.Context, chatID, userID int64) ([]model.Message, error) {
	if _, err := s.participantChat(ctx, chatID, userID); err != nil {
		return nil, err
	}
	var msgs []model.Message
	err := s.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("id").
		Find(&msgs).Error
	return msgs, err
}

// Send validates, persists, and broadcasts a message. Attachments are
// checked against the configured MIME allow-list and size cap here, on the
// server, regardless of what the client already filtered.
func (s *Service) Send(ctx context.Context, chatID, senderID int64, text string, attachments []model.Attachment) (*model.Message, error) {
	if _, err := s.participantChat(ctx, chatID, senderID); err != nil {
		return nil, err
	}

	text = strings.TrimSpace(text)
	if text == "" && len(attachments) == 0 {
		return nil, ErrEmptyMessage
	}
	for _, a := range attachments {
		if err := s.validateAttachment(a); err != nil {
			return nil, err
		}
	}

	msg := &model.Message{
		ChatID:   chatID,
		SenderID: senderID,
		Text:     text,
	}
	if len(attachments) > 0 {
		raw, err := json.Marshal(attachments)
		if err != nil {
			return nil, err
		}
		msg.Attachments = datatypes.JSON(raw)
	}
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, err
	}

	s.broadcast(ctx, msg)
	return msg, nil
}

// MarkRead flips a message's read flag. Flipping an already-read message
// again is fine. Only a participant of the owning chat may mark it.
func (s *Service) MarkRead(ctx context.Context, messageID, userID int64) error {
	var msg model.Message
	err := s.db.WithContext(ctx).First(&msg, messageID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrMessageNotFound
		}
		return err
	}
	if _, err := s.participantChat(ctx, msg.ChatID, userID); err != nil {
		return err
	}
	if msg.IsRead {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&model.Message{}).
		Where("id = ?", messageID).
		Update("is_read", true).Error
}

// Subscribe streams every message sent to the chat after the subscription
// starts, in insertion order. The returned cancel func detaches this
// subscriber only. The caller must be a participant.
func (s *Service) Subscribe(ctx context.Context, chatID, userID int64) (<-chan model.Message, func(), error) {
	if _, err := s.participantChat(ctx, chatID, userID); err != nil {
		return nil, nil, err
	}

	raw, cancel, err := s.pubsub.Subscribe(ctx, Channel(chatID))
	if err != nil {
		return nil, nil, err
	}
	out := make(chan model.Message, 64)
	go func() {
		defer close(out)
		for m := range raw {
			var msg model.Message
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				s.logger.Warn("dropping undecodable chat event",
					zap.Int64("chat_id", chatID), zap.Error(err))
				continue
			}
			// An abandoned consumer must not pin this goroutine on a
			// full buffer.
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, cancel, nil
}

// RecentHistory returns up to count recently broadcast messages for a
// chat, oldest first, from the history cache. Used to prime a stream
// right after subscribing.
func (s *Service) RecentHistory(ctx context.Context, chatID int64, count int64) ([]string, error) {
	payloads, err := s.cache.LRange(ctx, historyKey(chatID), 0, count-1)
	if err != nil {
		return nil, err
	}
	// LPush stores newest first.
	for i, j := 0, len(payloads)-1; i < j; i, j = i+1, j-1 {
		payloads[i], payloads[j] = payloads[j], payloads[i]
	}
	return payloads, nil
}

func (s *Service) broadcast(ctx context.Context, msg *model.Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("marshal message for broadcast", zap.Error(err))
		return
	}
	key := historyKey(msg.ChatID)
	historySize := s.cfg.HistoryCacheSize
	if historySize <= 0 {
		historySize = 50
	}
	// Best-effort: a message that misses the broadcast is still persisted
	// and will appear on the next ListMessages.
	_ = s.pubsub.Publish(ctx, Channel(msg.ChatID), string(payload))
	_ = s.cache.LPush(ctx, key, string(payload))
	_ = s.cache.LTrim(ctx, key, 0, historySize-1)
}

func (s *Service) validateAttachment(a model.Attachment) error {
	maxBytes := s.cfg.MaxAttachmentBytes
	if maxBytes <= 0 {
		maxBytes = 10 * 1024 * 1024
	}
	if a.Size > maxBytes || int64(len(a.Data)) > maxBytes*2 {
		return fmt.Errorf("%w: %s (%d bytes)", ErrAttachmentSize, a.Name, a.Size)
	}
	allowedTypes := s.cfg.AllowedMIMETypes
	if len(allowedTypes) == 0 {
		allowedTypes = defaultAllowedTypes
	}
	for _, allowed := range allowedTypes {
		if a.Type == allowed {
			return nil
		}
	}
	return fmt.Errorf("%w: %s (%s)", ErrAttachmentType, a.Name, a.Type)
}

func (s *Service) participantChat(ctx context.Context, chatID, userID int64) (*model.Chat, error) {
	var chat model.Chat
	err := s.db.WithContext(ctx).First(&chat, chatID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChatNotFound
		}
		return nil, err
	}
	if !chat.HasParticipant(userID) {
		return nil, ErrNotParticipant
	}
	return &chat, nil
}
