package social

import (
	"context"
	"errors"
	"time"

	"github.com/friendzone/friendzone-server/db"
	"github.com/friendzone/friendzone-server/model"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service errors, mapped to HTTP statuses by the REST layer.
var (
	ErrSelfRequest      = errors.New("social: cannot send a friend request to yourself")
	ErrDuplicateRequest = errors.New("social: a request already exists for this pair")
	ErrRequestNotFound  = errors.New("social: request not found")
	ErrAlreadyResolved  = errors.New("social: request already resolved")
	ErrUserNotFound     = errors.New("social: user not found")
)

// Status classifies the relationship between two users from the caller's
// point of view.
type Status string

const (
	StatusNone     Status = "none"
	StatusSent     Status = "sent"
	StatusReceived Status = "received"
	StatusFriends  Status = "friends"
	StatusRejected Status = "rejected"
)

// RequestDetail is a friend request annotated with both parties' profiles.
type RequestDetail struct {
	model.FriendRequest
	Sender   model.Profile `json:"sender"`
	Receiver model.Profile `json:"receiver"`
}

// Service owns the friend-request lifecycle. Friendship is derived, never
// stored: two users are friends iff an accepted request row exists for
// their pair.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewService creates a new friendship Service.
func NewService(gdb *gorm.DB, logger *zap.Logger) *Service {
	return &Service{db: gdb, logger: logger}
}

// SendRequest creates a pending request from sender to receiver.
// A pending or accepted request for the pair is a conflict. A rejected row
// is replaced, so a rejected user may be asked again after the receiver
// (or sender) has moved on.
func (s *Service) SendRequest(ctx context.Context, senderID, receiverID int64) (*model.FriendRequest, error) {
	if senderID == receiverID {
		return nil, ErrSelfRequest
	}
	var receiver model.User
	if err := s.db.WithContext(ctx).First(&receiver, receiverID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	req := &model.FriendRequest{
		SenderID:   senderID,
		ReceiverID: receiverID,
		PairKey:    model.PairKey(senderID, receiverID),
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.FriendRequest
		err := tx.Where("pair_key = ?", req.PairKey).First(&existing).Error
		switch {
		case err == nil:
			if existing.IsApproved == nil || *existing.IsApproved {
				return ErrDuplicateRequest
			}
			// Rejected row: delete so the unique index admits the new request.
			if err := tx.Delete(&existing).Error; err != nil {
				return err
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
		return tx.Create(req).Error
	})
	if err != nil {
		// Two concurrent senders for the same pair: the unique index on
		// pair_key rejects the loser.
		if db.IsUniqueViolation(err) {
			return nil, ErrDuplicateRequest
		}
		return nil, err
	}
	s.logger.Info("friend request sent",
		zap.Int64("sender_id", senderID),
		zap.Int64("receiver_id", receiverID),
	)
	return req, nil
}

// Respond resolves a pending request. Only the receiver may respond; for
// anyone else the request does not exist. Responding to an already
// resolved request is an ErrAlreadyResolved.
func (s *Service) Respond(ctx context.Context, requestID, responderID int64, approve bool) (*model.FriendRequest, error) {
	var req model.FriendRequest
	err := s.db.WithContext(ctx).
		Where("id = ? AND receiver_id = ?", requestID, responderID).
		First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, err
	}
	if !req.Pending() {
		return nil, ErrAlreadyResolved
	}

	now := time.Now()
	req.IsApproved = &approve
	req.RespondedAt = &now
	if err := s.db.WithContext(ctx).Save(&req).Error; err != nil {
		return nil, err
	}
	s.logger.Info("friend request resolved",
		zap.Int64("request_id", req.ID),
		zap.Bool("approved", approve),
	)
	return &req, nil
}

// Remove deletes whatever request row exists for the pair, regardless of
// state. Removing a non-existent relationship is not an error.
func (s *Service) Remove(ctx context.Context, userIDA, userIDB int64) error {
	return s.db.WithContext(ctx).
		Where("pair_key = ?", model.PairKey(userIDA, userIDB)).
		Delete(&model.FriendRequest{}).Error
}

// ListFriends returns the public profiles of everyone sharing an accepted
// request with userID, ordered by username.
func (s *Service) ListFriends(ctx context.Context, userID int64) ([]model.Profile, error) {
	var reqs []model.FriendRequest
	err := s.db.WithContext(ctx).
		Where("(sender_id = ? OR receiver_id = ?) AND is_approved = ?", userID, userID, true).
		Find(&reqs).Error
	if err != nil {
		return nil, err
	}

	friendIDs := make([]int64, 0, len(reqs))
	for _, r := range reqs {
		if r.SenderID == userID {
			friendIDs = append(friendIDs, r.ReceiverID)
		} else {
			friendIDs = append(friendIDs, r.SenderID)
		}
	}
	if len(friendIDs) == 0 {
		return []model.Profile{}, nil
	}

	var users []model.User
	err = s.db.WithContext(ctx).
		Where("id IN ?", friendIDs).
		Order("username").
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	profiles := make([]model.Profile, len(users))
	for i := range users {
		profiles[i] = users[i].PublicProfile()
	}
	return profiles, nil
}

// ListRequests partitions the pending requests involving userID into
// incoming (userID is receiver) and outgoing (userID is sender), newest
// first, each annotated with both profiles.
func (s *Service) ListRequests(ctx context.Context, userID int64) (incoming, outgoing []RequestDetail, err error) {
	var reqs []model.FriendRequest
	err = s.db.WithContext(ctx).
		Where("(sender_id = ? OR receiver_id = ?) AND is_approved IS NULL", userID, userID).
		Order("created_at DESC").
		Find(&reqs).Error
	if err != nil {
		return nil, nil, err
	}

	profiles, err := s.loadProfiles(ctx, reqs)
	if err != nil {
		return nil, nil, err
	}

	incoming = []RequestDetail{}
	outgoing = []RequestDetail{}
	for _, r := range reqs {
		d := RequestDetail{
			FriendRequest: r,
			Sender:        profiles[r.SenderID],
			Receiver:      profiles[r.ReceiverID],
		}
		if r.ReceiverID == userID {
			incoming = append(incoming, d)
		} else {
			outgoing = append(outgoing, d)
		}
	}
	return incoming, outgoing, nil
}

// Status classifies the pair's single request row, if any, relative to
// userIDA.
func (s *Service) Status(ctx context.Context, userIDA, userIDB int64) (Status, *model.FriendRequest, error) {
	var req model.FriendRequest
	err := s.db.WithContext(ctx).
		Where("pair_key = ?", model.PairKey(userIDA, userIDB)).
		First(&req).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return StatusNone, nil, nil
		}
		return "", nil, err
	}

	switch {
	case req.Pending() && req.SenderID == userIDA:
		return StatusSent, &req, nil
	case req.Pending():
		return StatusReceived, &req, nil
	case req.Accepted():
		return StatusFriends, &req, nil
	default:
		return StatusRejected, &req, nil
	}
}

func (s *Service) loadProfiles(ctx context.Context, reqs []model.FriendRequest) (map[int64]model.Profile, error) {
	ids := make([]int64, 0, len(reqs)*2)
	for _, r := range reqs {
		ids = append(ids, r.SenderID, r.ReceiverID)
	}
	result := make(map[int64]model.Profile, len(ids))
	if len(ids) == 0 {
		return result, nil
	}
	var users []model.User
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	for i := range users {
		result[users[i].ID] = users[i].PublicProfile()
	}
	return result, nil
}
