package social_test

import (
	"context"
	"testing"
	"time"

	"github.com/friendzone/friendzone-server/model"
	"github.com/friendzone/friendzone-server/social"
	"github.com/friendzone/friendzone-server/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupService(t *testing.T) (*social.Service, *gorm.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	return social.NewService(db, zap.NewNop()), db
}

func createUser(t *testing.T, db *gorm.DB, username string) *model.User {
	t.Helper()
	u := &model.User{Username: username, PasswordHash: "x", FullName: "User " + username}
	require.NoError(t, db.Create(u).Error)
	return u
}

func TestSendRequest_Basic(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	req, err := svc.SendRequest(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.NotZero(t, req.ID)
	assert.Equal(t, alice.ID, req.SenderID)
	assert.Equal(t, bob.ID, req.ReceiverID)
	assert.True(t, req.Pending())
}

func TestSendRequest_ToSelf(t *testing.T) {
	svc, db := setupService(t)
	alice := createUser(t, db, "alice")

	_, err := svc.SendRequest(context.Background(), alice.ID, alice.ID)
	assert.ErrorIs(t, err, social.ErrSelfRequest)
}

func TestSendRequest_ReceiverMissing(t *testing.T) {
	svc, db := setupService(t)
	alice := createUser(t, db, "alice")

	_, err := svc.SendRequest(context.Background(), alice.ID, 9999)
	assert.ErrorIs(t, err, social.ErrUserNotFound)
}

func TestSendRequest_DuplicatePending(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	_, err := svc.SendRequest(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	_, err = svc.SendRequest(ctx, alice.ID, bob.ID)
	assert.ErrorIs(t, err, social.ErrDuplicateRequest)

	// Reverse direction is the same unordered pair.
	_, err = svc.SendRequest(ctx, bob.ID, alice.ID)
	assert.ErrorIs(t, err, social.ErrDuplicateRequest)
}

func TestSendRequest_DuplicateAccepted(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	req, err := svc.SendRequest(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	_, err = svc.Respond(ctx, req.ID, bob.ID, true)
	require.NoError(t, err)

	_, err = svc.SendRequest(ctx, alice.ID, bob.ID)
	assert.ErrorIs(t, err, social.ErrDuplicateRequest)
}

func TestSendRequest_AfterRejection(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	req, err := svc.SendRequest(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	_, err = svc.Respond(ctx, req.ID, bob.ID, false)
	require.NoError(t, err)

	// Rejection does not block a fresh request for the pair.
	req2, err := svc.SendRequest(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.NotEqual(t, req.ID, req2.ID)
	assert.True(t, req2.Pending())
}

func TestSendRequest_LosesInsertRace(t *testing.T) {
	svc, db := setupService(t)
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	pair := model.PairKey(alice.ID, bob.ID)

	// Slip a rival row onto the transaction's own connection right before
	// the insert, the way a concurrent sender for the same pair would.
	seeded := false
	err := db.Callback().Create().Before("gorm:create").
		Register("friend_test_rival_insert", func(tx *gorm.DB) {
			if seeded {
				return
			}
			if _, ok := tx.Statement.Dest.(*model.FriendRequest); !ok {
				return
			}
			seeded = true
			_, execErr := tx.Statement.ConnPool.ExecContext(tx.Statement.Context,
				"INSERT INTO friend_requests (sender_id, receiver_id, pair_key, created_at) VALUES (?, ?, ?, ?)",
				bob.ID, alice.ID, pair, time.Now())
			require.NoError(t, execErr)
		})
	require.NoError(t, err)

	_, err = svc.SendRequest(context.Background(), alice.ID, bob.ID)
	assert.ErrorIs(t, err, social.ErrDuplicateRequest)
	assert.True(t, seeded, "rival insert never fired")
}

func TestRespond_Accept(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	req, err := svc.SendRequest(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	resolved, err := svc.Respond(ctx, req.ID, bob.ID, true)
	require.NoError(t, err)
	assert.True(t, resolved.Accepted())
	require.NotNil(t, resolved.RespondedAt)

	// Both sides see the friendship immediately.
	friends, err := svc.ListFriends(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, friends, 1)
	assert.Equal(t, bob.ID, friends[0].ID)

	friends, err = svc.ListFriends(ctx, bob.ID)
	require.NoError(t, err)
	require.Len(t, friends, 1)
	assert.Equal(t, alice.ID, friends[0].ID)
}

func TestRespond_Reject(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	req, err := svc.SendRequest(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	resolved, err := svc.Respond(ctx, req.ID, bob.ID, false)
	require.NoError(t, err)
	assert.False(t, resolved.Accepted())
	assert.False(t, resolved.Pending())

	friends, err := svc.ListFriends(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, friends)
}

func TestRespond_OnlyReceiver(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	carol := createUser(t, db, "carol")

	req, err := svc.SendRequest(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	// Neither the sender nor a third party can respond.
	_, err = svc.Respond(ctx, req.ID, alice.ID, true)
	assert.ErrorIs(t, err, social.ErrRequestNotFound)
	_, err = svc.Respond(ctx, req.ID, carol.ID, true)
	assert.ErrorIs(t, err, social.ErrRequestNotFound)
}

func TestRespond_AlreadyResolved(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	req, err := svc.SendRequest(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	_, err = svc.Respond(ctx, req.ID, bob.ID, true)
	require.NoError(t, err)

	_, err = svc.Respond(ctx, req.ID, bob.ID, false)
	assert.ErrorIs(t, err, social.ErrAlreadyResolved)
}

func TestRespond_Missing(t *testing.T) {
	svc, db := setupService(t)
	bob := createUser(t, db, "bob")

	_, err := svc.Respond(context.Background(), 404, bob.ID, true)
	assert.ErrorIs(t, err, social.ErrRequestNotFound)
}

func TestRemove_ThenResend(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	req, err := svc.SendRequest(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	_, err = svc.Respond(ctx, req.ID, bob.ID, true)
	require.NoError(t, err)

	require.NoError(t, svc.Remove(ctx, alice.ID, bob.ID))

	status, _, err := svc.Status(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, social.StatusNone, status)

	// A new request can follow the removal.
	_, err = svc.SendRequest(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
}

func TestRemove_Idempotent(t *testing.T) {
	svc, db := setupService(t)
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	assert.NoError(t, svc.Remove(context.Background(), alice.ID, bob.ID))
	assert.NoError(t, svc.Remove(context.Background(), alice.ID, bob.ID))
}

func TestStatus_Transitions(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	status, _, err := svc.Status(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, social.StatusNone, status)

	req, err := svc.SendRequest(ctx, alice.ID, bob.ID)
	require.NoError(t, err)

	status, got, err := svc.Status(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, social.StatusSent, status)
	require.NotNil(t, got)
	assert.Equal(t, req.ID, got.ID)

	status, _, err = svc.Status(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, social.StatusReceived, status)

	_, err = svc.Respond(ctx, req.ID, bob.ID, true)
	require.NoError(t, err)

	status, _, err = svc.Status(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, social.StatusFriends, status)
}

func TestStatus_Rejected(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	req, err := svc.SendRequest(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	_, err = svc.Respond(ctx, req.ID, bob.ID, false)
	require.NoError(t, err)

	status, _, err := svc.Status(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, social.StatusRejected, status)
}

func TestListFriends_SortedByUsername(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	me := createUser(t, db, "me")
	zoe := createUser(t, db, "zoe")
	abe := createUser(t, db, "abe")

	for _, other := range []*model.User{zoe, abe} {
		req, err := svc.SendRequest(ctx, me.ID, other.ID)
		require.NoError(t, err)
		_, err = svc.Respond(ctx, req.ID, other.ID, true)
		require.NoError(t, err)
	}

	friends, err := svc.ListFriends(ctx, me.ID)
	require.NoError(t, err)
	require.Len(t, friends, 2)
	assert.Equal(t, "abe", friends[0].Username)
	assert.Equal(t, "zoe", friends[1].Username)
}

func TestListRequests_Partitioned(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	me := createUser(t, db, "me")
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	_, err := svc.SendRequest(ctx, me.ID, alice.ID)
	require.NoError(t, err)
	_, err = svc.SendRequest(ctx, bob.ID, me.ID)
	require.NoError(t, err)

	incoming, outgoing, err := svc.ListRequests(ctx, me.ID)
	require.NoError(t, err)
	require.Len(t, incoming, 1)
	require.Len(t, outgoing, 1)
	assert.Equal(t, bob.ID, incoming[0].SenderID)
	assert.Equal(t, "bob", incoming[0].Sender.Username)
	assert.Equal(t, alice.ID, outgoing[0].ReceiverID)
	assert.Equal(t, "alice", outgoing[0].Receiver.Username)
}

func TestListRequests_ExcludesResolved(t *testing.T) {
	svc, db := setupService(t)
	ctx := context.Background()
	me := createUser(t, db, "me")
	alice := createUser(t, db, "alice")

	req, err := svc.SendRequest(ctx, alice.ID, me.ID)
	require.NoError(t, err)
	_, err = svc.Respond(ctx, req.ID, me.ID, true)
	require.NoError(t, err)

	incoming, outgoing, err := svc.ListRequests(ctx, me.ID)
	require.NoError(t, err)
	assert.Empty(t, incoming)
	assert.Empty(t, outgoing)
}
