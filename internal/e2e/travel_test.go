package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/narvanalabs/travel-buddy/internal/chat"
	"github.com/narvanalabs/travel-buddy/internal/devserver"
	"github.com/narvanalabs/travel-buddy/internal/eligibility"
	apperrors "github.com/narvanalabs/travel-buddy/internal/errors"
	"github.com/narvanalabs/travel-buddy/internal/membership"
	"github.com/narvanalabs/travel-buddy/internal/models"
	"github.com/narvanalabs/travel-buddy/internal/planner"
)

func tripIDs(trips []*models.Trip) []int64 {
	ids := make([]int64, len(trips))
	for i, trip := range trips {
		ids[i] = trip.ID
	}
	return ids
}

// TestSessionRefreshE2E covers a transparent refresh after the access token
// is rejected, and a forced sign-out once the refresh token is revoked.
func TestSessionRefreshE2E(t *testing.T) {
	ctx := context.Background()
	env := NewTestEnvironment(t, nil)
	alice := env.SignIn(t, "alice")
	require.NoError(t, alice.Notifications.FetchAll(ctx))

	before := alice.Session.AccessToken()
	env.Server.InvalidateAccessTokens(devserver.Alice)

	trips, err := alice.Trips.Refresh(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, trips)
	assert.NotEqual(t, before, alice.Session.AccessToken())

	env.Server.RevokeSession(devserver.Alice)

	_, err = alice.Trips.Refresh(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrSessionExpired)
	assert.False(t, alice.Session.Authenticated())
	assert.False(t, alice.Notifications.Trip().Loaded(), "per-user state is dropped at forced logout")
	assert.ErrorIs(t, alice.RequireSession(), apperrors.ErrUnauthenticated)
}

func TestLoginRejectedE2E(t *testing.T) {
	env := NewTestEnvironment(t, nil)
	client := env.NewClient(t)

	_, err := client.Login(context.Background(), "alice", "wrong")
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindAuthorization))
	assert.False(t, client.Session.Authenticated())
}

// TestJoinAndLeaveE2E: Carol joins Dave's trip, Dave is notified, Carol leaves.
func TestJoinAndLeaveE2E(t *testing.T) {
	ctx := context.Background()
	env := NewTestEnvironment(t, nil)
	carol := env.SignIn(t, "carol")
	dave := env.SignIn(t, "dave")

	res, err := carol.Trips.Join(ctx, devserver.TripLisbonDave)
	require.NoError(t, err)
	assert.Equal(t, membership.OutcomeApplied, res.Outcome)

	upcoming, err := carol.Trips.Trips(ctx, eligibility.FilterUpcoming)
	require.NoError(t, err)
	assert.Contains(t, tripIDs(upcoming), devserver.TripLisbonDave)

	assert.Equal(t, []models.NotificationType{models.NotificationNewMember}, NotificationTypes(dave.TripNotifications(t)))
	assert.Equal(t, 1, dave.Notifications.Trip().UnreadCount())

	res, err = carol.Trips.Leave(ctx, devserver.TripLisbonDave)
	require.NoError(t, err)
	assert.Equal(t, membership.OutcomeApplied, res.Outcome)

	upcoming, err = carol.Trips.Trips(ctx, eligibility.FilterUpcoming)
	require.NoError(t, err)
	assert.NotContains(t, tripIDs(upcoming), devserver.TripLisbonDave)

	assert.Equal(t,
		[]models.NotificationType{models.NotificationTripLeft, models.NotificationNewMember},
		NotificationTypes(dave.TripNotifications(t)))

	require.NoError(t, dave.Notifications.Trip().MarkAllRead(ctx))
	assert.Equal(t, 0, dave.Notifications.Trip().UnreadCount())
	count, err := dave.Notifications.Trip().RefreshUnreadCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestJoinRejectedLocallyE2E(t *testing.T) {
	ctx := context.Background()
	env := NewTestEnvironment(t, nil)
	alice := env.SignIn(t, "alice")
	dave := env.SignIn(t, "dave")

	_, err := alice.Trips.Join(ctx, devserver.TripLisbonDave)
	assert.ErrorIs(t, err, apperrors.ErrConflict)

	_, err = dave.Trips.Join(ctx, devserver.TripKyoto)
	assert.ErrorIs(t, err, apperrors.ErrFull)

	_, err = alice.Trips.Leave(ctx, devserver.TripPorto)
	assert.ErrorIs(t, err, apperrors.ErrTooLate)

	_, err = alice.Trips.Leave(ctx, devserver.TripLisbon)
	assert.ErrorIs(t, err, apperrors.ErrNotAuthorized)

	trip, herr := env.Server.Store().Trip(devserver.TripPorto)
	require.Nil(t, herr)
	assert.True(t, trip.IsMember(devserver.Alice), "nothing reached the server")
}

// TestCancelE2E: Alice cancels, Bob is notified and sees the trip as cancelled.
func TestCancelE2E(t *testing.T) {
	ctx := context.Background()
	env := NewTestEnvironment(t, nil)
	alice := env.SignIn(t, "alice")
	bob := env.SignIn(t, "bob")

	_, err := bob.Trips.Cancel(ctx, devserver.TripLisbon)
	assert.ErrorIs(t, err, apperrors.ErrNotAuthorized)

	res, err := alice.Trips.Cancel(ctx, devserver.TripLisbon)
	require.NoError(t, err)
	assert.Equal(t, membership.OutcomeApplied, res.Outcome)

	cancelled, err := alice.Trips.Trips(ctx, eligibility.FilterCancelled)
	require.NoError(t, err)
	assert.Contains(t, tripIDs(cancelled), devserver.TripLisbon)

	active, err := alice.Trips.Trips(ctx, eligibility.FilterActive)
	require.NoError(t, err)
	assert.NotContains(t, tripIDs(active), devserver.TripLisbon)

	assert.Contains(t, NotificationTypes(bob.TripNotifications(t)), models.NotificationTripCancelled)

	_, err = bob.Trips.Refresh(ctx)
	require.NoError(t, err)
	_, err = bob.Trips.Leave(ctx, devserver.TripLisbon)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyCancelled)
}

// TestStaleRemovalE2E: Bob's cache still lists him on a trip Alice removed
// him from. Leaving is reconciled as a no-op.
func TestStaleRemovalE2E(t *testing.T) {
	ctx := context.Background()
	env := NewTestEnvironment(t, nil)
	alice := env.SignIn(t, "alice")
	bob := env.SignIn(t, "bob")

	_, err := bob.Trips.Refresh(ctx)
	require.NoError(t, err)

	res, err := alice.Trips.RemoveMember(ctx, devserver.TripLisbon, devserver.Bob)
	require.NoError(t, err)
	assert.Equal(t, membership.OutcomeApplied, res.Outcome)

	res, err = bob.Trips.Leave(ctx, devserver.TripLisbon)
	require.NoError(t, err)
	assert.Equal(t, membership.OutcomeNoOp, res.Outcome)

	active, err := bob.Trips.Trips(ctx, eligibility.FilterActive)
	require.NoError(t, err)
	assert.NotContains(t, tripIDs(active), devserver.TripLisbon)

	assert.Contains(t, NotificationTypes(bob.TripNotifications(t)), models.NotificationMemberRemoved)
}

func TestReviewE2E(t *testing.T) {
	ctx := context.Background()
	env := NewTestEnvironment(t, nil)
	carol := env.SignIn(t, "carol")

	completed, err := carol.Trips.Trips(ctx, eligibility.FilterCompleted)
	require.NoError(t, err)
	require.Equal(t, []int64{devserver.TripReykjavik}, tripIDs(completed))

	review, err := carol.Reviews.Submit(ctx, completed[0], 4, "Northern lights!")
	require.NoError(t, err)
	assert.Equal(t, 4, review.Rating)

	_, err = carol.Reviews.Submit(ctx, completed[0], 5, "Northern lights, twice")
	require.NoError(t, err)

	kyoto, err := carol.Trips.Trip(ctx, devserver.TripKyoto)
	require.NoError(t, err)
	_, err = carol.Reviews.Submit(ctx, kyoto, 5, "")
	assert.ErrorIs(t, err, apperrors.ErrNotEligible)

	_, err = carol.Reviews.Submit(ctx, completed[0], 0, "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidRating)

	again := env.SignIn(t, "carol")
	got, ok := again.Reviews.Lookup(devserver.TripReykjavik)
	require.True(t, ok, "reviews load at sign-in")
	assert.Equal(t, 5, got.Rating)
	assert.Equal(t, "Northern lights, twice", got.Comment)
}

func TestPlannerE2E(t *testing.T) {
	ctx := context.Background()
	env := NewTestEnvironment(t, nil)
	carol := env.SignIn(t, "carol")
	alice := env.SignIn(t, "alice")
	today := models.Today()

	date := func(n int) *models.Date {
		d := today.AddDays(n)
		return &d
	}

	_, err := carol.Planner.Create(ctx, planner.Draft{DestinationID: devserver.Reykjavik, StartDate: date(3), EndDate: date(5), MaxMembers: 3})
	assert.ErrorIs(t, err, apperrors.ErrTooSoon)

	tripID, err := carol.Planner.Create(ctx, planner.Draft{
		DestinationID: devserver.Reykjavik,
		Activities:    []int64{4},
		StartDate:     date(30),
		EndDate:       date(33),
		MaxMembers:    3,
		Description:   "Ring road",
	})
	require.NoError(t, err)

	upcoming, err := carol.Trips.Trips(ctx, eligibility.FilterUpcoming)
	require.NoError(t, err)
	assert.Contains(t, tripIDs(upcoming), tripID, "creating a trip invalidates the cached list")

	err = carol.Planner.CheckDates(ctx, planner.Draft{DestinationID: devserver.Kyoto, StartDate: date(31), EndDate: date(32)})
	assert.ErrorIs(t, err, apperrors.ErrDateOverlap)

	draft := planner.Draft{DestinationID: devserver.Lisbon, Activities: []int64{1, 2}, StartDate: date(21), EndDate: date(24)}
	free, err := carol.Planner.Compatible(ctx, draft)
	require.NoError(t, err)
	assert.False(t, free.Subscribed)
	assert.Equal(t, 2, free.Total)
	require.Len(t, free.Trips, 2)
	assert.Equal(t, devserver.TripLisbon, free.Trips[0].ID, "best match first")

	premium, err := alice.Planner.Compatible(ctx, planner.Draft{DestinationID: devserver.Lisbon, StartDate: date(21), EndDate: date(24)})
	require.NoError(t, err)
	assert.True(t, premium.Subscribed)
	assert.Equal(t, []int64{devserver.TripLisbonDave}, tripIDs(premium.Trips))
}

func TestChatE2E(t *testing.T) {
	ctx := context.Background()
	env := NewTestEnvironment(t, nil)
	alice := env.SignIn(t, "alice")
	bob := env.SignIn(t, "bob")

	aliceChat, err := alice.OpenChat(ctx, devserver.TripLisbon)
	require.NoError(t, err)
	bobChat, err := bob.OpenChat(ctx, devserver.TripLisbon)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return env.Server.ChatPeers(devserver.TripLisbon) == 2 }, waitTimeout, 5*time.Millisecond)

	require.NoError(t, aliceChat.Send(ctx, "Pastéis de nata on day one?"))
	msg := ReceiveMessage(t, bobChat)
	assert.Equal(t, "Pastéis de nata on day one?", msg.Message)
	assert.Equal(t, devserver.Alice, msg.SenderID)
	ReceiveMessage(t, aliceChat)

	again, err := alice.OpenChat(ctx, devserver.TripLisbon)
	require.NoError(t, err)
	assert.Same(t, aliceChat, again, "a live connection is reused")

	env.Server.DisconnectAll()
	require.Eventually(t, func() bool {
		return aliceChat.Reconnects() == 1 && bobChat.Reconnects() == 1 &&
			env.Server.ChatPeers(devserver.TripLisbon) == 2
	}, waitTimeout, 5*time.Millisecond)
	WaitForState(t, bobChat, chat.StateOpen)

	require.NoError(t, bobChat.Send(ctx, "Obviously"))
	assert.Equal(t, "Obviously", ReceiveMessage(t, aliceChat).Message)

	history, err := aliceChat.History(ctx)
	require.NoError(t, err)
	require.Len(t, history, 2)

	chatNotes, err := bob.Notifications.Chat().Fetch(ctx)
	require.NoError(t, err)
	require.Len(t, chatNotes, 1)
	assert.Equal(t, "Pastéis de nata on day one?", chatNotes[0].Chat.Preview)

	require.NoError(t, alice.Logout(ctx))
	WaitForState(t, aliceChat, chat.StateClosed)
	assert.ErrorIs(t, aliceChat.Send(ctx, "anyone?"), chat.ErrClosed)
}

// TestOpenChatRefreshesExpiringTokenE2E: a skew longer than the token lifetime
// makes every token count as expiring, so opening a room refreshes first.
func TestOpenChatRefreshesExpiringTokenE2E(t *testing.T) {
	ctx := context.Background()
	tc := DefaultTestConfig()
	tc.RefreshSkew = time.Hour
	env := NewTestEnvironment(t, tc)
	alice := env.SignIn(t, "alice")

	before := alice.Session.AccessToken()
	env.Server.InvalidateAccessTokens(devserver.Alice)

	conn, err := alice.OpenChat(ctx, devserver.TripLisbon)
	require.NoError(t, err, "the stale token would fail the handshake")
	assert.NotEqual(t, before, alice.Session.AccessToken())
	require.Eventually(t, func() bool { return env.Server.ChatPeers(devserver.TripLisbon) == 1 }, waitTimeout, 5*time.Millisecond)
	require.NoError(t, alice.CloseChat(devserver.TripLisbon))
	WaitForState(t, conn, chat.StateClosed)

	env.Server.RevokeSession(devserver.Alice)
	_, err = alice.OpenChat(ctx, devserver.TripLisbon)
	assert.ErrorIs(t, err, apperrors.ErrSessionExpired)
	assert.False(t, alice.Session.Authenticated())
}

func TestChatReconnectExhaustedE2E(t *testing.T) {
	ctx := context.Background()
	env := NewTestEnvironment(t, &TestConfig{ReconnectBackoff: time.Millisecond, MaxReconnects: 2})
	alice := env.SignIn(t, "alice")

	conn, err := alice.OpenChat(ctx, devserver.TripLisbon)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return env.Server.ChatPeers(devserver.TripLisbon) == 1 }, waitTimeout, 5*time.Millisecond)

	env.Server.RevokeSession(devserver.Alice)
	env.Server.DisconnectAll()

	select {
	case err := <-conn.Errors():
		assert.ErrorIs(t, err, apperrors.ErrReconnectExhausted)
	case <-time.After(waitTimeout):
		t.Fatal("expected reconnect to give up")
	}
	WaitForState(t, conn, chat.StateFailed)
}
