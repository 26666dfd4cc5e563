package connections

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jgirmay/livemesh/pkg/apperrors"
	"github.com/jgirmay/livemesh/pkg/config"
	"github.com/jgirmay/livemesh/pkg/events"
	"github.com/jgirmay/livemesh/pkg/events/eventstest"
	"github.com/jgirmay/livemesh/pkg/models"
	"github.com/jgirmay/livemesh/pkg/repository"
	"github.com/jgirmay/livemesh/pkg/repository/repotest"
	"github.com/jgirmay/livemesh/pkg/services/rewards"
)

var (
	connCfg   = config.ConnectionsConfig{TTL: 7 * 24 * time.Hour, MaxMessageLength: 500}
	rewardCfg = config.RewardsConfig{AcceptPoints: 25, DeclinePoints: 5}
)

type fixture struct {
	reg    *repository.Registry
	svc    *Service
	ledger *rewards.Ledger
	rec    *eventstest.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	reg := repotest.NewRegistry(t)
	rec := &eventstest.Recorder{}
	ledger := rewards.NewLedger(reg.Rewards, nil, zap.NewNop())
	svc := NewService(reg.Connections, ledger, rec, connCfg, rewardCfg, nil, zap.NewNop())
	return &fixture{reg: reg, svc: svc, ledger: ledger, rec: rec}
}

func (f *fixture) balance(t *testing.T, userID string) int {
	t.Helper()
	b, err := f.ledger.Balance(context.Background(), userID)
	require.NoError(t, err)
	return b
}

func TestScenarioD_DeclineThenSecondResponseIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req, err := f.svc.Create(ctx, CreateParams{EventID: "e1", FromUserID: "V", ToUserID: "W", Message: "Let's sync"})
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionPending, req.Status)
	assert.Nil(t, req.RespondedAt)
	assert.Equal(t, 7*24*time.Hour, req.ExpiresAt.Sub(req.CreatedAt))

	notice := f.rec.OfType(events.TypeConnectionRequest)
	require.Len(t, notice, 1)
	assert.Equal(t, events.User("W"), notice[0].Scope)

	msg := "Not now"
	out, err := f.svc.Respond(ctx, req.ID, "W", models.ConnectionDeclined, &msg)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionDeclined, out.Status)
	assert.NotNil(t, out.RespondedAt)
	assert.Equal(t, "Not now", *out.ResponseMessage)

	_, err = f.svc.Respond(ctx, req.ID, "W", models.ConnectionAccepted, nil)
	assert.ErrorIs(t, err, ErrNotFoundOrForbidden)
	assert.True(t, apperrors.HasStatus(err, http.StatusNotFound))

	assert.Equal(t, 5, f.balance(t, "W"))
	assert.Equal(t, 0, f.balance(t, "V"))

	responses := f.rec.OfType(events.TypeConnectionResponse)
	require.Len(t, responses, 1)
	assert.Equal(t, events.User("V"), responses[0].Scope)
}

func TestAcceptRewardsBothParties(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req, err := f.svc.Create(ctx, CreateParams{EventID: "e1", FromUserID: "V", ToUserID: "W"})
	require.NoError(t, err)

	_, err = f.svc.Respond(ctx, req.ID, "W", models.ConnectionAccepted, nil)
	require.NoError(t, err)

	assert.Equal(t, 25, f.balance(t, "V"))
	assert.Equal(t, 25, f.balance(t, "W"))
}

func TestRespond_SenderCannotAnswer(t *testing.T) {
	f := newFixture(t)
	req, err := f.svc.Create(context.Background(), CreateParams{EventID: "e1", FromUserID: "V", ToUserID: "W"})
	require.NoError(t, err)

	_, err = f.svc.Respond(context.Background(), req.ID, "V", models.ConnectionAccepted, nil)
	assert.ErrorIs(t, err, ErrNotFoundOrForbidden)
}

func TestRespond_ConcurrentAnswersTransitionOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req, err := f.svc.Create(ctx, CreateParams{EventID: "e1", FromUserID: "V", ToUserID: "W"})
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 8; i++ {
		status := models.ConnectionAccepted
		if i%2 == 1 {
			status = models.ConnectionDeclined
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Respond(ctx, req.ID, "W", status, nil)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrNotFoundOrForbidden)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded)
}

func TestCreate_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, CreateParams{EventID: "e1", FromUserID: "V", ToUserID: "V"})
	assert.ErrorIs(t, err, ErrSelfConnection)

	_, err = f.svc.Create(ctx, CreateParams{EventID: "e1", FromUserID: "V", ToUserID: "W", Message: strings.Repeat("x", 501)})
	assert.True(t, apperrors.HasStatus(err, http.StatusBadRequest))

	_, err = f.svc.Create(ctx, CreateParams{FromUserID: "V", ToUserID: "W"})
	assert.True(t, apperrors.HasStatus(err, http.StatusBadRequest))

	_, err = f.svc.Create(ctx, CreateParams{EventID: "e1", FromUserID: "V", ToUserID: "W"})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, CreateParams{EventID: "e1", FromUserID: "V", ToUserID: "W"})
	assert.ErrorIs(t, err, ErrDuplicatePending)
}

func TestList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	clock := base
	f.svc.now = func() time.Time { return clock }

	first, err := f.svc.Create(ctx, CreateParams{EventID: "e1", FromUserID: "A", ToUserID: "me"})
	require.NoError(t, err)
	clock = base.Add(time.Minute)
	second, err := f.svc.Create(ctx, CreateParams{EventID: "e1", FromUserID: "B", ToUserID: "me"})
	require.NoError(t, err)
	clock = base.Add(2 * time.Minute)
	mine, err := f.svc.Create(ctx, CreateParams{EventID: "e1", FromUserID: "me", ToUserID: "C"})
	require.NoError(t, err)
	_, err = f.svc.Respond(ctx, mine.ID, "C", models.ConnectionAccepted, nil)
	require.NoError(t, err)

	listing, err := f.svc.List(ctx, "e1", "me")
	require.NoError(t, err)
	require.Equal(t, 2, listing.IncomingCount)
	assert.Equal(t, second.ID, listing.Incoming[0].ID)
	assert.Equal(t, first.ID, listing.Incoming[1].ID)
	require.Equal(t, 1, listing.OutgoingCount)
	assert.Equal(t, models.ConnectionAccepted, listing.Outgoing[0].Status)
}

type failingAwarder struct{}

func (failingAwarder) Award(context.Context, rewards.Grant) error { return errors.New("ledger offline") }

func TestRespond_RewardFailureDoesNotUndoTransition(t *testing.T) {
	reg := repotest.NewRegistry(t)
	svc := NewService(reg.Connections, failingAwarder{}, nil, connCfg, rewardCfg, nil, zap.NewNop())
	ctx := context.Background()

	req, err := svc.Create(ctx, CreateParams{EventID: "e1", FromUserID: "V", ToUserID: "W"})
	require.NoError(t, err)
	out, err := svc.Respond(ctx, req.ID, "W", models.ConnectionAccepted, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ConnectionAccepted, out.Status)
}

func TestRespondedAtNilIffPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, to := range []string{"a", "b", "c"} {
		_, err := f.svc.Create(ctx, CreateParams{EventID: "e1", FromUserID: "V", ToUserID: to})
		require.NoError(t, err)
	}
	listing, err := f.svc.List(ctx, "e1", "V")
	require.NoError(t, err)
	_, err = f.svc.Respond(ctx, listing.Outgoing[0].ID, listing.Outgoing[0].ToUserID, models.ConnectionAccepted, nil)
	require.NoError(t, err)
	_, err = f.svc.Respond(ctx, listing.Outgoing[1].ID, listing.Outgoing[1].ToUserID, models.ConnectionDeclined, nil)
	require.NoError(t, err)

	var all []models.ConnectionRequest
	require.NoError(t, f.reg.GetDB().Find(&all).Error)
	require.Len(t, all, 3)
	for _, r := range all {
		assert.Equal(t, r.Status == models.ConnectionPending, r.RespondedAt == nil, "request %s", r.ID)
	}
}
