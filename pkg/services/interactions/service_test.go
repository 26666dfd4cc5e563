package interactions

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/jgirmay/livemesh/pkg/apperrors"
	"github.com/jgirmay/livemesh/pkg/events"
	"github.com/jgirmay/livemesh/pkg/events/eventstest"
	"github.com/jgirmay/livemesh/pkg/models"
	"github.com/jgirmay/livemesh/pkg/repository"
	"github.com/jgirmay/livemesh/pkg/repository/repotest"
)

func setup(t *testing.T, created time.Time) (*Service, *repository.Registry, *eventstest.Recorder, models.LiveMatchSuggestion) {
	t.Helper()
	reg := repotest.NewRegistry(t)
	rec := &eventstest.Recorder{}

	req := &models.LiveMatchRequest{
		EventID: "e1", UserID: "U", Urgency: models.UrgencyMedium, MaxMatches: 5,
		Status: models.RequestActive, ExpiresAt: created.Add(30 * time.Minute), CreatedAt: created,
	}
	suggestions := []models.LiveMatchSuggestion{{
		EventID: "e1", UserID: "U", SuggestedUserID: "V", MatchScore: 70,
		MatchReasons:      datatypes.JSONSlice[string]{"Live at the event now"},
		SuggestedLocation: "Main networking area", SuggestedTime: created.Add(10 * time.Minute),
		Status: models.SuggestionPending, ExpiresAt: req.ExpiresAt, CreatedAt: created,
	}}
	require.NoError(t, reg.Matches.CreateRequest(context.Background(), req, suggestions))

	return NewService(reg.Matches, rec, nil, zap.NewNop()), reg, rec, suggestions[0]
}

func countInteractions(t *testing.T, reg *repository.Registry, suggestionID string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, reg.GetDB().Model(&models.LiveInteraction{}).Where("suggestion_id = ?", suggestionID).Count(&n).Error)
	return n
}

func TestRespond_AcceptCreatesOneInteraction(t *testing.T) {
	svc, reg, rec, s := setup(t, time.Now().UTC())
	ctx := context.Background()

	out, err := svc.RespondToSuggestion(ctx, s.ID, "U", Accept)
	require.NoError(t, err)
	assert.Equal(t, models.SuggestionAccepted, out.Status)
	assert.NotNil(t, out.RespondedAt)

	interactions, err := svc.ListInteractions(ctx, "e1", "V")
	require.NoError(t, err)
	require.Len(t, interactions, 1)
	assert.Equal(t, "U", interactions[0].InitiatorID)
	assert.Equal(t, "V", interactions[0].RecipientID)
	assert.Equal(t, models.InteractionMeetingRequest, interactions[0].InteractionType)
	assert.Equal(t, s.ID, interactions[0].Metadata["suggestionId"])

	accepted := rec.OfType(events.TypeMatchAccepted)
	require.Len(t, accepted, 1)
	assert.Equal(t, events.Users("U", "V"), accepted[0].Scope)
	assert.Equal(t, s.ID, accepted[0].Fields["matchId"])
	assert.Equal(t, "U", accepted[0].Fields["fromUserId"])
	assert.Equal(t, "V", accepted[0].Fields["toUserId"])

	// A second answer is a no-op.
	again, err := svc.RespondToSuggestion(ctx, s.ID, "U", Decline)
	require.NoError(t, err)
	assert.Equal(t, models.SuggestionAccepted, again.Status)
	assert.EqualValues(t, 1, countInteractions(t, reg, s.ID))
	assert.Len(t, rec.OfType(events.TypeMatchAccepted), 1)
}

func TestRespond_DeclineCreatesNothing(t *testing.T) {
	svc, reg, rec, s := setup(t, time.Now().UTC())

	out, err := svc.RespondToSuggestion(context.Background(), s.ID, "U", Decline)
	require.NoError(t, err)
	assert.Equal(t, models.SuggestionDeclined, out.Status)
	assert.Zero(t, countInteractions(t, reg, s.ID))
	assert.Empty(t, rec.All())
}

func TestRespond_ConcurrentAcceptsYieldOneInteraction(t *testing.T) {
	svc, reg, rec, s := setup(t, time.Now().UTC())
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := svc.RespondToSuggestion(ctx, s.ID, "U", Accept)
			if assert.NoError(t, err) {
				assert.Equal(t, models.SuggestionAccepted, out.Status)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, countInteractions(t, reg, s.ID))
	assert.Len(t, rec.OfType(events.TypeMatchAccepted), 1)
}

func TestRespond_OnlyOwnerMayAnswer(t *testing.T) {
	svc, _, _, s := setup(t, time.Now().UTC())

	_, err := svc.RespondToSuggestion(context.Background(), s.ID, "V", Accept)
	assert.ErrorIs(t, err, ErrSuggestionNotFound)

	_, err = svc.RespondToSuggestion(context.Background(), "missing", "U", Accept)
	assert.ErrorIs(t, err, ErrSuggestionNotFound)
}

func TestRespond_InvalidResponse(t *testing.T) {
	svc, _, _, s := setup(t, time.Now().UTC())
	_, err := svc.RespondToSuggestion(context.Background(), s.ID, "U", "maybe")
	assert.True(t, apperrors.HasStatus(err, http.StatusBadRequest))
}

func TestRespond_ExpiredSuggestionCannotBeAccepted(t *testing.T) {
	svc, reg, rec, s := setup(t, time.Now().UTC().Add(-time.Hour))

	out, err := svc.RespondToSuggestion(context.Background(), s.ID, "U", Accept)
	require.NoError(t, err)
	assert.Equal(t, models.SuggestionExpired, out.Status)
	assert.Zero(t, countInteractions(t, reg, s.ID))
	assert.Empty(t, rec.OfType(events.TypeMatchAccepted))
}
