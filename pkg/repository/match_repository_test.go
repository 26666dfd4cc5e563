package repository_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/jgirmay/livemesh/pkg/models"
	"github.com/jgirmay/livemesh/pkg/repository"
	"github.com/jgirmay/livemesh/pkg/repository/repotest"
)

func seedRequest(t *testing.T, reg *repository.Registry, now time.Time, candidates ...string) (*models.LiveMatchRequest, []models.LiveMatchSuggestion) {
	t.Helper()

	req := &models.LiveMatchRequest{
		EventID:          "e1",
		UserID:           "u1",
		MatchingCriteria: datatypes.NewJSONType(models.MatchingCriteria{Goals: []string{"hiring"}}),
		Urgency:          models.UrgencyMedium,
		MaxMatches:       5,
		Status:           models.RequestActive,
		ExpiresAt:        now.Add(30 * time.Minute),
		CreatedAt:        now,
	}
	suggestions := make([]models.LiveMatchSuggestion, 0, len(candidates))
	for i, c := range candidates {
		suggestions = append(suggestions, models.LiveMatchSuggestion{
			EventID:           "e1",
			UserID:            "u1",
			SuggestedUserID:   c,
			MatchScore:        90 - i,
			MatchReasons:      datatypes.JSONSlice[string]{"Live at the event now"},
			SuggestedLocation: "Main networking area",
			SuggestedTime:     now.Add(10 * time.Minute),
			Status:            models.SuggestionPending,
			ExpiresAt:         req.ExpiresAt,
			CreatedAt:         now,
		})
	}
	require.NoError(t, reg.Matches.CreateRequest(context.Background(), req, suggestions))
	return req, suggestions
}

func TestCreateRequest_PersistsSuggestions(t *testing.T) {
	reg := repotest.NewRegistry(t)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	req, _ := seedRequest(t, reg, now, "u2", "u3")

	stored, err := reg.Matches.GetRequest(context.Background(), req.ID)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, stored.ExpiresAt.Sub(stored.CreatedAt))
	assert.Equal(t, []string{"hiring"}, stored.MatchingCriteria.Data().Goals)

	mine, err := reg.Matches.ListSuggestions(context.Background(), "e1", "u1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, req.ID, mine[0].RequestID)
	assert.Equal(t, "u2", mine[0].SuggestedUserID)

	theirs, err := reg.Matches.ListSuggestions(context.Background(), "e1", "u3")
	require.NoError(t, err)
	require.Len(t, theirs, 1)
	assert.Equal(t, "u3", theirs[0].SuggestedUserID)
}

func TestTransitionSuggestion_ExactlyOnce(t *testing.T) {
	reg := repotest.NewRegistry(t)
	ctx := context.Background()
	now := time.Now().UTC()
	_, suggestions := seedRequest(t, reg, now, "u2")
	s := suggestions[0]

	const racers = 8
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		moved int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sid := s.ID
			ok, err := reg.Matches.TransitionSuggestion(ctx, s.ID, models.SuggestionAccepted, time.Now(), &models.LiveInteraction{
				EventID:         s.EventID,
				InitiatorID:     s.UserID,
				RecipientID:     s.SuggestedUserID,
				InteractionType: models.InteractionMeetingRequest,
				Metadata:        datatypes.JSONMap{"suggestionId": s.ID},
				SuggestionID:    &sid,
			})
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				moved++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, moved)

	var interactions int64
	require.NoError(t, reg.GetDB().Model(&models.LiveInteraction{}).Where("suggestion_id = ?", s.ID).Count(&interactions).Error)
	assert.EqualValues(t, 1, interactions)

	stored, err := reg.Matches.GetSuggestion(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SuggestionAccepted, stored.Status)
	assert.NotNil(t, stored.RespondedAt)
}

func TestTransitionSuggestion_RefusesExpired(t *testing.T) {
	reg := repotest.NewRegistry(t)
	ctx := context.Background()
	created := time.Now().UTC().Add(-time.Hour)
	_, suggestions := seedRequest(t, reg, created, "u2")

	ok, err := reg.Matches.TransitionSuggestion(ctx, suggestions[0].ID, models.SuggestionDeclined, time.Now(), nil)
	require.NoError(t, err)
	assert.False(t, ok)

	expired, err := reg.Matches.ExpireSuggestion(ctx, suggestions[0].ID, time.Now())
	require.NoError(t, err)
	assert.True(t, expired)

	stored, err := reg.Matches.GetSuggestion(ctx, suggestions[0].ID)
	require.NoError(t, err)
	assert.Equal(t, models.SuggestionExpired, stored.Status)
}

func TestExpireSweeps(t *testing.T) {
	reg := repotest.NewRegistry(t)
	ctx := context.Background()
	now := time.Now().UTC()
	seedRequest(t, reg, now.Add(-45*time.Minute), "u2", "u3")
	seedRequest(t, reg, now, "u4")

	n, err := reg.Matches.ExpirePendingSuggestions(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = reg.Matches.ExpireRequests(ctx, now)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = reg.Matches.ExpirePendingSuggestions(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestGetSuggestion_NotFound(t *testing.T) {
	reg := repotest.NewRegistry(t)
	_, err := reg.Matches.GetSuggestion(context.Background(), "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}
