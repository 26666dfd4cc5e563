package rewards

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/jgirmay/livemesh/pkg/models"
	"github.com/jgirmay/livemesh/pkg/repository/repotest"
)

func TestLedger_AwardIsIdempotent(t *testing.T) {
	reg := repotest.NewRegistry(t)
	ledger := NewLedger(reg.Rewards, nil, zap.NewNop())
	ctx := context.Background()
	g := Grant{UserID: "w", EventID: "e1", Reason: models.RewardConnectionAccepted, Points: 25, SourceID: "req-1"}

	require.NoError(t, ledger.Award(ctx, g))
	require.NoError(t, ledger.Award(ctx, g))

	balance, err := ledger.Balance(ctx, "w")
	require.NoError(t, err)
	assert.Equal(t, 25, balance)
}

func TestLedger_RejectsEmptyGrant(t *testing.T) {
	ledger := NewLedger(repotest.NewRegistry(t).Rewards, nil, zap.NewNop())
	assert.Error(t, ledger.Award(context.Background(), Grant{Reason: "x"}))
}

type fakeEnqueuer struct {
	tasks []*asynq.Task
	err   error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "t"}, nil
}

func TestQueueAwarder_EnqueuesGrant(t *testing.T) {
	fe := &fakeEnqueuer{}
	q := NewQueueAwarder(fe, zap.NewNop())
	g := Grant{UserID: "v", EventID: "e1", Reason: models.RewardConnectionDeclined, Points: 5, SourceID: "req-9"}

	require.NoError(t, q.Award(context.Background(), g))
	require.Len(t, fe.tasks, 1)
	assert.Equal(t, TaskGrant, fe.tasks[0].Type())

	var got Grant
	require.NoError(t, json.Unmarshal(fe.tasks[0].Payload(), &got))
	assert.Equal(t, g, got)
}

func TestQueueAwarder_DuplicateTaskIsSuccess(t *testing.T) {
	q := NewQueueAwarder(&fakeEnqueuer{err: asynq.ErrTaskIDConflict}, zap.NewNop())
	assert.NoError(t, q.Award(context.Background(), Grant{UserID: "v", SourceID: "s", Points: 1}))

	q = NewQueueAwarder(&fakeEnqueuer{err: errors.New("redis down")}, zap.NewNop())
	assert.Error(t, q.Award(context.Background(), Grant{UserID: "v", SourceID: "s", Points: 1}))
}

func TestHandleGrantTask(t *testing.T) {
	reg := repotest.NewRegistry(t)
	ledger := NewLedger(reg.Rewards, nil, zap.NewNop())
	ctx := context.Background()

	payload, err := json.Marshal(Grant{UserID: "w", EventID: "e1", Reason: models.RewardConnectionAccepted, Points: 25, SourceID: "req-1"})
	require.NoError(t, err)
	require.NoError(t, ledger.HandleGrantTask(ctx, asynq.NewTask(TaskGrant, payload)))

	balance, err := ledger.Balance(ctx, "w")
	require.NoError(t, err)
	assert.Equal(t, 25, balance)

	err = ledger.HandleGrantTask(ctx, asynq.NewTask(TaskGrant, []byte("{not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}
