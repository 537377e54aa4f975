package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	aierrors "github.com/hrygo/agentcore/internal/errors"
	"github.com/hrygo/agentcore/plugin/ai/cache"
	storetest "github.com/hrygo/agentcore/store/test"
)

type pendingPayload struct {
	Steps []string `json:"steps"`
}

func newTestStateStore(t *testing.T) (*StateStore, *cache.Service) {
	t.Helper()
	ctx := context.Background()
	c := cache.NewService(cache.DefaultServiceConfig())
	t.Cleanup(c.Close)
	return NewStateStore(storetest.NewTestingStore(ctx, t), c), c
}

func TestStateStore_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestStateStore(t)
	key := Key{UserID: "u1", SessionID: "s1"}

	var got pendingPayload
	ok, err := s.Get(ctx, key, KindPendingConfirmation, &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, key, KindPendingConfirmation, pendingPayload{Steps: []string{"delete_post"}}, time.Minute))
	ok, err = s.Get(ctx, key, KindPendingConfirmation, &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"delete_post"}, got.Steps)

	// Other sessions of the same user are isolated.
	ok, err = s.Get(ctx, Key{UserID: "u1", SessionID: "s2"}, KindPendingConfirmation, &got)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Delete(ctx, key, KindPendingConfirmation))
	ok, err = s.Get(ctx, key, KindPendingConfirmation, &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStateStore_SharedAcrossInstances(t *testing.T) {
	ctx := context.Background()
	ts := storetest.NewTestingStore(ctx, t)
	a := NewStateStore(ts, nil)
	b := NewStateStore(ts, nil)
	key := Key{UserID: "u1", SessionID: "s1"}

	require.NoError(t, a.Put(ctx, key, KindPendingConfirmation, pendingPayload{Steps: []string{"create_post"}}, time.Minute))

	var got pendingPayload
	ok, err := b.Get(ctx, key, KindPendingConfirmation, &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"create_post"}, got.Steps)
}

func TestStateStore_NotSerializable(t *testing.T) {
	s, _ := newTestStateStore(t)
	err := s.Put(context.Background(), Key{UserID: "u1", SessionID: "s1"}, "bad", func() {}, 0)
	require.Error(t, err)
	assert.True(t, aierrors.IsCode(err, aierrors.ErrCodeInvalidArgument))
}

func TestTurnLog_Append(t *testing.T) {
	ctx := context.Background()
	log := NewTurnLog(NewMockStateService())
	key := Key{UserID: "u1", SessionID: "s1"}

	turns, err := log.Load(ctx, key)
	require.NoError(t, err)
	assert.Zero(t, turns.Count)
	assert.Nil(t, turns.Last)

	for i := range 5 {
		_, err := log.Append(ctx, key, PriorTurn{
			Query:      "query " + string(rune('a'+i)),
			IntentType: "tool_execution",
			Response:   "ok",
		})
		require.NoError(t, err)
	}

	turns, err = log.Load(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 5, turns.Count)
	require.NotNil(t, turns.Last)
	assert.Equal(t, "query e", turns.Last.Query)
	assert.False(t, turns.Last.At.IsZero())
	require.Len(t, turns.Tail, MaxTailMessages)
	assert.Equal(t, "query c", turns.Tail[0].Content)
	assert.Equal(t, "assistant", turns.Tail[len(turns.Tail)-1].Role)
}

func TestMockStateService_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	m := NewMockStateService()
	m.Now = func() time.Time { return now }
	key := Key{UserID: "u1", SessionID: "s1"}

	require.NoError(t, m.Put(ctx, key, KindPendingConfirmation, "plan", time.Minute))
	var v string
	ok, err := m.Get(ctx, key, KindPendingConfirmation, &v)
	require.NoError(t, err)
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	ok, err = m.Get(ctx, key, KindPendingConfirmation, &v)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := m.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Zero(t, m.Len())
}

func TestCleanupJob_RunOnce(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	m := NewMockStateService()
	m.Now = func() time.Time { return now }
	require.NoError(t, m.Put(ctx, Key{UserID: "u1", SessionID: "s1"}, KindPendingConfirmation, "x", time.Second))
	require.NoError(t, m.Put(ctx, Key{UserID: "u1", SessionID: "s2"}, KindTurns, "y", 0))
	now = now.Add(time.Minute)

	job := NewCleanupJob(m, 0)
	deleted, err := job.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)
	assert.Equal(t, 1, m.Len())
}

func TestCleanupJob_StartStop(t *testing.T) {
	job := NewCleanupJob(NewMockStateService(), time.Hour)
	job.Start(context.Background())
	job.Start(context.Background())
	assert.True(t, job.IsRunning())
	job.Stop()
	assert.False(t, job.IsRunning())
	job.Stop()
}
