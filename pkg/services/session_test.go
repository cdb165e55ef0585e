package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/sqlmend/pkg/apperrors"
	"github.com/ekaya-inc/sqlmend/pkg/config"
)

type mockSessionStore struct {
	SaveTurnFunc    func(ctx context.Context, sessionID string, turn Turn) error
	LoadHistoryFunc func(ctx context.Context, sessionID string, limit int) ([]Turn, error)

	SaveTurnCalls    int
	LoadHistoryCalls int
}

func (m *mockSessionStore) SaveTurn(ctx context.Context, sessionID string, turn Turn) error {
	m.SaveTurnCalls++
	if m.SaveTurnFunc != nil {
		return m.SaveTurnFunc(ctx, sessionID, turn)
	}
	return nil
}

func (m *mockSessionStore) LoadHistory(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
	m.LoadHistoryCalls++
	if m.LoadHistoryFunc != nil {
		return m.LoadHistoryFunc(ctx, sessionID, limit)
	}
	return nil, nil
}

func (m *mockSessionStore) Close() error { return nil }

var _ SessionStore = (*mockSessionStore)(nil)

func newTestManager(historyLimit, cacheLimit int, store SessionStore) *SessionManager {
	return NewSessionManager(historyLimit, cacheLimit, store, zap.NewNop())
}

func TestSessionHistoryTrimsOldest(t *testing.T) {
	m := newTestManager(3, 10, nil)
	s := m.Create()

	for _, q := range []string{"one", "two", "three", "four", "five"} {
		s.RecordTurn(Turn{Question: q})
	}

	h := s.History()
	require.Len(t, h, 3)
	assert.Equal(t, "three", h[0].Question)
	assert.Equal(t, "five", h[2].Question)
}

func TestSessionRecentTurns(t *testing.T) {
	m := newTestManager(10, 10, nil)
	s := m.Create()
	s.RecordTurn(Turn{Question: "a"})
	s.RecordTurn(Turn{Question: "b"})
	s.RecordTurn(Turn{Question: "c"})

	recent := s.RecentTurns(2)
	require.Len(t, recent, 2)
	assert.Equal(t, "b", recent[0].Question)
	assert.Equal(t, "c", recent[1].Question)

	assert.Nil(t, s.RecentTurns(0))
	assert.Len(t, s.RecentTurns(99), 3)
}

func TestSessionRecordTurnStampsTime(t *testing.T) {
	m := newTestManager(10, 10, nil)
	s := m.Create()
	s.RecordTurn(Turn{Question: "when"})
	assert.False(t, s.History()[0].At.IsZero())
}

func TestResolutionCacheEvictsOldestFirst(t *testing.T) {
	m := newTestManager(10, 2, nil)
	s := m.Create()

	s.StoreResolution("k1", &Resolution{})
	s.StoreResolution("k2", &Resolution{})
	s.StoreResolution("k3", &Resolution{})

	_, ok := s.CachedResolution("k1")
	assert.False(t, ok, "oldest entry should be evicted")
	_, ok = s.CachedResolution("k2")
	assert.True(t, ok)
	_, ok = s.CachedResolution("k3")
	assert.True(t, ok)
}

func TestResolutionCacheReplaceKeepsAge(t *testing.T) {
	m := newTestManager(10, 2, nil)
	s := m.Create()

	first := &Resolution{}
	second := &Resolution{}
	s.StoreResolution("k1", first)
	s.StoreResolution("k2", &Resolution{})
	s.StoreResolution("k1", second)

	got, ok := s.CachedResolution("k1")
	require.True(t, ok)
	assert.Same(t, second, got)

	// k1 kept its original age, so the next insert still evicts it.
	s.StoreResolution("k3", &Resolution{})
	_, ok = s.CachedResolution("k1")
	assert.False(t, ok)
	_, ok = s.CachedResolution("k2")
	assert.True(t, ok)
}

func TestResolutionCacheKey(t *testing.T) {
	k1 := ResolutionCacheKey("show orders", "SELECT 1")
	k2 := ResolutionCacheKey("show orders", "SELECT 1")
	assert.Equal(t, k1, k2)
	assert.Len(t, k1, 64)

	assert.NotEqual(t, k1, ResolutionCacheKey("show orders", "SELECT 2"))
	assert.NotEqual(t, k1, ResolutionCacheKey("show customers", "SELECT 1"))

	// The separator keeps (question, sql) boundaries unambiguous.
	assert.NotEqual(t, ResolutionCacheKey("ab", "c"), ResolutionCacheKey("a", "bc"))
}

func TestSessionManagerCreateAndGet(t *testing.T) {
	m := newTestManager(10, 10, nil)
	s := m.Create()
	require.NotEmpty(t, s.ID)
	_, err := uuid.Parse(s.ID)
	require.NoError(t, err)

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)
	assert.Equal(t, 1, m.Len())
}

func TestSessionManagerGetUnknown(t *testing.T) {
	m := newTestManager(10, 10, nil)
	_, err := m.Get(uuid.NewString())
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
}

func TestGetOrCreateEmptyIDAllocates(t *testing.T) {
	m := newTestManager(10, 10, nil)
	s, err := m.GetOrCreate(context.Background(), "")
	require.NoError(t, err)
	_, err = uuid.Parse(s.ID)
	assert.NoError(t, err)
}

func TestGetOrCreateRejectsMalformedID(t *testing.T) {
	m := newTestManager(10, 10, nil)
	_, err := m.GetOrCreate(context.Background(), "not-a-uuid")
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
}

func TestGetOrCreateReturnsExisting(t *testing.T) {
	m := newTestManager(10, 10, nil)
	s := m.Create()
	got, err := m.GetOrCreate(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)
}

func TestGetOrCreateRehydratesFromStore(t *testing.T) {
	store := &mockSessionStore{
		LoadHistoryFunc: func(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
			return []Turn{
				{Question: "first", SQL: "SELECT 1"},
				{Question: "second", SQL: "SELECT 2"},
			}, nil
		},
	}
	m := newTestManager(10, 10, store)

	id := uuid.NewString()
	s, err := m.GetOrCreate(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, 1, store.LoadHistoryCalls)

	h := s.History()
	require.Len(t, h, 2)
	assert.Equal(t, "first", h[0].Question)
}

func TestGetOrCreateSurvivesStoreFailure(t *testing.T) {
	store := &mockSessionStore{
		LoadHistoryFunc: func(ctx context.Context, sessionID string, limit int) ([]Turn, error) {
			return nil, errors.New("redis down")
		},
	}
	m := newTestManager(10, 10, store)

	s, err := m.GetOrCreate(context.Background(), uuid.NewString())
	require.NoError(t, err)
	assert.Empty(t, s.History())
}

func TestMirrorWritesThroughStore(t *testing.T) {
	store := &mockSessionStore{}
	m := newTestManager(10, 10, store)
	s := m.Create()

	m.Mirror(context.Background(), s.ID, Turn{Question: "q", SQL: "SELECT 1"})
	assert.Equal(t, 1, store.SaveTurnCalls)
}

func TestMirrorSwallowsStoreFailure(t *testing.T) {
	store := &mockSessionStore{
		SaveTurnFunc: func(ctx context.Context, sessionID string, turn Turn) error {
			return errors.New("redis down")
		},
	}
	m := newTestManager(10, 10, store)
	s := m.Create()

	// Must not panic or propagate.
	m.Mirror(context.Background(), s.ID, Turn{Question: "q"})
	assert.Equal(t, 1, store.SaveTurnCalls)
}

func TestPruneIdle(t *testing.T) {
	m := newTestManager(10, 10, nil)
	stale := m.Create()
	fresh := m.Create()
	stale.lastSeen = time.Now().Add(-2 * time.Hour)

	removed := m.PruneIdle(time.Hour)
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, m.Len())

	_, err := m.Get(stale.ID)
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
	_, err = m.Get(fresh.ID)
	assert.NoError(t, err)
}

func TestLastResolution(t *testing.T) {
	m := newTestManager(10, 10, nil)
	s := m.Create()
	assert.Nil(t, s.LastResolution())

	r := &Resolution{}
	s.SetLastResolution(r)
	assert.Same(t, r, s.LastResolution())
}

func TestNewRedisStoreDisabledWithoutHost(t *testing.T) {
	store, err := NewRedisStore(&config.RedisConfig{}, 10, zap.NewNop())
	require.NoError(t, err)
	// Must be a plain nil interface, not a typed nil, so store != nil
	// guards see the mirror as absent.
	assert.True(t, store == nil)
}
