package linker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/durkcogs/linkbot/internal/storage"
)

type fakeStore struct {
	codes   map[uuid.UUID]storage.LinkingCode
	links   map[int64]uuid.UUID
	patrons map[uuid.UUID]int32
	tiers   []storage.PatronTier

	removeErr error
	createErr error
	writes    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		codes:   make(map[uuid.UUID]storage.LinkingCode),
		links:   make(map[int64]uuid.UUID),
		patrons: make(map[uuid.UUID]int32),
	}
}

func (s *fakeStore) LookupCode(_ context.Context, code uuid.UUID) (*storage.LinkingCode, error) {
	lc, ok := s.codes[code]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &lc, nil
}

func (s *fakeStore) LookupLink(_ context.Context, discordID int64) (*storage.Link, error) {
	pid, ok := s.links[discordID]
	if !ok {
		return &storage.Link{}, nil
	}
	return &storage.Link{AccountExists: true, PlayerID: &pid}, nil
}

func (s *fakeStore) RemoveLinkByPlayer(_ context.Context, playerID uuid.UUID) error {
	if s.removeErr != nil {
		return s.removeErr
	}
	s.writes++
	delete(s.patrons, playerID)
	for discordID, pid := range s.links {
		if pid == playerID {
			delete(s.links, discordID)
		}
	}
	return nil
}

func (s *fakeStore) CreateLink(_ context.Context, discordID int64, playerID uuid.UUID, tierID *int32) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.writes++
	s.links[discordID] = playerID
	if tierID != nil {
		s.patrons[playerID] = *tierID
	}
	return nil
}

func (s *fakeStore) PatronTiers(context.Context) ([]storage.PatronTier, error) {
	return s.tiers, nil
}

var (
	player1 = uuid.MustParse("11111111-1111-4111-8111-111111111111")
	player2 = uuid.MustParse("22222222-2222-4222-8222-222222222222")
	code1   = uuid.MustParse("aaaaaaaa-aaaa-4aaa-8aaa-aaaaaaaaaaaa")
	code2   = uuid.MustParse("bbbbbbbb-bbbb-4bbb-8bbb-bbbbbbbbbbbb")
)

func newTestWorkflow(now time.Time) *Workflow {
	w := NewWorkflow(zap.NewNop().Sugar())
	w.now = func() time.Time { return now }
	return w
}

func TestLinkSuccess(t *testing.T) {
	now := time.Now().UTC()
	st := newFakeStore()
	st.codes[code1] = storage.LinkingCode{PlayerID: player1, PlayerName: "Durk", CreatedAt: now.Add(-time.Hour)}
	w := newTestWorkflow(now)

	res, err := w.Link(context.Background(), st, Request{DiscordID: 42, Code: code1.String()})
	require.NoError(t, err)
	assert.Equal(t, "Durk", res.PlayerName)
	assert.Empty(t, res.TierName)

	link, err := st.LookupLink(context.Background(), 42)
	require.NoError(t, err)
	require.NotNil(t, link.PlayerID)
	assert.Equal(t, player1, *link.PlayerID)
}

func TestLinkInvalidCodeFormat(t *testing.T) {
	st := newFakeStore()
	w := newTestWorkflow(time.Now())

	_, err := w.Link(context.Background(), st, Request{DiscordID: 42, Code: "not-a-code"})
	assert.ErrorIs(t, err, ErrInvalidCode)
	assert.Zero(t, st.writes)
}

func TestLinkCodeNotFound(t *testing.T) {
	st := newFakeStore()
	w := newTestWorkflow(time.Now())

	_, err := w.Link(context.Background(), st, Request{DiscordID: 42, Code: code1.String()})
	assert.ErrorIs(t, err, ErrCodeNotFound)
	assert.Zero(t, st.writes)
}

func TestLinkCodeExpired(t *testing.T) {
	now := time.Now().UTC()
	st := newFakeStore()
	st.codes[code1] = storage.LinkingCode{PlayerID: player1, PlayerName: "Durk", CreatedAt: now.Add(-25 * time.Hour)}
	w := newTestWorkflow(now)

	_, err := w.Link(context.Background(), st, Request{DiscordID: 42, Code: code1.String()})
	assert.ErrorIs(t, err, ErrCodeExpired)
	assert.Zero(t, st.writes)
}

func TestLinkCodeJustInsideWindow(t *testing.T) {
	now := time.Now().UTC()
	st := newFakeStore()
	st.codes[code1] = storage.LinkingCode{PlayerID: player1, PlayerName: "Durk", CreatedAt: now.Add(-23 * time.Hour)}
	w := newTestWorkflow(now)

	_, err := w.Link(context.Background(), st, Request{DiscordID: 42, Code: code1.String()})
	assert.NoError(t, err)
}

func TestRelinkReplacesPreviousLink(t *testing.T) {
	now := time.Now().UTC()
	st := newFakeStore()
	st.codes[code2] = storage.LinkingCode{PlayerID: player2, PlayerName: "Other", CreatedAt: now.Add(-time.Hour)}
	st.links[42] = player1
	st.patrons[player1] = 1
	w := newTestWorkflow(now)

	_, err := w.Link(context.Background(), st, Request{DiscordID: 42, Code: code2.String()})
	require.NoError(t, err)

	require.Len(t, st.links, 1)
	assert.Equal(t, player2, st.links[42])
	_, stale := st.patrons[player1]
	assert.False(t, stale, "old player must not keep a patron assignment")
}

func TestLinkPriorUnlinkFailureAborts(t *testing.T) {
	now := time.Now().UTC()
	st := newFakeStore()
	st.codes[code2] = storage.LinkingCode{PlayerID: player2, PlayerName: "Other", CreatedAt: now.Add(-time.Hour)}
	st.links[42] = player1
	st.removeErr = errors.New("delete failed")
	w := newTestWorkflow(now)

	_, err := w.Link(context.Background(), st, Request{DiscordID: 42, Code: code2.String()})
	assert.ErrorIs(t, err, ErrPriorUnlink)
	// The old link must survive and no new one may appear.
	assert.Equal(t, player1, st.links[42])
	assert.Zero(t, st.writes)
}

func TestLinkCommitFailure(t *testing.T) {
	now := time.Now().UTC()
	st := newFakeStore()
	st.codes[code1] = storage.LinkingCode{PlayerID: player1, PlayerName: "Durk", CreatedAt: now.Add(-time.Hour)}
	st.createErr = errors.New("constraint violation")
	w := newTestWorkflow(now)

	_, err := w.Link(context.Background(), st, Request{DiscordID: 42, Code: code1.String()})
	assert.ErrorIs(t, err, ErrCommit)
}

func TestLinkGrantsTierToMember(t *testing.T) {
	now := time.Now().UTC()
	st := newFakeStore()
	st.codes[code1] = storage.LinkingCode{PlayerID: player1, PlayerName: "Durk", CreatedAt: now.Add(-time.Hour)}
	st.tiers = []storage.PatronTier{
		{ID: 1, Role: 1001, Name: "Gold", Priority: 0},
		{ID: 2, Role: 1002, Name: "Silver", Priority: 1},
	}
	w := newTestWorkflow(now)

	res, err := w.Link(context.Background(), st, Request{
		DiscordID: 42,
		Code:      code1.String(),
		IsMember:  true,
		RoleIDs:   []string{"1002"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Silver", res.TierName)
	assert.Equal(t, int32(2), st.patrons[player1])
}

func TestLinkNoTierForNonMember(t *testing.T) {
	now := time.Now().UTC()
	st := newFakeStore()
	st.codes[code1] = storage.LinkingCode{PlayerID: player1, PlayerName: "Durk", CreatedAt: now.Add(-time.Hour)}
	st.tiers = []storage.PatronTier{{ID: 1, Role: 1001, Name: "Gold", Priority: 0}}
	w := newTestWorkflow(now)

	res, err := w.Link(context.Background(), st, Request{
		DiscordID: 42,
		Code:      code1.String(),
		IsMember:  false,
		RoleIDs:   []string{"1001"},
	})
	require.NoError(t, err)
	assert.Empty(t, res.TierName)
	assert.Empty(t, st.patrons)
}
