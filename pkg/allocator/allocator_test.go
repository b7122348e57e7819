package allocator

import (
	"context"
	"errors"
	"testing"

	"github.com/aicarpool/carpool/pkg/accounts"
	"github.com/aicarpool/carpool/pkg/binding"
)

// fakeStore serves fixed bindings for allocator tests.
type fakeStore struct {
	bindings map[int64]*binding.ResourceBinding
	owners   map[int64]int64
}

func (s *fakeStore) Binding(ctx context.Context, groupID int64) (*binding.ResourceBinding, error) {
	b, ok := s.bindings[groupID]
	if !ok {
		return nil, binding.ErrBindingNotFound
	}
	return b, nil
}

func (s *fakeStore) UpsertBinding(ctx context.Context, b *binding.ResourceBinding) error {
	s.bindings[b.GroupID] = b
	return nil
}

func (s *fakeStore) ActiveAccountBindings(ctx context.Context, groupID int64) ([]binding.AccountBinding, error) {
	return nil, nil
}

func (s *fakeStore) ActiveExclusiveOwners(ctx context.Context) (map[int64]int64, error) {
	return s.owners, nil
}

func (s *fakeStore) BindExclusive(ctx context.Context, groupID, accountID int64) (*binding.AccountBinding, error) {
	return nil, nil
}

func (s *fakeStore) ReleaseAccountBinding(ctx context.Context, groupID, accountID int64) error {
	return nil
}

func (s *fakeStore) GroupsWithModes(ctx context.Context, modes ...binding.Mode) ([]int64, error) {
	var out []int64
	for id, b := range s.bindings {
		for _, m := range modes {
			if b.Mode == m {
				out = append(out, id)
				break
			}
		}
	}
	return out, nil
}

func (s *fakeStore) GroupEnterprise(ctx context.Context, groupID int64) (int64, error) {
	return 1, nil
}

// failingDirectory fails listings on demand.
type failingDirectory struct {
	inner *accounts.MemoryDirectory
	fail  bool
}

func (d *failingDirectory) Account(ctx context.Context, id int64) (*accounts.Account, error) {
	return d.inner.Account(ctx, id)
}

func (d *failingDirectory) ListByPlatform(ctx context.Context, platform accounts.Platform) ([]accounts.Account, error) {
	if d.fail {
		return nil, errors.New("directory down")
	}
	return d.inner.ListByPlatform(ctx, platform)
}

func activeAccount(id int64, platform accounts.Platform, priority int) accounts.Account {
	return accounts.Account{ID: id, Platform: platform, Status: accounts.StatusActive, Priority: priority}
}

func TestRefreshBuildsSnapshot(t *testing.T) {
	store := &fakeStore{
		bindings: map[int64]*binding.ResourceBinding{
			7: {GroupID: 7, Mode: binding.ModeShared},
			8: {GroupID: 8, Mode: binding.ModeHybrid},
			9: {GroupID: 9, Mode: binding.ModeDedicated}, // excluded from snapshots
		},
		owners: map[int64]int64{},
	}
	directory := accounts.NewMemoryDirectory(
		activeAccount(1, accounts.PlatformClaude, 2),
		activeAccount(2, accounts.PlatformClaude, 1),
		activeAccount(3, accounts.PlatformGemini, 1),
	)

	a := New(Config{Store: store, Directory: directory})
	if err := a.RefreshNow(context.Background()); err != nil {
		t.Fatalf("RefreshNow() error = %v", err)
	}

	pool, ok := a.Candidates(7, accounts.PlatformClaude)
	if !ok {
		t.Fatal("no snapshot for shared group")
	}
	if len(pool) != 2 || pool[0].ID != 2 {
		t.Errorf("claude pool = %v, want priority-ranked [2 1]", pool)
	}

	if _, ok := a.Candidates(8, accounts.PlatformGemini); !ok {
		t.Error("no snapshot for hybrid group")
	}
	if _, ok := a.Candidates(9, accounts.PlatformClaude); ok {
		t.Error("dedicated group received a snapshot")
	}
	if _, ok := a.Candidates(7, accounts.PlatformOpenAI); ok {
		t.Error("snapshot exists for platform with no accounts")
	}
	if a.LastRefresh().IsZero() {
		t.Error("LastRefresh() is zero after successful refresh")
	}
}

func TestRefreshHonorsExclusivity(t *testing.T) {
	store := &fakeStore{
		bindings: map[int64]*binding.ResourceBinding{
			7: {GroupID: 7, Mode: binding.ModeShared},
			8: {GroupID: 8, Mode: binding.ModeShared},
		},
		// Account 1 belongs exclusively to group 7.
		owners: map[int64]int64{1: 7},
	}
	directory := accounts.NewMemoryDirectory(
		activeAccount(1, accounts.PlatformClaude, 1),
		activeAccount(2, accounts.PlatformClaude, 2),
	)

	a := New(Config{Store: store, Directory: directory})
	if err := a.RefreshNow(context.Background()); err != nil {
		t.Fatalf("RefreshNow() error = %v", err)
	}

	ownPool, _ := a.Candidates(7, accounts.PlatformClaude)
	if len(ownPool) != 2 {
		t.Errorf("owner group pool has %d accounts, want 2 (own exclusive included)", len(ownPool))
	}

	otherPool, _ := a.Candidates(8, accounts.PlatformClaude)
	if len(otherPool) != 1 || otherPool[0].ID != 2 {
		t.Errorf("other group pool = %v, want only account 2", otherPool)
	}
}

func TestRefreshSkipsUnusableAndTruncates(t *testing.T) {
	down := activeAccount(3, accounts.PlatformClaude, 0)
	down.Status = accounts.StatusDisabled

	store := &fakeStore{
		bindings: map[int64]*binding.ResourceBinding{
			7: {GroupID: 7, Mode: binding.ModeShared, Config: binding.Config{MaxCandidates: 1}},
		},
		owners: map[int64]int64{},
	}
	directory := accounts.NewMemoryDirectory(
		activeAccount(1, accounts.PlatformClaude, 2),
		activeAccount(2, accounts.PlatformClaude, 1),
		down,
	)

	a := New(Config{Store: store, Directory: directory})
	if err := a.RefreshNow(context.Background()); err != nil {
		t.Fatalf("RefreshNow() error = %v", err)
	}

	pool, _ := a.Candidates(7, accounts.PlatformClaude)
	if len(pool) != 1 || pool[0].ID != 2 {
		t.Errorf("pool = %v, want truncated [2]", pool)
	}
}

func TestRefreshFailureKeepsLastKnownGood(t *testing.T) {
	store := &fakeStore{
		bindings: map[int64]*binding.ResourceBinding{
			7: {GroupID: 7, Mode: binding.ModeShared},
		},
		owners: map[int64]int64{},
	}
	directory := &failingDirectory{inner: accounts.NewMemoryDirectory(
		activeAccount(1, accounts.PlatformClaude, 1),
	)}

	a := New(Config{Store: store, Directory: directory})
	if err := a.RefreshNow(context.Background()); err != nil {
		t.Fatalf("RefreshNow() error = %v", err)
	}
	refreshed := a.LastRefresh()

	directory.fail = true
	if err := a.RefreshNow(context.Background()); err == nil {
		t.Fatal("RefreshNow() error = nil with failing directory")
	}

	// The previous snapshot still serves.
	pool, ok := a.Candidates(7, accounts.PlatformClaude)
	if !ok || len(pool) != 1 {
		t.Errorf("snapshot lost after failed refresh: pool = %v, ok = %v", pool, ok)
	}
	if !a.LastRefresh().Equal(refreshed) {
		t.Error("LastRefresh() advanced after failed refresh")
	}
}

func TestCandidatesReturnsCopy(t *testing.T) {
	store := &fakeStore{
		bindings: map[int64]*binding.ResourceBinding{
			7: {GroupID: 7, Mode: binding.ModeShared},
		},
		owners: map[int64]int64{},
	}
	directory := accounts.NewMemoryDirectory(
		activeAccount(1, accounts.PlatformClaude, 1),
		activeAccount(2, accounts.PlatformClaude, 2),
	)

	a := New(Config{Store: store, Directory: directory})
	if err := a.RefreshNow(context.Background()); err != nil {
		t.Fatalf("RefreshNow() error = %v", err)
	}

	pool, _ := a.Candidates(7, accounts.PlatformClaude)
	pool[0].ID = 999

	again, _ := a.Candidates(7, accounts.PlatformClaude)
	if again[0].ID == 999 {
		t.Error("caller mutation leaked into the snapshot")
	}
}

func TestStartRejectsDoubleStart(t *testing.T) {
	store := &fakeStore{bindings: map[int64]*binding.ResourceBinding{}, owners: map[int64]int64{}}
	a := New(Config{Store: store, Directory: accounts.NewMemoryDirectory()})

	if err := a.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer a.Stop()

	if err := a.Start(); err == nil {
		t.Error("second Start() error = nil, want already-started error")
	}
}
