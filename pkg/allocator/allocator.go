package allocator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/aicarpool/carpool/pkg/accounts"
	"github.com/aicarpool/carpool/pkg/binding"
	"github.com/aicarpool/carpool/pkg/observability"
)

// DefaultSchedule refreshes the candidate lists every five minutes.
const DefaultSchedule = "*/5 * * * *"

type poolKey struct {
	groupID  int64
	platform accounts.Platform
}

// Allocator precomputes ranked account candidate lists for every group in
// shared or hybrid mode, on a cron schedule. The binding manager consults the
// snapshot on its hot path instead of re-querying the directory per request.
//
// Refresh failures keep the last successfully built snapshot in place, so a
// directory outage degrades candidate freshness rather than availability.
type Allocator struct {
	store     binding.Store
	directory accounts.Directory
	log       *logrus.Logger
	metrics   *observability.Metrics
	mirror    *Mirror
	schedule  string
	timeout   time.Duration

	cron    *cron.Cron
	entryID cron.EntryID

	mu        sync.RWMutex
	snapshot  map[poolKey][]accounts.Account
	refreshed time.Time
}

// Config wires an Allocator. Store and Directory are required.
type Config struct {
	Store     binding.Store
	Directory accounts.Directory

	// Schedule is a cron expression; DefaultSchedule when empty.
	Schedule string

	// RefreshTimeout bounds one full refresh pass. Defaults to one minute.
	RefreshTimeout time.Duration

	Logger  *logrus.Logger
	Metrics *observability.Metrics
	Mirror  *Mirror
}

// New creates an allocator. Call Start to begin scheduled refreshes;
// RefreshNow is available for eager warm-up.
func New(cfg Config) *Allocator {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.RefreshTimeout <= 0 {
		cfg.RefreshTimeout = time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Allocator{
		store:     cfg.Store,
		directory: cfg.Directory,
		log:       cfg.Logger,
		metrics:   cfg.Metrics,
		mirror:    cfg.Mirror,
		schedule:  cfg.Schedule,
		timeout:   cfg.RefreshTimeout,
		snapshot:  make(map[poolKey][]accounts.Account),
	}
}

// Start schedules periodic refreshes. The first refresh runs at the first
// cron tick; call RefreshNow first when a warm snapshot is needed at boot.
func (a *Allocator) Start() error {
	if a.cron != nil {
		return fmt.Errorf("allocator already started")
	}
	a.cron = cron.New()
	id, err := a.cron.AddFunc(a.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if err := a.RefreshNow(ctx); err != nil {
			a.log.WithError(err).Warn("candidate refresh failed, serving last known good snapshot")
		}
	})
	if err != nil {
		a.cron = nil
		return fmt.Errorf("failed to schedule refresh: %w", err)
	}
	a.entryID = id
	a.cron.Start()
	a.log.WithField("schedule", a.schedule).Info("allocator started")
	return nil
}

// Stop halts scheduled refreshes and waits for a running one to finish.
func (a *Allocator) Stop() {
	if a.cron == nil {
		return
	}
	ctx := a.cron.Stop()
	<-ctx.Done()
	a.cron = nil
}

// Candidates implements binding.CandidateSource. The second return is false
// when no snapshot exists for the group and platform, which tells the manager
// to fall back to a live query.
func (a *Allocator) Candidates(groupID int64, platform accounts.Platform) ([]accounts.Account, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	snap, ok := a.snapshot[poolKey{groupID: groupID, platform: platform}]
	if !ok {
		return nil, false
	}
	out := make([]accounts.Account, len(snap))
	copy(out, snap)
	return out, true
}

// LastRefresh returns when the current snapshot was built; zero before the
// first successful refresh.
func (a *Allocator) LastRefresh() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.refreshed
}

// RefreshNow rebuilds the whole snapshot. On any error the previous snapshot
// stays in place untouched.
func (a *Allocator) RefreshNow(ctx context.Context) error {
	next, err := a.build(ctx)
	if err != nil {
		if a.metrics != nil {
			a.metrics.AllocatorRefreshTotal.WithLabelValues("failure").Inc()
		}
		return err
	}

	now := time.Now()
	a.mu.Lock()
	a.snapshot = next
	a.refreshed = now
	a.mu.Unlock()

	groups := make(map[int64]struct{})
	for k := range next {
		groups[k.groupID] = struct{}{}
	}
	if a.metrics != nil {
		a.metrics.AllocatorRefreshTotal.WithLabelValues("success").Inc()
		a.metrics.AllocatorSnapshotGroups.Set(float64(len(groups)))
		a.metrics.AllocatorLastRefreshUnix.Set(float64(now.Unix()))
	}
	a.log.WithFields(logrus.Fields{
		"groups": len(groups),
		"pools":  len(next),
	}).Debug("candidate snapshot rebuilt")

	if a.mirror != nil {
		if err := a.mirror.Publish(ctx, next); err != nil {
			// The in-memory snapshot is authoritative; the mirror is for
			// other processes and can lag.
			a.log.WithError(err).Warn("failed to publish snapshot mirror")
		}
	}
	return nil
}

// build assembles the next snapshot without touching the served one.
func (a *Allocator) build(ctx context.Context) (map[poolKey][]accounts.Account, error) {
	groupIDs, err := a.store.GroupsWithModes(ctx, binding.ModeShared, binding.ModeHybrid)
	if err != nil {
		return nil, fmt.Errorf("failed to list shared groups: %w", err)
	}
	owners, err := a.store.ActiveExclusiveOwners(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list exclusive owners: %w", err)
	}

	// One directory listing per platform, shared across groups.
	byPlatform := make(map[accounts.Platform][]accounts.Account)
	for _, platform := range accounts.AllPlatforms() {
		listed, err := a.directory.ListByPlatform(ctx, platform)
		if err != nil {
			return nil, fmt.Errorf("failed to list %s accounts: %w", platform, err)
		}
		byPlatform[platform] = listed
	}

	next := make(map[poolKey][]accounts.Account)
	for _, groupID := range groupIDs {
		b, err := a.store.Binding(ctx, groupID)
		if err != nil {
			return nil, fmt.Errorf("failed to load binding for group %d: %w", groupID, err)
		}
		strategy := binding.NewStrategy(b.Config.Strategy)

		for platform, listed := range byPlatform {
			var pool []accounts.Account
			for _, acct := range listed {
				if !acct.Usable() {
					continue
				}
				if owner, bound := owners[acct.ID]; bound && owner != groupID {
					continue
				}
				pool = append(pool, acct)
			}
			if len(pool) == 0 {
				continue
			}
			ranked := strategy.Rank(groupID, pool)
			if max := b.Config.MaxCandidates; max > 0 && len(ranked) > max {
				ranked = ranked[:max]
			}
			next[poolKey{groupID: groupID, platform: platform}] = ranked
		}
	}
	return next, nil
}
