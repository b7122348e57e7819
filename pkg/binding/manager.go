package binding

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/aicarpool/carpool/pkg/accounts"
	"github.com/aicarpool/carpool/pkg/audit"
	"github.com/aicarpool/carpool/pkg/observability"
	"github.com/aicarpool/carpool/pkg/quota"
	"github.com/aicarpool/carpool/pkg/rbac"
)

// CandidateSource supplies precomputed ranked candidate lists for the shared
// pool. The allocator implements this; when it has no snapshot for a group
// the manager falls back to a live directory query.
type CandidateSource interface {
	Candidates(groupID int64, platform accounts.Platform) ([]accounts.Account, bool)
}

// Manager is the resource-binding engine. It owns per-group binding
// configuration, account selection across the three binding modes, and the
// global exclusivity invariant for dedicated accounts.
type Manager struct {
	store     Store
	directory accounts.Directory
	tracker   *quota.Tracker
	evaluator *rbac.Evaluator
	source    CandidateSource
	logger    *observability.Logger
	metrics   *observability.Metrics
	audit     audit.Recorder

	mu         sync.Mutex
	strategies map[int64]Strategy
}

// ManagerConfig wires a Manager. Store, Directory, Tracker and Evaluator are
// required; the rest are optional.
type ManagerConfig struct {
	Store     Store
	Directory accounts.Directory
	Tracker   *quota.Tracker
	Evaluator *rbac.Evaluator
	Source    CandidateSource
	Logger    *observability.Logger
	Metrics   *observability.Metrics
	Audit     audit.Recorder
}

// NewManager creates a binding manager.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = observability.NewLogger(observability.InfoLevel, nil)
	}
	return &Manager{
		store:      cfg.Store,
		directory:  cfg.Directory,
		tracker:    cfg.Tracker,
		evaluator:  cfg.Evaluator,
		source:     cfg.Source,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		audit:      cfg.Audit,
		strategies: make(map[int64]Strategy),
	}
}

// Binding returns the group's resource binding.
func (m *Manager) Binding(ctx context.Context, groupID int64) (*ResourceBinding, error) {
	return m.store.Binding(ctx, groupID)
}

// ResolveAccount selects the upstream account a group's AI request should
// use. The actor must hold ai.use at the group's scope; callers without it
// get ForbiddenError, which is distinct from the capacity failure
// NoAvailableAccountError. The group's own quota gates every mode: an
// exhausted group gets no account even when the pool has capacity. Within a
// mode, accounts are excluded for status, platform and account-level quota
// before the ranking strategy orders what is left.
func (m *Manager) ResolveAccount(ctx context.Context, actorID, groupID int64, platform accounts.Platform) (*accounts.Account, error) {
	if err := m.authorize(ctx, actorID, groupID, rbac.PermAIUse); err != nil {
		return nil, err
	}

	b, err := m.store.Binding(ctx, groupID)
	if err == ErrBindingNotFound {
		return nil, m.selectionFailure("no_binding", &NoAvailableAccountError{
			GroupID: groupID, Platform: platform, Reason: "group has no resource binding",
		})
	}
	if err != nil {
		return nil, &rbac.StorageUnavailableError{Op: "load binding", Err: err}
	}

	groupLimits := quota.Limits{DailyTokens: b.DailyTokenLimit, MonthlyBudget: b.MonthlyBudget}
	rem, err := m.tracker.RemainingWithLimits(ctx, quota.GroupSubject(groupID), groupLimits)
	if err != nil {
		return nil, &rbac.StorageUnavailableError{Op: "read group usage", Err: err}
	}
	if rem.Exhausted(groupLimits) {
		return nil, m.selectionFailure("group_quota", &NoAvailableAccountError{
			GroupID: groupID, Platform: platform, Reason: "group quota exhausted",
		})
	}

	var account *accounts.Account
	switch b.Mode {
	case ModeDedicated:
		account, err = m.pickDedicated(ctx, b, platform)
	case ModeShared:
		account, err = m.pickShared(ctx, b, platform)
	case ModeHybrid:
		account, err = m.pickDedicated(ctx, b, platform)
		if IsNoAvailableAccount(err) {
			account, err = m.pickShared(ctx, b, platform)
		}
	default:
		return nil, &rbac.InvalidArgumentError{Field: "mode", Reason: "unknown binding mode " + string(b.Mode)}
	}
	if err != nil {
		if IsNoAvailableAccount(err) {
			return nil, m.selectionFailure("pool_empty", err)
		}
		return nil, err
	}

	if m.metrics != nil {
		m.metrics.AccountSelectionsTotal.WithLabelValues(string(b.Mode), string(platform)).Inc()
	}
	return account, nil
}

// pickDedicated selects from the group's own exclusively bound accounts.
func (m *Manager) pickDedicated(ctx context.Context, b *ResourceBinding, platform accounts.Platform) (*accounts.Account, error) {
	bindings, err := m.store.ActiveAccountBindings(ctx, b.GroupID)
	if err != nil {
		return nil, &rbac.StorageUnavailableError{Op: "list account bindings", Err: err}
	}

	var pool []accounts.Account
	for _, ab := range bindings {
		if ab.Type != TypeExclusive {
			continue
		}
		a, err := m.directory.Account(ctx, ab.AccountID)
		if err != nil {
			m.logger.WithError(err).WithField("account_id", ab.AccountID).Warn("skipping unresolvable bound account")
			continue
		}
		if a.Platform == platform {
			pool = append(pool, *a)
		}
	}
	if len(pool) == 0 {
		return nil, &NoAvailableAccountError{GroupID: b.GroupID, Platform: platform, Reason: "no dedicated accounts bound"}
	}
	return m.selectFrom(ctx, b, platform, pool, "dedicated pool exhausted")
}

// pickShared selects from the shared pool: the allocator's snapshot when one
// exists, a live directory listing otherwise. Accounts exclusively owned by
// another group never serve shared traffic.
func (m *Manager) pickShared(ctx context.Context, b *ResourceBinding, platform accounts.Platform) (*accounts.Account, error) {
	var pool []accounts.Account
	if m.source != nil {
		if snap, ok := m.source.Candidates(b.GroupID, platform); ok {
			pool = snap
		}
	}
	if pool == nil {
		listed, err := m.directory.ListByPlatform(ctx, platform)
		if err != nil {
			return nil, &rbac.StorageUnavailableError{Op: "list accounts", Err: err}
		}
		owners, err := m.store.ActiveExclusiveOwners(ctx)
		if err != nil {
			return nil, &rbac.StorageUnavailableError{Op: "list exclusive owners", Err: err}
		}
		for _, a := range listed {
			if owner, bound := owners[a.ID]; bound && owner != b.GroupID {
				continue
			}
			pool = append(pool, a)
		}
	}
	if len(pool) == 0 {
		return nil, &NoAvailableAccountError{GroupID: b.GroupID, Platform: platform, Reason: "shared pool is empty"}
	}
	return m.selectFrom(ctx, b, platform, pool, "shared pool exhausted")
}

// selectFrom applies status and account-quota exclusion, ranks the survivors
// with the group's strategy and returns the first.
func (m *Manager) selectFrom(ctx context.Context, b *ResourceBinding, platform accounts.Platform, pool []accounts.Account, emptyReason string) (*accounts.Account, error) {
	var usable []accounts.Account
	for _, a := range pool {
		if !a.Usable() {
			continue
		}
		limits := quota.Limits{DailyTokens: a.DailyTokenQuota, MonthlyBudget: a.MonthlyBudget}
		rem, err := m.tracker.RemainingWithLimits(ctx, quota.AccountSubject(a.ID), limits)
		if err != nil {
			return nil, &rbac.StorageUnavailableError{Op: "read account usage", Err: err}
		}
		if rem.Exhausted(limits) {
			continue
		}
		usable = append(usable, a)
	}
	if len(usable) == 0 {
		return nil, &NoAvailableAccountError{GroupID: b.GroupID, Platform: platform, Reason: emptyReason}
	}

	ranked := m.strategyFor(b.GroupID, b.Config.Strategy).Rank(b.GroupID, usable)
	if max := b.Config.MaxCandidates; max > 0 && len(ranked) > max {
		ranked = ranked[:max]
	}
	selected := ranked[0]
	return &selected, nil
}

// BindAccountExclusively reserves an account for the group. If another group
// holds the account, the binding moves: the prior holder loses it atomically.
// The actor needs group management rights on the receiving group.
func (m *Manager) BindAccountExclusively(ctx context.Context, actorID, groupID, accountID int64) (*AccountBinding, error) {
	if err := m.authorizeGroup(ctx, actorID, groupID); err != nil {
		return nil, err
	}
	if _, err := m.directory.Account(ctx, accountID); err != nil {
		return nil, &rbac.InvalidArgumentError{Field: "accountID", Reason: err.Error()}
	}

	owners, err := m.store.ActiveExclusiveOwners(ctx)
	if err != nil {
		return nil, &rbac.StorageUnavailableError{Op: "list exclusive owners", Err: err}
	}
	priorOwner, swapped := owners[accountID]
	if swapped && priorOwner == groupID {
		swapped = false
	}

	ab, err := m.store.BindExclusive(ctx, groupID, accountID)
	if err != nil {
		return nil, &rbac.StorageUnavailableError{Op: "bind exclusive", Err: err}
	}

	if swapped {
		if m.metrics != nil {
			m.metrics.ExclusiveSwapsTotal.Inc()
		}
		m.record(ctx, audit.Event{
			Type: audit.EventExclusiveSwap, ActorID: actorID, GroupID: groupID, AccountID: accountID,
			Details: map[string]any{"previous_group_id": priorOwner},
		})
	} else {
		m.record(ctx, audit.Event{
			Type: audit.EventBindingConfigured, ActorID: actorID, GroupID: groupID, AccountID: accountID,
			Details: map[string]any{"binding_type": string(TypeExclusive)},
		})
	}
	return ab, nil
}

// ReleaseBinding detaches an account from the group.
func (m *Manager) ReleaseBinding(ctx context.Context, actorID, groupID, accountID int64) error {
	if err := m.authorizeGroup(ctx, actorID, groupID); err != nil {
		return err
	}
	if err := m.store.ReleaseAccountBinding(ctx, groupID, accountID); err != nil {
		return &rbac.StorageUnavailableError{Op: "release binding", Err: err}
	}
	m.record(ctx, audit.Event{
		Type: audit.EventBindingReleased, ActorID: actorID, GroupID: groupID, AccountID: accountID,
	})
	return nil
}

// SetBindingMode switches the group's binding mode without touching its other
// configuration. The group must already have a binding.
func (m *Manager) SetBindingMode(ctx context.Context, actorID, groupID int64, mode Mode) error {
	if !ValidMode(mode) {
		return &rbac.InvalidArgumentError{Field: "mode", Reason: "unknown binding mode " + string(mode)}
	}
	if err := m.authorizeGroup(ctx, actorID, groupID); err != nil {
		return err
	}

	b, err := m.store.Binding(ctx, groupID)
	if err == ErrBindingNotFound {
		return err
	}
	if err != nil {
		return &rbac.StorageUnavailableError{Op: "load binding", Err: err}
	}
	previous := b.Mode
	if previous == mode {
		return nil
	}
	b.Mode = mode
	if err := m.store.UpsertBinding(ctx, b); err != nil {
		return &rbac.StorageUnavailableError{Op: "update binding mode", Err: err}
	}
	m.record(ctx, audit.Event{
		Type: audit.EventBindingModeChange, ActorID: actorID, GroupID: groupID,
		Details: map[string]any{"from": string(previous), "to": string(mode)},
	})
	return nil
}

// ConfigureBinding creates or replaces the group's resource binding.
func (m *Manager) ConfigureBinding(ctx context.Context, actorID, groupID int64, params Params) (*ResourceBinding, error) {
	if !ValidMode(params.Mode) {
		return nil, &rbac.InvalidArgumentError{Field: "mode", Reason: "unknown binding mode " + string(params.Mode)}
	}
	if !ValidStrategy(params.Config.Strategy) {
		return nil, &rbac.InvalidArgumentError{Field: "strategy", Reason: "unknown strategy " + string(params.Config.Strategy)}
	}
	if params.DailyTokenLimit < 0 || params.MonthlyBudget < 0 {
		return nil, &rbac.InvalidArgumentError{Field: "limits", Reason: "limits must be non-negative"}
	}
	if err := validPercent("warning_percent", params.WarningPercent); err != nil {
		return nil, err
	}
	if err := validPercent("alert_percent", params.AlertPercent); err != nil {
		return nil, err
	}
	if err := m.authorizeGroup(ctx, actorID, groupID); err != nil {
		return nil, err
	}

	b := &ResourceBinding{
		GroupID:         groupID,
		Mode:            params.Mode,
		DailyTokenLimit: params.DailyTokenLimit,
		MonthlyBudget:   params.MonthlyBudget,
		PriorityLevel:   params.PriorityLevel,
		WarningPercent:  params.WarningPercent,
		AlertPercent:    params.AlertPercent,
		Config:          params.Config,
	}
	if err := m.store.UpsertBinding(ctx, b); err != nil {
		return nil, &rbac.StorageUnavailableError{Op: "upsert binding", Err: err}
	}

	// The strategy may have changed; drop any cached instance so the next
	// selection rebuilds it.
	m.mu.Lock()
	delete(m.strategies, groupID)
	m.mu.Unlock()

	m.record(ctx, audit.Event{
		Type: audit.EventBindingConfigured, ActorID: actorID, GroupID: groupID,
		Details: map[string]any{"mode": string(params.Mode), "strategy": string(params.Config.Strategy)},
	})
	return b, nil
}

// Limits implements quota.LimitsSource. Group limits come from the resource
// binding; account limits from the directory. A group without a binding is
// unlimited.
func (m *Manager) Limits(ctx context.Context, subject quota.Subject) (quota.Limits, quota.Thresholds, error) {
	switch subject.Kind {
	case quota.SubjectGroup:
		b, err := m.store.Binding(ctx, subject.ID)
		if err == ErrBindingNotFound {
			return quota.Limits{}, quota.Thresholds{}, nil
		}
		if err != nil {
			return quota.Limits{}, quota.Thresholds{}, fmt.Errorf("failed to resolve group limits: %w", err)
		}
		return quota.Limits{DailyTokens: b.DailyTokenLimit, MonthlyBudget: b.MonthlyBudget},
			quota.Thresholds{WarningPercent: b.WarningPercent, AlertPercent: b.AlertPercent}, nil
	case quota.SubjectAccount:
		a, err := m.directory.Account(ctx, subject.ID)
		if err != nil {
			return quota.Limits{}, quota.Thresholds{}, fmt.Errorf("failed to resolve account limits: %w", err)
		}
		return quota.Limits{DailyTokens: a.DailyTokenQuota, MonthlyBudget: a.MonthlyBudget}, quota.Thresholds{}, nil
	default:
		return quota.Limits{}, quota.Thresholds{}, fmt.Errorf("unknown subject kind %q", subject.Kind)
	}
}

// authorizeGroup requires group management rights at the group's scope.
func (m *Manager) authorizeGroup(ctx context.Context, actorID, groupID int64) error {
	return m.authorize(ctx, actorID, groupID, rbac.PermGroupManage)
}

// authorize requires perm at the group's scope, failing closed when the
// group's enterprise cannot be resolved.
func (m *Manager) authorize(ctx context.Context, actorID, groupID int64, perm rbac.Permission) error {
	enterpriseID, err := m.store.GroupEnterprise(ctx, groupID)
	if err != nil {
		return &rbac.StorageUnavailableError{Op: "resolve group enterprise", Err: err}
	}
	scope := rbac.GroupScope(groupID, enterpriseID)
	if !m.evaluator.HasPermission(ctx, actorID, scope, perm) {
		m.record(ctx, audit.Event{
			Type: audit.EventAccessDenied, ActorID: actorID, GroupID: groupID,
			Details: map[string]any{"permission": string(perm)},
		})
		return &rbac.ForbiddenError{UserID: actorID, Permission: perm, Scope: scope}
	}
	return nil
}

// strategyFor returns the group's ranking strategy, caching the instance so
// round-robin keeps its cursor across selections.
func (m *Manager) strategyFor(groupID int64, name StrategyName) Strategy {
	want := NormalizeStrategy(name)
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.strategies[groupID]; ok && st.Name() == want {
		return st
	}
	st := NewStrategy(want)
	m.strategies[groupID] = st
	return st
}

func (m *Manager) selectionFailure(reason string, err error) error {
	if m.metrics != nil {
		m.metrics.SelectionFailuresTotal.WithLabelValues(reason).Inc()
	}
	return err
}

func (m *Manager) record(ctx context.Context, event audit.Event) {
	if m.audit != nil {
		m.audit.Record(ctx, event)
	}
}

func validPercent(field string, v int) error {
	if v < 0 || v > 100 {
		return &rbac.InvalidArgumentError{Field: field, Reason: "must be between 0 and 100, got " + strconv.Itoa(v)}
	}
	return nil
}
