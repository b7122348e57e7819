package binding

import (
	"sort"
	"sync"

	"github.com/aicarpool/carpool/pkg/accounts"
)

// StrategyName identifies a ranking strategy.
type StrategyName string

const (
	StrategyPriority         StrategyName = "priority"
	StrategyRoundRobin       StrategyName = "round_robin"
	StrategyLeastConnections StrategyName = "least_connections"
	StrategyResponseTime     StrategyName = "response_time"
)

// Strategy orders the candidate accounts of a group from most to least
// preferred. Strategies are pure orderings except round-robin, which keeps a
// rotation cursor per group.
type Strategy interface {
	Name() StrategyName
	Rank(groupID int64, candidates []accounts.Account) []accounts.Account
}

// NewStrategy returns the strategy for name, defaulting to priority for
// unknown or empty names.
func NewStrategy(name StrategyName) Strategy {
	switch NormalizeStrategy(name) {
	case StrategyRoundRobin:
		return &roundRobinStrategy{}
	case StrategyLeastConnections:
		return leastConnectionsStrategy{}
	case StrategyResponseTime:
		return responseTimeStrategy{}
	default:
		return priorityStrategy{}
	}
}

// NormalizeStrategy maps unknown or empty names to the priority default, so
// the name can be compared against Strategy.Name without building an
// instance.
func NormalizeStrategy(name StrategyName) StrategyName {
	switch name {
	case StrategyRoundRobin, StrategyLeastConnections, StrategyResponseTime:
		return name
	default:
		return StrategyPriority
	}
}

// ValidStrategy reports whether name is a known strategy.
func ValidStrategy(name StrategyName) bool {
	switch name {
	case StrategyPriority, StrategyRoundRobin, StrategyLeastConnections, StrategyResponseTime, "":
		return true
	}
	return false
}

type priorityStrategy struct{}

func (priorityStrategy) Name() StrategyName { return StrategyPriority }

func (priorityStrategy) Rank(_ int64, candidates []accounts.Account) []accounts.Account {
	out := cloneAccounts(candidates)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

type leastConnectionsStrategy struct{}

func (leastConnectionsStrategy) Name() StrategyName { return StrategyLeastConnections }

func (leastConnectionsStrategy) Rank(_ int64, candidates []accounts.Account) []accounts.Account {
	out := cloneAccounts(candidates)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].ActiveConnections != out[j].ActiveConnections {
			return out[i].ActiveConnections < out[j].ActiveConnections
		}
		return out[i].ID < out[j].ID
	})
	return out
}

type responseTimeStrategy struct{}

func (responseTimeStrategy) Name() StrategyName { return StrategyResponseTime }

func (responseTimeStrategy) Rank(_ int64, candidates []accounts.Account) []accounts.Account {
	out := cloneAccounts(candidates)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].AvgResponseTimeMs != out[j].AvgResponseTimeMs {
			return out[i].AvgResponseTimeMs < out[j].AvgResponseTimeMs
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// roundRobinStrategy rotates through the priority ordering, one cursor per
// group.
type roundRobinStrategy struct {
	mu      sync.Mutex
	cursors map[int64]int
}

func (s *roundRobinStrategy) Name() StrategyName { return StrategyRoundRobin }

func (s *roundRobinStrategy) Rank(groupID int64, candidates []accounts.Account) []accounts.Account {
	base := priorityStrategy{}.Rank(groupID, candidates)
	if len(base) == 0 {
		return base
	}

	s.mu.Lock()
	if s.cursors == nil {
		s.cursors = make(map[int64]int)
	}
	offset := s.cursors[groupID] % len(base)
	s.cursors[groupID]++
	s.mu.Unlock()

	out := make([]accounts.Account, 0, len(base))
	out = append(out, base[offset:]...)
	out = append(out, base[:offset]...)
	return out
}

func cloneAccounts(in []accounts.Account) []accounts.Account {
	out := make([]accounts.Account, len(in))
	copy(out, in)
	return out
}
