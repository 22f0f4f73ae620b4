package coordinator

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/notifylab/fanout/pkg/config"
	"github.com/notifylab/fanout/pkg/types"
	"github.com/notifylab/fanout/util"
)

// Coordinator manages consumer groups, membership, partition leases, and
// assignment. A member that stops renewing its lease is expired and its
// partitions move to the remaining members.
type Coordinator struct {
	groups   map[string]*GroupMetadata
	mu       sync.RWMutex
	cfg      *config.Config
	stopCh   chan struct{}
	stopOnce sync.Once
}

// GroupMetadata holds metadata for a single consumer group.
type GroupMetadata struct {
	TopicName     string
	Members       map[string]*MemberMetadata
	Generation    int // bumped on every rebalance; stale generations lose ownership
	Partitions    []int
	LastRebalance time.Time
}

// MemberMetadata holds state for a single consumer instance.
type MemberMetadata struct {
	ID          string
	LeaseExpiry time.Time
	Assignments []int
}

// NewCoordinator creates a new Coordinator instance.
func NewCoordinator(cfg *config.Config) *Coordinator {
	return &Coordinator{
		groups: make(map[string]*GroupMetadata),
		cfg:    cfg,
		stopCh: make(chan struct{}),
	}
}

// Start launches the background lease monitor.
func (c *Coordinator) Start() {
	go c.monitorLeases()
}

// Stop shuts the lease monitor down.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

func (c *Coordinator) leaseDuration() time.Duration {
	return time.Duration(c.cfg.LeaseDurationMS) * time.Millisecond
}

// RegisterGroup creates a new consumer group for a topic.
func (c *Coordinator) RegisterGroup(topicName, groupName string, partitionCount int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, exists := c.groups[groupName]; exists {
		if existing.TopicName != topicName {
			return fmt.Errorf("group '%s' already registered for topic '%s'",
				groupName, existing.TopicName)
		}
		util.Debug("group '%s' already registered for topic '%s'", groupName, topicName)
		return nil
	}

	partitions := make([]int, partitionCount)
	for i := 0; i < partitionCount; i++ {
		partitions[i] = i
	}

	c.groups[groupName] = &GroupMetadata{
		TopicName:  topicName,
		Members:    make(map[string]*MemberMetadata),
		Partitions: partitions,
	}
	return nil
}

// JoinGroup registers a new member, grants it a lease, and rebalances.
// It returns the member's assignments and the new group generation.
func (c *Coordinator) JoinGroup(groupName, memberID string) ([]int, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	group := c.groups[groupName]
	if group == nil {
		util.Error("❌ member '%s' failed to join: group '%s' not found", memberID, groupName)
		return nil, 0, fmt.Errorf("group not found")
	}

	util.Info("🚀 member '%s' joining group '%s' (current members: %d)",
		memberID, groupName, len(group.Members))

	group.Members[memberID] = &MemberMetadata{
		ID:          memberID,
		LeaseExpiry: time.Now().Add(c.leaseDuration()),
	}

	c.rebalanceRange(groupName)
	assignments := append([]int(nil), group.Members[memberID].Assignments...)

	util.Info("✅ member '%s' joined group '%s' at generation %d", memberID, groupName, group.Generation)
	return assignments, group.Generation, nil
}

// LeaveGroup unregisters a member gracefully and rebalances.
func (c *Coordinator) LeaveGroup(groupName, memberID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	group := c.groups[groupName]
	if group == nil {
		return fmt.Errorf("group not found")
	}
	if _, ok := group.Members[memberID]; !ok {
		return fmt.Errorf("member not found")
	}

	util.Info("👋 member '%s' leaving group '%s' (current members: %d)",
		memberID, groupName, len(group.Members))

	delete(group.Members, memberID)
	c.rebalanceRange(groupName)
	return nil
}

// RenewLease extends a member's lease. It must be called before the lease
// expires or the member's partitions are reassigned.
func (c *Coordinator) RenewLease(groupName, memberID string) (time.Time, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	group := c.groups[groupName]
	if group == nil {
		return time.Time{}, 0, fmt.Errorf("group not found")
	}
	member := group.Members[memberID]
	if member == nil {
		// The lease monitor already expired this member.
		return time.Time{}, 0, types.ErrOwnershipLost
	}

	member.LeaseExpiry = time.Now().Add(c.leaseDuration())
	util.Debug("💓 member '%s' in group '%s' renewed lease until %v",
		memberID, groupName, member.LeaseExpiry)
	return member.LeaseExpiry, group.Generation, nil
}

// CheckOwnership verifies that a member still owns a partition at the given
// generation. Workers call this before committing side effects; a failure
// means another owner may already be processing the partition.
func (c *Coordinator) CheckOwnership(groupName, memberID string, partition, generation int) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	group := c.groups[groupName]
	if group == nil {
		return types.ErrOwnershipLost
	}
	if group.Generation != generation {
		return fmt.Errorf("generation %d superseded by %d: %w",
			generation, group.Generation, types.ErrOwnershipLost)
	}

	member := group.Members[memberID]
	if member == nil || time.Now().After(member.LeaseExpiry) {
		return types.ErrOwnershipLost
	}

	for _, p := range member.Assignments {
		if p == partition {
			return nil
		}
	}
	return fmt.Errorf("partition %d not assigned to '%s': %w", partition, memberID, types.ErrOwnershipLost)
}

// DescribeGroup returns a snapshot of the group's membership, sorted by
// member id. State is derived from the lease: a member past its expiry is
// reported expired until the monitor reassigns its partitions.
func (c *Coordinator) DescribeGroup(groupName string) []types.GroupMember {
	c.mu.RLock()
	defer c.mu.RUnlock()

	group := c.groups[groupName]
	if group == nil {
		return nil
	}

	now := time.Now()
	members := make([]types.GroupMember, 0, len(group.Members))
	for _, m := range group.Members {
		state := types.MemberStateActive
		if now.After(m.LeaseExpiry) {
			state = types.MemberStateExpired
		}
		members = append(members, types.GroupMember{
			ID:              m.ID,
			State:           state,
			OwnedPartitions: append([]int(nil), m.Assignments...),
			LeaseExpiry:     m.LeaseExpiry,
		})
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	return members
}

// GetAssignments returns the current partition assignments for each member.
func (c *Coordinator) GetAssignments(groupName string) map[string][]int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	group := c.groups[groupName]
	if group == nil {
		return map[string][]int{}
	}

	result := make(map[string][]int)
	for id, member := range group.Members {
		result[id] = append([]int(nil), member.Assignments...)
	}
	return result
}

// Generation returns the current generation of a group.
func (c *Coordinator) Generation(groupName string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if group := c.groups[groupName]; group != nil {
		return group.Generation
	}
	return 0
}

// Rebalance forces a rebalance for a consumer group.
func (c *Coordinator) Rebalance(groupName string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rebalanceRange(groupName)
}
