package coordinator

import (
	"sort"
	"time"

	"github.com/notifylab/fanout/pkg/metrics"
)

// rebalanceRange reassigns partitions over the sorted member ids, range
// style, and bumps the group generation. Caller must hold c.mu.
func (c *Coordinator) rebalanceRange(groupName string) {
	group := c.groups[groupName]
	if group == nil {
		return
	}

	group.Generation++
	group.LastRebalance = time.Now()
	metrics.Rebalances.Inc()

	members := make([]string, 0, len(group.Members))
	for id := range group.Members {
		members = append(members, id)
	}
	sort.Strings(members)

	if len(members) == 0 {
		return
	}

	partitionsPerMember := len(group.Partitions) / len(members)
	remainder := len(group.Partitions) % len(members)

	partitionIdx := 0
	for i, memberID := range members {
		count := partitionsPerMember
		if i < remainder {
			count++
		}
		group.Members[memberID].Assignments = append([]int(nil),
			group.Partitions[partitionIdx:partitionIdx+count]...)
		partitionIdx += count
	}
}
