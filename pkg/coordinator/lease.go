package coordinator

import (
	"time"

	"github.com/notifylab/fanout/util"
)

// monitorLeases expires members whose lease lapsed and reassigns their
// partitions. This is what lets processing resume elsewhere after a crash.
func (c *Coordinator) monitorLeases() {
	interval := time.Duration(c.cfg.LeaseCheckMS) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.expireLapsed()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Coordinator) expireLapsed() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for groupName, group := range c.groups {
		expired := false
		for memberID, member := range group.Members {
			if now.After(member.LeaseExpiry) {
				util.Warn("⏱️ member '%s' in group '%s' lease expired at %v; reassigning partitions",
					memberID, groupName, member.LeaseExpiry)
				delete(group.Members, memberID)
				expired = true
			}
		}
		if expired {
			c.rebalanceRange(groupName)
		}
	}
}
