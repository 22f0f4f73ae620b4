package controller

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/notifylab/fanout/pkg/fanout"
)

// handleTopK returns the ranked suggestions for a prefix, best first.
func (ch *CommandHandler) handleTopK(cmd string) string {
	args := parseKeyValueArgs(cmd[5:])

	prefix, ok := args["prefix"]
	if !ok || prefix == "" {
		return "ERROR: missing prefix parameter. Expected: TOPK prefix=<text> [limit=<N>]"
	}

	limit := ch.Config.TopKMax
	if limitStr, ok := args["limit"]; ok {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n <= 0 {
			return "ERROR: limit must be a positive integer"
		}
		limit = n
	}

	entries := ch.Store.TopK(fanout.Normalize(prefix), limit)
	if len(entries) == 0 {
		return "(no suggestions)"
	}

	var sb strings.Builder
	for i, e := range entries {
		fmt.Fprintf(&sb, "%d. %s score=%.2f\n", i+1, e.Member, e.Score)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (ch *CommandHandler) handleStats() string {
	stats := fmt.Sprintf("topics=%d sessions=%d pendingDeliveries=%d pushQueued=%d",
		len(ch.TopicManager.ListTopics()), ch.Registry.Count(), ch.Tracker.Pending(), ch.Pusher.Len())
	if ch.Coordinator == nil {
		return stats
	}

	members := ch.Coordinator.DescribeGroup(ch.GroupName)
	var sb strings.Builder
	sb.WriteString(stats)
	fmt.Fprintf(&sb, " members=%d", len(members))
	for _, m := range members {
		fmt.Fprintf(&sb, "\n%s state=%s partitions=%v", m.ID, m.State, m.OwnedPartitions)
	}
	return sb.String()
}
