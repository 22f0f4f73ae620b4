package types

import "time"

type MemberState int

const (
	MemberStateJoining MemberState = iota
	MemberStateActive
	MemberStateRebalancing
	MemberStateLeaving
	MemberStateExpired
)

func (s MemberState) String() string {
	switch s {
	case MemberStateJoining:
		return "joining"
	case MemberStateActive:
		return "active"
	case MemberStateRebalancing:
		return "rebalancing"
	case MemberStateLeaving:
		return "leaving"
	case MemberStateExpired:
		return "expired"
	}
	return "unknown"
}

// GroupMember is one consumer instance in a group. Partition ownership is a
// time-bounded lease: the member must renew before LeaseExpiry or its
// partitions are reassigned.
type GroupMember struct {
	ID              string
	State           MemberState
	OwnedPartitions []int
	LeaseExpiry     time.Time
}
