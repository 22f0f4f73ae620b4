package coordinator_test

import (
	"errors"
	"testing"
	"time"

	"github.com/notifylab/fanout/pkg/config"
	"github.com/notifylab/fanout/pkg/coordinator"
	"github.com/notifylab/fanout/pkg/types"
)

func newTestCoordinator(t *testing.T, leaseMS int) *coordinator.Coordinator {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.LeaseDurationMS = leaseMS
	cfg.LeaseCheckMS = 10
	return coordinator.NewCoordinator(cfg)
}

func TestJoinGroupAssignsAllPartitions(t *testing.T) {
	cd := newTestCoordinator(t, 30000)
	if err := cd.RegisterGroup("events", "g1", 8); err != nil {
		t.Fatalf("register: %v", err)
	}

	assignments, generation, err := cd.JoinGroup("g1", "m1")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if generation != 1 {
		t.Fatalf("first join must bump generation to 1, got %d", generation)
	}
	if len(assignments) != 8 {
		t.Fatalf("single member must own all 8 partitions, got %v", assignments)
	}
}

func TestRebalanceRange_AssignsPartitionsEvenly(t *testing.T) {
	cd := newTestCoordinator(t, 30000)
	if err := cd.RegisterGroup("events", "g1", 10); err != nil {
		t.Fatalf("register: %v", err)
	}

	for _, m := range []string{"m1", "m2", "m3"} {
		if _, _, err := cd.JoinGroup("g1", m); err != nil {
			t.Fatalf("join %s: %v", m, err)
		}
	}

	assignments := cd.GetAssignments("g1")
	seen := make(map[int]string)
	for member, parts := range assignments {
		if len(parts) < 3 || len(parts) > 4 {
			t.Fatalf("member %s owns %d partitions, range split of 10/3 must give 3 or 4", member, len(parts))
		}
		for _, p := range parts {
			if prev, dup := seen[p]; dup {
				t.Fatalf("partition %d assigned to both %s and %s", p, prev, member)
			}
			seen[p] = member
		}
	}
	if len(seen) != 10 {
		t.Fatalf("only %d of 10 partitions assigned", len(seen))
	}
}

func TestCheckOwnershipRejectsStaleGeneration(t *testing.T) {
	cd := newTestCoordinator(t, 30000)
	if err := cd.RegisterGroup("events", "g1", 4); err != nil {
		t.Fatalf("register: %v", err)
	}

	assignments, generation, err := cd.JoinGroup("g1", "m1")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := cd.CheckOwnership("g1", "m1", assignments[0], generation); err != nil {
		t.Fatalf("fresh ownership check failed: %v", err)
	}

	// A second member joining bumps the generation.
	if _, _, err := cd.JoinGroup("g1", "m2"); err != nil {
		t.Fatalf("join m2: %v", err)
	}
	err = cd.CheckOwnership("g1", "m1", assignments[0], generation)
	if !errors.Is(err, types.ErrOwnershipLost) {
		t.Fatalf("stale generation must lose ownership, got %v", err)
	}
}

func TestCheckOwnershipRejectsUnassignedPartition(t *testing.T) {
	cd := newTestCoordinator(t, 30000)
	if err := cd.RegisterGroup("events", "g1", 4); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, _, err := cd.JoinGroup("g1", "m1"); err != nil {
		t.Fatalf("join m1: %v", err)
	}
	if _, _, err := cd.JoinGroup("g1", "m2"); err != nil {
		t.Fatalf("join m2: %v", err)
	}

	generation := cd.Generation("g1")
	for member, parts := range cd.GetAssignments("g1") {
		owned := make(map[int]bool)
		for _, p := range parts {
			owned[p] = true
		}
		for p := 0; p < 4; p++ {
			err := cd.CheckOwnership("g1", member, p, generation)
			if owned[p] && err != nil {
				t.Fatalf("member %s must own partition %d: %v", member, p, err)
			}
			if !owned[p] && !errors.Is(err, types.ErrOwnershipLost) {
				t.Fatalf("member %s must not own partition %d, got %v", member, p, err)
			}
		}
	}
}

func TestLapsedLeaseMovesPartitions(t *testing.T) {
	cd := newTestCoordinator(t, 30)
	cd.Start()
	defer cd.Stop()

	if err := cd.RegisterGroup("events", "g1", 4); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, _, err := cd.JoinGroup("g1", "m1"); err != nil {
		t.Fatalf("join m1: %v", err)
	}
	if _, _, err := cd.JoinGroup("g1", "m2"); err != nil {
		t.Fatalf("join m2: %v", err)
	}

	// m2 keeps renewing, m1 goes silent.
	deadline := time.Now().Add(2 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatal("m1 lease never expired")
		}
		if _, _, err := cd.RenewLease("g1", "m2"); err != nil {
			t.Fatalf("m2 renewal failed: %v", err)
		}
		if _, present := cd.GetAssignments("g1")["m1"]; !present {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, _, err := cd.RenewLease("g1", "m1"); !errors.Is(err, types.ErrOwnershipLost) {
		t.Fatalf("expired member renewing must lose ownership, got %v", err)
	}
	if got := cd.GetAssignments("g1")["m2"]; len(got) != 4 {
		t.Fatalf("survivor must own all partitions, got %v", got)
	}
}

func TestRegisterGroupIdempotent(t *testing.T) {
	cd := newTestCoordinator(t, 30000)
	if err := cd.RegisterGroup("events", "g1", 4); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := cd.RegisterGroup("events", "g1", 4); err != nil {
		t.Fatalf("re-register for the same topic must succeed: %v", err)
	}
	if err := cd.RegisterGroup("other", "g1", 4); err == nil {
		t.Fatal("re-register for a different topic must fail")
	}
}

func TestDescribeGroupReportsMemberStates(t *testing.T) {
	cd := newTestCoordinator(t, 50)
	if err := cd.RegisterGroup("events", "g1", 4); err != nil {
		t.Fatalf("register: %v", err)
	}

	if members := cd.DescribeGroup("g1"); len(members) != 0 {
		t.Fatalf("empty group described %d members", len(members))
	}
	if members := cd.DescribeGroup("missing"); members != nil {
		t.Fatalf("unknown group must describe nil, got %v", members)
	}

	if _, _, err := cd.JoinGroup("g1", "m2"); err != nil {
		t.Fatalf("join m2: %v", err)
	}
	if _, _, err := cd.JoinGroup("g1", "m1"); err != nil {
		t.Fatalf("join m1: %v", err)
	}

	members := cd.DescribeGroup("g1")
	if len(members) != 2 {
		t.Fatalf("described %d members, want 2", len(members))
	}
	if members[0].ID != "m1" || members[1].ID != "m2" {
		t.Fatalf("members not sorted by id: %s, %s", members[0].ID, members[1].ID)
	}
	owned := 0
	for _, m := range members {
		if m.State != types.MemberStateActive {
			t.Fatalf("member %s state %s, want active", m.ID, m.State)
		}
		owned += len(m.OwnedPartitions)
	}
	if owned != 4 {
		t.Fatalf("members own %d partitions in total, want 4", owned)
	}

	// Without renewals the leases lapse and the snapshot reflects it.
	time.Sleep(80 * time.Millisecond)
	for _, m := range cd.DescribeGroup("g1") {
		if m.State != types.MemberStateExpired {
			t.Fatalf("member %s state %s after lease lapse, want expired", m.ID, m.State)
		}
	}
}
