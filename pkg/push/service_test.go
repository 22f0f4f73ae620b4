package push_test

import (
	"fmt"
	"testing"

	"github.com/notifylab/fanout/pkg/push"
)

func TestEnqueueAndDrain(t *testing.T) {
	q := push.NewQueue(10)

	for i := 0; i < 3; i++ {
		ok := q.Enqueue(push.Notification{
			RecipientID: fmt.Sprintf("r%d", i),
			EventID:     "evt-1",
			Summary:     "hi",
		})
		if !ok {
			t.Fatalf("enqueue %d rejected below the limit", i)
		}
	}
	if q.Len() != 3 {
		t.Fatalf("len %d, want 3", q.Len())
	}

	first := q.Drain(2)
	if len(first) != 2 || first[0].RecipientID != "r0" {
		t.Fatalf("drain returned %+v", first)
	}
	rest := q.Drain(0)
	if len(rest) != 1 || rest[0].RecipientID != "r2" {
		t.Fatalf("second drain returned %+v", rest)
	}
	if q.Len() != 0 {
		t.Fatalf("queue not empty after draining: %d", q.Len())
	}
}

func TestEnqueueRejectsWhenFull(t *testing.T) {
	q := push.NewQueue(1)

	if !q.Enqueue(push.Notification{RecipientID: "r1"}) {
		t.Fatal("first enqueue must succeed")
	}
	if q.Enqueue(push.Notification{RecipientID: "r2"}) {
		t.Fatal("enqueue past the limit must be rejected")
	}
	if q.Len() != 1 {
		t.Fatalf("len %d, want 1", q.Len())
	}
}
