package types

// EventKind selects the processing path for an event.
type EventKind byte

const (
	// EventKindMessage is a channel message fanned out to live recipients.
	EventKindMessage EventKind = iota
	// EventKindRanking is a completed search query feeding ranked suggestions.
	EventKindRanking
)

// Event is a single immutable record in the log.
type Event struct {
	ID         string    // globally unique, producer-assigned
	Kind       EventKind // processing path
	Key        string    // partition routing key (channel id or query shard key)
	Payload    []byte
	ProducedAt uint64 // monotonic logical timestamp assigned at intake
	Offset     uint64 // position within its partition, set on append
}

func (e Event) String() string {
	return string(e.Payload)
}

// RankingUpdate is one score mutation derived from a ranking event.
// Duplicate application of the same EventID must not double-count,
// which the dedup filter guarantees upstream.
type RankingUpdate struct {
	Key       string // normalized prefix
	Member    string // suggestion text
	Increment float64
	EventID   string
}
