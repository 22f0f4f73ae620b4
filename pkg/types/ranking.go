package types

// RankedEntry is one member of a bounded top-K set for a ranking key.
type RankedEntry struct {
	Key    string
	Member string
	Score  float64
	Seq    uint64 // recency sequence, higher = more recently updated
}
