package types

const (
	IndexEntrySize = 16 // offset(8) + position(8)
)

type IndexEntry struct {
	Offset   uint64
	Position uint64
}
