package types

// StorageHandler is the durable append-log surface behind one partition.
type StorageHandler interface {
	ReadEvents(offset uint64, max int) ([]Event, error)
	GetLatestOffset() uint64
	GetSegmentPath(segment int) string

	AppendEvent(topic string, partition int, ev *Event) (uint64, error)

	Flush()
	Close() error
}
