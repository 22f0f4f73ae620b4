package controller

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/notifylab/fanout/pkg/fanout"
	"github.com/notifylab/fanout/pkg/types"
)

// handlePublish appends one message event. The channel is the partition key,
// so all events for a channel land on the same partition in intake order.
func (ch *CommandHandler) handlePublish(cmd string) string {
	args := parseKeyValueArgs(cmd[8:])

	channelID, ok := args["channel"]
	if !ok || channelID == "" {
		return "ERROR: missing channel parameter. Expected: PUBLISH channel=<id> message=<text>"
	}
	message, ok := args["message"]
	if !ok || message == "" {
		return "ERROR: missing message parameter. Expected: PUBLISH channel=<id> message=<text>"
	}

	ev := types.Event{
		ID:      uuid.NewString(),
		Kind:    types.EventKindMessage,
		Key:     channelID,
		Payload: []byte(message),
	}
	partition, offset, err := ch.TopicManager.Append(ch.TopicName, ev)
	if err != nil {
		return ch.appendError(err)
	}
	return fmt.Sprintf("✅ event '%s' appended to partition %d at offset %d", ev.ID, partition, offset)
}

// handleSearch appends one search-completion event. The normalized query is
// the partition key so repeats of the same query stay ordered.
func (ch *CommandHandler) handleSearch(cmd string) string {
	args := parseKeyValueArgs(cmd[7:])

	query, ok := args["query"]
	if !ok || fanout.Normalize(query) == "" {
		return "ERROR: missing query parameter. Expected: SEARCH query=<text>"
	}

	ev := types.Event{
		ID:      uuid.NewString(),
		Kind:    types.EventKindRanking,
		Key:     fanout.Normalize(query),
		Payload: []byte(query),
	}
	partition, offset, err := ch.TopicManager.Append(ch.TopicName, ev)
	if err != nil {
		return ch.appendError(err)
	}
	return fmt.Sprintf("✅ query recorded as event '%s' on partition %d at offset %d", ev.ID, partition, offset)
}

func (ch *CommandHandler) appendError(err error) string {
	switch {
	case errors.Is(err, types.ErrInvalidInput):
		return fmt.Sprintf("ERROR: rejected: %v", err)
	case errors.Is(err, types.ErrUnavailable):
		return fmt.Sprintf("ERROR: unavailable: %v", err)
	default:
		return fmt.Sprintf("ERROR: %v", err)
	}
}
