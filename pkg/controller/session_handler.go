package controller

import (
	"errors"
	"fmt"
	"net"

	"github.com/notifylab/fanout/pkg/session"
	"github.com/notifylab/fanout/pkg/types"
)

// HandleSubscribe registers the client's connection as the live session for
// a recipient and subscribes the recipient to the channel. The server keeps
// the connection open for pushed payloads afterwards.
func (ch *CommandHandler) HandleSubscribe(conn net.Conn, cmd string) string {
	args := parseKeyValueArgs(cmd[10:])

	channelID, ok := args["channel"]
	if !ok || channelID == "" {
		return "ERROR: missing channel parameter. Expected: SUBSCRIBE channel=<id> recipient=<id>"
	}
	recipientID, ok := args["recipient"]
	if !ok || recipientID == "" {
		return "ERROR: missing recipient parameter. Expected: SUBSCRIBE channel=<id> recipient=<id>"
	}

	s := session.NewSession(conn, channelID, recipientID, "local")
	if err := ch.Registry.Register(s); err != nil {
		return fmt.Sprintf("ERROR: %v", err)
	}
	ch.Directory.Subscribe(channelID, recipientID)
	return fmt.Sprintf("✅ recipient '%s' subscribed to channel '%s'", recipientID, channelID)
}

func (ch *CommandHandler) handleUnsubscribe(cmd string) string {
	args := parseKeyValueArgs(cmd[12:])

	channelID, ok := args["channel"]
	if !ok || channelID == "" {
		return "ERROR: missing channel parameter. Expected: UNSUBSCRIBE channel=<id> recipient=<id>"
	}
	recipientID, ok := args["recipient"]
	if !ok || recipientID == "" {
		return "ERROR: missing recipient parameter. Expected: UNSUBSCRIBE channel=<id> recipient=<id>"
	}

	ch.Directory.Unsubscribe(channelID, recipientID)
	ch.Registry.Unregister(recipientID)
	return fmt.Sprintf("🗑️ recipient '%s' unsubscribed from channel '%s'", recipientID, channelID)
}

func (ch *CommandHandler) handleHeartbeat(cmd string) string {
	args := parseKeyValueArgs(cmd[10:])

	recipientID, ok := args["recipient"]
	if !ok || recipientID == "" {
		return "ERROR: missing recipient parameter. Expected: HEARTBEAT recipient=<id>"
	}
	if !ch.Registry.Heartbeat(recipientID) {
		return fmt.Sprintf("ERROR: no session for recipient '%s'", recipientID)
	}
	return "💓 OK"
}

// handleAck applies a recipient acknowledgment to the delivery tracker.
func (ch *CommandHandler) handleAck(cmd string) string {
	args := parseKeyValueArgs(cmd[4:])

	eventID, ok := args["event"]
	if !ok || eventID == "" {
		return "ERROR: missing event parameter. Expected: ACK event=<id> recipient=<id> status=<delivered|read>"
	}
	recipientID, ok := args["recipient"]
	if !ok || recipientID == "" {
		return "ERROR: missing recipient parameter. Expected: ACK event=<id> recipient=<id> status=<delivered|read>"
	}

	var state types.DeliveryState
	switch args["status"] {
	case "delivered":
		state = types.DeliveryDelivered
	case "read":
		state = types.DeliveryRead
	default:
		return "ERROR: status must be delivered or read"
	}

	if err := ch.Tracker.Ack(eventID, recipientID, state); err != nil && !errors.Is(err, types.ErrDuplicate) {
		return fmt.Sprintf("ERROR: %v", err)
	}
	rec, _ := ch.Tracker.Get(eventID, recipientID)
	return fmt.Sprintf("✅ event '%s' for recipient '%s' is now %s", eventID, recipientID, rec.State)
}
