package controller

import (
	"strings"

	"github.com/notifylab/fanout/pkg/config"
	"github.com/notifylab/fanout/pkg/coordinator"
	"github.com/notifylab/fanout/pkg/delivery"
	"github.com/notifylab/fanout/pkg/fanout"
	"github.com/notifylab/fanout/pkg/push"
	"github.com/notifylab/fanout/pkg/ranking"
	"github.com/notifylab/fanout/pkg/session"
	"github.com/notifylab/fanout/pkg/topic"
	"github.com/notifylab/fanout/util"
)

// CommandHandler parses client commands and routes them to the engine's
// components. Every command is a single line of key=value arguments.
type CommandHandler struct {
	TopicManager *topic.TopicManager
	Tracker      *delivery.Tracker
	Store        *ranking.Store
	Registry     *session.Registry
	Directory    *fanout.Directory
	Pusher       *push.Queue
	Coordinator  *coordinator.Coordinator
	Config       *config.Config

	TopicName string
	GroupName string
}

func NewCommandHandler(tm *topic.TopicManager, tracker *delivery.Tracker, store *ranking.Store,
	registry *session.Registry, directory *fanout.Directory, pusher *push.Queue,
	cd *coordinator.Coordinator, cfg *config.Config, topicName, groupName string) *CommandHandler {
	return &CommandHandler{
		TopicManager: tm,
		Tracker:      tracker,
		Store:        store,
		Registry:     registry,
		Directory:    directory,
		Pusher:       pusher,
		Coordinator:  cd,
		Config:       cfg,
		TopicName:    topicName,
		GroupName:    groupName,
	}
}

func (ch *CommandHandler) logCommandResult(cmd, response string) {
	status := "SUCCESS"
	if strings.HasPrefix(response, "ERROR:") {
		status = "FAILURE"
	}
	cleanResponse := strings.ReplaceAll(response, "\n", " ")
	util.Debug("status: '%s', command: '%s' to Response '%s'", status, cmd, cleanResponse)
}

// HandleCommand processes one command line and returns the response to send
// back. Commands that need the connection itself (SUBSCRIBE) are dispatched
// by the server before reaching here.
func (ch *CommandHandler) HandleCommand(rawCmd string) string {
	cmd := strings.TrimSpace(rawCmd)

	if cmd == "" {
		resp := "ERROR: empty command"
		ch.logCommandResult(rawCmd, resp)
		return resp
	}

	var resp string
	switch {
	case strings.EqualFold(cmd, "HELP"):
		resp = ch.handleHelp()
	case strings.HasPrefix(strings.ToUpper(cmd), "PUBLISH "):
		resp = ch.handlePublish(cmd)
	case strings.HasPrefix(strings.ToUpper(cmd), "SEARCH "):
		resp = ch.handleSearch(cmd)
	case strings.HasPrefix(strings.ToUpper(cmd), "ACK "):
		resp = ch.handleAck(cmd)
	case strings.HasPrefix(strings.ToUpper(cmd), "TOPK "):
		resp = ch.handleTopK(cmd)
	case strings.HasPrefix(strings.ToUpper(cmd), "HEARTBEAT "):
		resp = ch.handleHeartbeat(cmd)
	case strings.HasPrefix(strings.ToUpper(cmd), "UNSUBSCRIBE "):
		resp = ch.handleUnsubscribe(cmd)
	case strings.EqualFold(cmd, "STATS"):
		resp = ch.handleStats()
	default:
		resp = "ERROR: unknown command. Type HELP for available commands"
	}

	ch.logCommandResult(rawCmd, resp)
	return resp
}

func parseKeyValueArgs(argsStr string) map[string]string {
	result := make(map[string]string)

	// message= and query= swallow the rest of the line, spaces included
	for _, tail := range []string{"message=", "query="} {
		idx := strings.Index(argsStr, tail)
		if idx == -1 {
			continue
		}
		parts := strings.Fields(argsStr[:idx])
		for _, part := range parts {
			kv := strings.SplitN(part, "=", 2)
			if len(kv) == 2 {
				result[kv[0]] = kv[1]
			}
		}
		result[strings.TrimSuffix(tail, "=")] = strings.TrimSpace(argsStr[idx+len(tail):])
		return result
	}

	parts := strings.Fields(argsStr)
	for _, part := range parts {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) == 2 {
			result[kv[0]] = kv[1]
		}
	}
	return result
}

func (ch *CommandHandler) handleHelp() string {
	return `Available commands:
PUBLISH channel=<id> message=<text> - append a message event for a channel
SEARCH query=<text> - record a completed search query
ACK event=<id> recipient=<id> status=<delivered|read> - acknowledge a delivery
TOPK prefix=<text> [limit=<N>] - ranked suggestions for a prefix
SUBSCRIBE channel=<id> recipient=<id> - register this connection for a channel
UNSUBSCRIBE channel=<id> recipient=<id> - drop a channel subscription
HEARTBEAT recipient=<id> - keep a session alive
STATS - engine statistics
HELP - show this help
EXIT - close the connection`
}
