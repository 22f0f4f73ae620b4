package fanout

import (
	"strings"

	"github.com/notifylab/fanout/pkg/types"
	"github.com/notifylab/fanout/util"
)

// SessionRegistry is the collaborator that knows where recipients' live
// connections are held.
type SessionRegistry interface {
	Lookup(channelID string) ([]types.SessionLocation, error)
}

// Resolver computes the targets of an event: live recipients for a message
// event, ranking keys for a search-completion event.
type Resolver struct {
	registry     SessionRegistry
	directory    *Directory
	maxPrefixLen int
}

func NewResolver(registry SessionRegistry, directory *Directory, maxPrefixLen int) *Resolver {
	return &Resolver{
		registry:     registry,
		directory:    directory,
		maxPrefixLen: maxPrefixLen,
	}
}

// ResolveRecipients splits a channel's subscribers into the live session
// locations and the recipients with no session. A registry failure degrades
// to the offline branch: every subscriber is deferred to push handoff,
// never blocked or dropped.
func (r *Resolver) ResolveRecipients(channelID string) ([]types.SessionLocation, []string) {
	members := r.directory.Members(channelID)

	locations, err := r.registry.Lookup(channelID)
	if err != nil {
		util.Warn("⚠️ session registry unreachable for channel '%s', taking offline branch: %v",
			channelID, err)
		return nil, members
	}

	live := make(map[string]struct{}, len(locations))
	for _, loc := range locations {
		live[loc.RecipientID] = struct{}{}
	}
	offline := make([]string, 0)
	for _, m := range members {
		if _, ok := live[m]; !ok {
			offline = append(offline, m)
		}
	}
	return locations, offline
}

// ResolveKeys expands a completed query into the ranking keys to update:
// every prefix of the normalized query up to the configured maximum, plus
// the same expansion anchored at each later token boundary. The expansion
// is a pure function of the query so replay produces identical key sets.
func (r *Resolver) ResolveKeys(query string) []string {
	normalized := Normalize(query)
	if normalized == "" {
		return nil
	}

	seen := make(map[string]struct{})
	keys := make([]string, 0)

	add := func(s string) {
		runes := []rune(s)
		limit := len(runes)
		if limit > r.maxPrefixLen {
			limit = r.maxPrefixLen
		}
		for i := 1; i <= limit; i++ {
			prefix := string(runes[:i])
			if _, dup := seen[prefix]; dup {
				continue
			}
			seen[prefix] = struct{}{}
			keys = append(keys, prefix)
		}
	}

	add(normalized)

	tokens := strings.Split(normalized, " ")
	for i := 1; i < len(tokens); i++ {
		add(strings.Join(tokens[i:], " "))
	}
	return keys
}

// Normalize lower-cases, trims, and collapses internal whitespace. Ranking
// keys and suggestion members are always normalized before use.
func Normalize(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}
