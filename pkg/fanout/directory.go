package fanout

import "sync"

// Directory records which recipients belong to which channel. The live
// subset of a channel comes from the session registry; the directory is
// what lets the offline branch know who was missed.
type Directory struct {
	mu       sync.RWMutex
	channels map[string]map[string]struct{} // channel -> recipients
}

func NewDirectory() *Directory {
	return &Directory{channels: make(map[string]map[string]struct{})}
}

func (d *Directory) Subscribe(channelID, recipientID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.channels[channelID]; !ok {
		d.channels[channelID] = make(map[string]struct{})
	}
	d.channels[channelID][recipientID] = struct{}{}
}

func (d *Directory) Unsubscribe(channelID, recipientID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if recipients, ok := d.channels[channelID]; ok {
		delete(recipients, recipientID)
		if len(recipients) == 0 {
			delete(d.channels, channelID)
		}
	}
}

// Members returns every recipient subscribed to a channel.
func (d *Directory) Members(channelID string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	recipients := d.channels[channelID]
	out := make([]string, 0, len(recipients))
	for r := range recipients {
		out = append(out, r)
	}
	return out
}
