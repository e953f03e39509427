// Package receipts records, per ordered user pair, the last message one side
// has seen from the other.
package receipts

import (
	"context"
	"fmt"

	"github.com/eldtechnologies/chatrelay/internal/store"
)

// NoneSeen is the receipt value of a viewer that has not seen any message
// from the peer yet.
const NoneSeen = "none"

// receiptKey returns the hash holding every receipt of a viewer.
func receiptKey(viewer string) string {
	return fmt.Sprintf("lastSeenMessage:%s", viewer)
}

// peerField returns the hash field for the viewer's receipt of a peer.
func peerField(peer string) string {
	return fmt.Sprintf("chat:%s", peer)
}

// Tracker reads and writes read receipts.
type Tracker struct {
	kv store.Substrate
}

// NewTracker creates a Tracker over the given substrate.
func NewTracker(kv store.Substrate) *Tracker {
	return &Tracker{kv: kv}
}

// MarkSeen sets the viewer's last-seen pointer for a peer. The previous
// value is overwritten unconditionally.
func (t *Tracker) MarkSeen(ctx context.Context, viewer, peer, messageID string) error {
	return t.kv.HSet(ctx, receiptKey(viewer), peerField(peer), messageID)
}

// LastSeenBy returns the last message the viewer has seen from the peer.
func (t *Tracker) LastSeenBy(ctx context.Context, viewer, peer string) (string, bool, error) {
	return t.kv.HGet(ctx, receiptKey(viewer), peerField(peer))
}

// InitIfAbsent gives the viewer a NoneSeen receipt for the peer when none
// exists, and returns the current receipt either way.
func (t *Tracker) InitIfAbsent(ctx context.Context, viewer, peer string) (string, error) {
	set, err := t.kv.HSetNX(ctx, receiptKey(viewer), peerField(peer), NoneSeen)
	if err != nil {
		return "", err
	}
	if set {
		return NoneSeen, nil
	}

	id, _, err := t.LastSeenBy(ctx, viewer, peer)
	return id, err
}
