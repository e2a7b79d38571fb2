// Copyright (C) 2025 efchat.net <tj@efchat.net>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package endpoint

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/efchatnet/relaygate/backend/models"
	"github.com/efchatnet/relaygate/backend/parcels"
	"github.com/efchatnet/relaygate/backend/storage"
)

// Delivery is one parcel handed to a collecting session, keyed by a
// session-local correlation id the client echoes back in its ack.
type Delivery struct {
	LocalID string
	Parcel  []byte
}

// CollectParcels tracks one collection session: which parcels were already
// pushed and which still await an ack. Instances are not shared between
// sessions.
type CollectParcels struct {
	index       storage.ParcelStore
	service     *parcels.Service
	collections storage.CollectionStore

	mu      sync.Mutex
	sent    map[string]bool                  // parcel key -> pushed this session
	pending map[string]models.StoredParcel   // local id -> awaiting ack
}

func NewCollectParcels(index storage.ParcelStore, service *parcels.Service, collections storage.CollectionStore) *CollectParcels {
	return &CollectParcels{
		index:       index,
		service:     service,
		collections: collections,
		sent:        make(map[string]bool),
		pending:     make(map[string]models.StoredParcel),
	}
}

// NextParcels returns the parcels stored for the given addresses that were
// not yet pushed in this session, in storage-listing order. Expired
// parcels are skipped.
func (c *CollectParcels) NextParcels(ctx context.Context, addresses []models.MessageAddress) ([]Delivery, error) {
	stored, err := c.index.ListForRecipients(ctx, addresses, models.RecipientLocationLocalEndpoint)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var deliveries []Delivery
	for _, parcel := range stored {
		if parcel.Expired(now) {
			continue
		}

		c.mu.Lock()
		seen := c.sent[parcel.Key()]
		c.mu.Unlock()
		if seen {
			continue
		}

		raw, err := c.service.Read(parcel)
		if err != nil {
			return nil, err
		}

		localID := uuid.NewString()
		c.mu.Lock()
		c.sent[parcel.Key()] = true
		c.pending[localID] = parcel
		c.mu.Unlock()

		deliveries = append(deliveries, Delivery{LocalID: localID, Parcel: raw})
	}
	return deliveries, nil
}

// ProcessAck deletes the parcel referenced by a delivery ack. Unknown
// correlation ids are ignored: the parcel may already be gone. The
// session's sent entry is pruned too, so keep-alive sessions do not
// accumulate state for parcels that no longer exist.
func (c *CollectParcels) ProcessAck(ctx context.Context, localID string) error {
	c.mu.Lock()
	parcel, ok := c.pending[localID]
	if ok {
		delete(c.pending, localID)
		delete(c.sent, parcel.Key())
	}
	c.mu.Unlock()
	if !ok {
		return nil
	}

	if err := c.service.Delete(ctx, parcel.RecipientAddress, parcel.SenderAddress, parcel.MessageID); err != nil {
		return err
	}
	return c.collections.Remove(ctx, parcel.RecipientAddress, parcel.SenderAddress, parcel.MessageID)
}

// AwaitingAck reports whether any pushed parcel still lacks its ack.
func (c *CollectParcels) AwaitingAck() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending) > 0
}
