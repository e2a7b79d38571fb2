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

package courier

import (
	"context"
	"errors"
	"io"

	logging "gopkg.in/op/go-logging.v1"

	"github.com/efchatnet/relaygate/backend/models"
	"github.com/efchatnet/relaygate/backend/parcels"
	"github.com/efchatnet/relaygate/backend/storage"
	"github.com/efchatnet/relaygate/backend/storage/disk"
	"github.com/efchatnet/relaygate/backend/wire"
)

var log = logging.MustGetLogger("courier")

// ProcessCargo unpacks all cargo sitting in the disk store into parcels
// and collection acks, then purges the cargo. One bad cargo item never
// aborts the run; a storage failure does.
type ProcessCargo struct {
	blobs       storage.BlobStore
	parcels     *parcels.Service
	collections storage.CollectionStore
}

func NewProcessCargo(blobs storage.BlobStore, service *parcels.Service, collections storage.CollectionStore) *ProcessCargo {
	return &ProcessCargo{blobs: blobs, parcels: service, collections: collections}
}

// Process runs one pipeline pass. Cargo is single-use: after every item
// was processed or skipped, all of it is deleted, even when the run saw
// zero items.
func (p *ProcessCargo) Process(ctx context.Context) error {
	names, err := p.blobs.List(disk.NamespaceCargo)
	if err != nil {
		return err
	}

	for _, name := range names {
		raw, err := p.blobs.Read(disk.NamespaceCargo, name)
		if err != nil {
			return err
		}
		if err := p.processItem(ctx, name, raw); err != nil {
			return err
		}
	}

	return p.blobs.DeleteAll(disk.NamespaceCargo)
}

func (p *ProcessCargo) processItem(ctx context.Context, name string, raw []byte) error {
	cargo, err := wire.DeserializeCargo(raw)
	if err != nil {
		log.Warningf("skipping malformed cargo %s: %v", name, err)
		return nil
	}
	if _, err := cargo.Verify(); err != nil {
		log.Warningf("skipping cargo %s with bad signature: %v", name, err)
		return nil
	}

	reader := cargo.Messages()
	for {
		message, err := reader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			log.Warningf("skipping rest of cargo %s: %v", name, err)
			return nil
		}
		if err := p.dispatch(ctx, message); err != nil {
			return err
		}
	}
}

// dispatch routes one cargo message. Bad input is logged and dropped;
// only storage failures propagate.
func (p *ProcessCargo) dispatch(ctx context.Context, message *wire.CargoMessage) error {
	switch message.Type {
	case wire.CargoMessageTypeParcel:
		stored, err := p.parcels.StoreResolved(ctx, message.Payload)
		if err != nil {
			if isBadMessage(err) {
				log.Warningf("dropping bad parcel from cargo: %v", err)
				return nil
			}
			return err
		}
		if stored.RecipientLocation == models.RecipientLocationLocalEndpoint {
			return p.collections.Register(ctx, *stored)
		}
		return nil

	case wire.CargoMessageTypeCollectionAck:
		ack, err := wire.DeserializeParcelCollectionAck(message.Payload)
		if err != nil {
			log.Warningf("dropping bad collection ack: %v", err)
			return nil
		}
		recipient := models.MessageAddress(ack.RecipientEndpointAddress)
		sender := models.MessageAddress(ack.SenderEndpointAddress)
		id := models.MessageId(ack.ParcelID)
		if err := p.parcels.Delete(ctx, recipient, sender, id); err != nil {
			return err
		}
		return p.collections.Remove(ctx, recipient, sender, id)

	default:
		// Unreachable: the reader rejects unknown types
		return nil
	}
}

func isBadMessage(err error) bool {
	var malformed *wire.MalformedMessageError
	var invalid *wire.InvalidMessageError
	return errors.As(err, &malformed) || errors.As(err, &invalid)
}
