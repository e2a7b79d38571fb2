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

// Package parcels stores and deletes parcels across the disk store and the
// relational index. Malformed and invalid parcels are reported with
// distinct error types so protocol surfaces can answer precisely.
package parcels

import (
	"context"
	"time"

	logging "gopkg.in/op/go-logging.v1"

	"github.com/efchatnet/relaygate/backend/keystore"
	"github.com/efchatnet/relaygate/backend/models"
	"github.com/efchatnet/relaygate/backend/storage"
	"github.com/efchatnet/relaygate/backend/storage/disk"
	"github.com/efchatnet/relaygate/backend/wire"
)

var log = logging.MustGetLogger("parcels")

type Service struct {
	index storage.ParcelStore
	blobs storage.BlobStore
}

func NewService(index storage.ParcelStore, blobs storage.BlobStore) *Service {
	return &Service{index: index, blobs: blobs}
}

// Store validates raw parcel bytes and persists them for the given
// recipient location. It returns wire.MalformedMessageError for
// undecodable bytes and wire.InvalidMessageError for parcels that decode
// but fail verification; any other error is a storage failure.
func (s *Service) Store(ctx context.Context, raw []byte, location models.RecipientLocation) (*models.StoredParcel, error) {
	return s.store(ctx, raw, func(models.MessageAddress) models.RecipientLocation {
		return location
	})
}

// StoreResolved persists raw parcel bytes with the recipient location
// derived from the parcel's own addressing.
func (s *Service) StoreResolved(ctx context.Context, raw []byte) (*models.StoredParcel, error) {
	return s.store(ctx, raw, models.LocationForAddress)
}

func (s *Service) store(ctx context.Context, raw []byte, locate func(models.MessageAddress) models.RecipientLocation) (*models.StoredParcel, error) {
	parcel, err := wire.DeserializeParcel(raw)
	if err != nil {
		return nil, err
	}
	senderCert, err := parcel.Verify(time.Now())
	if err != nil {
		return nil, err
	}
	senderAddress, err := keystore.CertificateAddress(senderCert)
	if err != nil {
		return nil, &wire.InvalidMessageError{Kind: "parcel", Cause: err}
	}

	path, err := s.blobs.StoreUnique(disk.NamespaceParcel, "parcel_", raw)
	if err != nil {
		return nil, err
	}

	recipient := models.MessageAddress(parcel.RecipientAddress)
	stored := models.StoredParcel{
		RecipientAddress:  recipient,
		SenderAddress:     senderAddress.ToMessageAddress(),
		MessageID:         models.MessageId(parcel.MessageID),
		RecipientLocation: locate(recipient),
		StoragePath:       path,
		Size:              models.StorageSize(len(raw)),
		ExpiresAt:         parcel.Expiry(),
		CreatedAt:         time.Now(),
	}
	if err := s.index.Insert(ctx, stored); err != nil {
		// Don't leave orphaned bytes behind
		if delErr := s.blobs.Delete(disk.NamespaceParcel, path); delErr != nil {
			log.Warningf("could not remove parcel blob after failed insert: %v", delErr)
		}
		return nil, err
	}
	return &stored, nil
}

// Read returns the raw bytes of a stored parcel.
func (s *Service) Read(parcel models.StoredParcel) ([]byte, error) {
	return s.blobs.Read(disk.NamespaceParcel, parcel.StoragePath)
}

// Delete removes a parcel from the index and the disk store. Deleting a
// parcel that is already gone is a no-op: acks race with other deletion
// paths.
func (s *Service) Delete(ctx context.Context, recipient, sender models.MessageAddress, id models.MessageId) error {
	stored, err := s.index.Get(ctx, recipient, sender, id)
	if err != nil {
		return err
	}
	if stored == nil {
		return nil
	}
	if err := s.index.Delete(ctx, recipient, sender, id); err != nil {
		return err
	}
	return s.blobs.Delete(disk.NamespaceParcel, stored.StoragePath)
}
