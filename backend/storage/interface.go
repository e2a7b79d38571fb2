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

package storage

import (
	"context"

	"github.com/efchatnet/relaygate/backend/models"
)

// ParcelStore indexes parcels whose bytes live in the blob store. Deleting
// a parcel that does not exist is a no-op, not an error: acks race with
// other deletion paths.
type ParcelStore interface {
	Insert(ctx context.Context, parcel models.StoredParcel) error
	Get(ctx context.Context, recipient, sender models.MessageAddress, id models.MessageId) (*models.StoredParcel, error)
	Delete(ctx context.Context, recipient, sender models.MessageAddress, id models.MessageId) error
	ListForRecipients(ctx context.Context, recipients []models.MessageAddress, location models.RecipientLocation) ([]models.StoredParcel, error)
	ListForLocation(ctx context.Context, location models.RecipientLocation) ([]models.StoredParcel, error)
	TotalSizeForLocation(ctx context.Context, location models.RecipientLocation) (models.StorageSize, error)
}

// EndpointStore keeps the registered local endpoint applications. Upsert
// replaces any previous record for the same application id.
type EndpointStore interface {
	Upsert(ctx context.Context, endpoint models.LocalEndpoint) error
	GetEndpoint(ctx context.Context, address models.PrivateMessageAddress) (*models.LocalEndpoint, error)
	CountApplications(ctx context.Context) (int, error)
}

// CollectionStore tracks parcels registered for collection sessions so
// acks can be matched across sessions and the cargo pipeline.
type CollectionStore interface {
	Register(ctx context.Context, parcel models.StoredParcel) error
	Remove(ctx context.Context, recipient, sender models.MessageAddress, id models.MessageId) error
	IsRegistered(ctx context.Context, recipient, sender models.MessageAddress, id models.MessageId) (bool, error)
}

// StateStore persists the gateway's registration state with the remote
// public relay.
type StateStore interface {
	GetRegistrationState(ctx context.Context) (models.RegistrationState, error)
	SetRegistrationState(ctx context.Context, state models.RegistrationState) error
}

// BlobStore is namespaced durable byte storage on disk. Store writes under
// a caller-chosen name; StoreUnique generates a unique name from the given
// prefix and returns it. Read reports os.ErrNotExist for missing entries.
type BlobStore interface {
	Store(namespace, name string, data []byte) error
	StoreUnique(namespace, prefix string, data []byte) (string, error)
	Read(namespace, name string) ([]byte, error)
	List(namespace string) ([]string, error)
	Delete(namespace, name string) error
	DeleteAll(namespace string) error
}
