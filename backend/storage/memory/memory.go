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

// Package memory implements the storage interfaces in process memory. It
// backs tests and ephemeral development runs; nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/efchatnet/relaygate/backend/models"
)

// Store implements every storage interface over in-memory maps. Safe for
// concurrent use.
type Store struct {
	mu          sync.Mutex
	parcels     map[string]models.StoredParcel
	endpoints   map[models.PrivateMessageAddress]models.LocalEndpoint
	collections map[string]bool
	state       models.RegistrationState
}

func NewStore() *Store {
	return &Store{
		parcels:     make(map[string]models.StoredParcel),
		endpoints:   make(map[models.PrivateMessageAddress]models.LocalEndpoint),
		collections: make(map[string]bool),
		state:       models.RegistrationStateToDo,
	}
}

func parcelKey(recipient, sender models.MessageAddress, id models.MessageId) string {
	return models.StoredParcel{
		RecipientAddress: recipient,
		SenderAddress:    sender,
		MessageID:        id,
	}.Key()
}

func (s *Store) Insert(ctx context.Context, parcel models.StoredParcel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parcels[parcel.Key()] = parcel
	return nil
}

func (s *Store) Get(ctx context.Context, recipient, sender models.MessageAddress, id models.MessageId) (*models.StoredParcel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	parcel, ok := s.parcels[parcelKey(recipient, sender, id)]
	if !ok {
		return nil, nil
	}
	return &parcel, nil
}

func (s *Store) Delete(ctx context.Context, recipient, sender models.MessageAddress, id models.MessageId) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.parcels, parcelKey(recipient, sender, id))
	return nil
}

func (s *Store) ListForRecipients(ctx context.Context, recipients []models.MessageAddress, location models.RecipientLocation) ([]models.StoredParcel, error) {
	wanted := make(map[models.MessageAddress]bool, len(recipients))
	for _, r := range recipients {
		wanted[r] = true
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.StoredParcel
	for _, parcel := range s.parcels {
		if parcel.RecipientLocation == location && wanted[parcel.RecipientAddress] {
			out = append(out, parcel)
		}
	}
	sortParcels(out)
	return out, nil
}

func (s *Store) ListForLocation(ctx context.Context, location models.RecipientLocation) ([]models.StoredParcel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.StoredParcel
	for _, parcel := range s.parcels {
		if parcel.RecipientLocation == location {
			out = append(out, parcel)
		}
	}
	sortParcels(out)
	return out, nil
}

func (s *Store) TotalSizeForLocation(ctx context.Context, location models.RecipientLocation) (models.StorageSize, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total models.StorageSize
	for _, parcel := range s.parcels {
		if parcel.RecipientLocation == location {
			total += parcel.Size
		}
	}
	return total, nil
}

func (s *Store) Upsert(ctx context.Context, endpoint models.LocalEndpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for address, existing := range s.endpoints {
		if existing.ApplicationID == endpoint.ApplicationID {
			delete(s.endpoints, address)
		}
	}
	s.endpoints[endpoint.Address] = endpoint
	return nil
}

func (s *Store) GetEndpoint(ctx context.Context, address models.PrivateMessageAddress) (*models.LocalEndpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	endpoint, ok := s.endpoints[address]
	if !ok {
		return nil, nil
	}
	return &endpoint, nil
}

func (s *Store) CountApplications(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	apps := make(map[string]bool)
	for _, endpoint := range s.endpoints {
		apps[endpoint.ApplicationID] = true
	}
	return len(apps), nil
}

func (s *Store) Register(ctx context.Context, parcel models.StoredParcel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[parcel.Key()] = true
	return nil
}

func (s *Store) Remove(ctx context.Context, recipient, sender models.MessageAddress, id models.MessageId) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections, parcelKey(recipient, sender, id))
	return nil
}

func (s *Store) IsRegistered(ctx context.Context, recipient, sender models.MessageAddress, id models.MessageId) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collections[parcelKey(recipient, sender, id)], nil
}

func (s *Store) GetRegistrationState(ctx context.Context) (models.RegistrationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, nil
}

func (s *Store) SetRegistrationState(ctx context.Context, state models.RegistrationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
	return nil
}

func sortParcels(parcels []models.StoredParcel) {
	sort.Slice(parcels, func(i, j int) bool {
		if !parcels[i].CreatedAt.Equal(parcels[j].CreatedAt) {
			return parcels[i].CreatedAt.Before(parcels[j].CreatedAt)
		}
		return parcels[i].MessageID < parcels[j].MessageID
	})
}
