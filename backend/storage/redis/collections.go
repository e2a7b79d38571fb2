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

// Package redis tracks parcels registered for collection sessions. The
// records are matching hints shared between concurrent sessions and the
// cargo pipeline; the parcel index in postgres remains authoritative.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/efchatnet/relaygate/backend/models"
)

const (
	// Collection records outlive the longest parcel TTL we accept
	collectionTTL = 30 * 24 * time.Hour

	// Redis key prefixes
	collectionPrefix = "collection:" // collection:{recipient}/{sender}/{messageId}
)

type CollectionStore struct {
	rdb *redis.Client
}

func NewCollectionStore(rdb *redis.Client) *CollectionStore {
	return &CollectionStore{rdb: rdb}
}

// Register records that the parcel is awaiting collection by a local
// endpoint.
func (s *CollectionStore) Register(ctx context.Context, parcel models.StoredParcel) error {
	data, err := json.Marshal(parcel)
	if err != nil {
		return fmt.Errorf("failed to marshal collection record: %w", err)
	}
	key := collectionPrefix + parcel.Key()
	if err := s.rdb.Set(ctx, key, data, collectionTTL).Err(); err != nil {
		return fmt.Errorf("failed to store collection record: %w", err)
	}
	return nil
}

// Remove drops the record; removing an absent record is a no-op.
func (s *CollectionStore) Remove(ctx context.Context, recipient, sender models.MessageAddress, id models.MessageId) error {
	key := recordKey(recipient, sender, id)
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to remove collection record: %w", err)
	}
	return nil
}

func (s *CollectionStore) IsRegistered(ctx context.Context, recipient, sender models.MessageAddress, id models.MessageId) (bool, error) {
	n, err := s.rdb.Exists(ctx, recordKey(recipient, sender, id)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check collection record: %w", err)
	}
	return n > 0, nil
}

func recordKey(recipient, sender models.MessageAddress, id models.MessageId) string {
	return fmt.Sprintf("%s%s/%s/%s", collectionPrefix, recipient, sender, id)
}
