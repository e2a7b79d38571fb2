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

package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/efchatnet/relaygate/backend/models"
)

func (s *Store) Insert(ctx context.Context, parcel models.StoredParcel) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO parcels (recipient_address, sender_address, message_id,
			recipient_location, storage_path, size, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (recipient_address, sender_address, message_id) DO UPDATE
		SET recipient_location = $4, storage_path = $5, size = $6, expires_at = $7`,
		parcel.RecipientAddress.String(), parcel.SenderAddress.String(),
		parcel.MessageID.String(), string(parcel.RecipientLocation),
		parcel.StoragePath, parcel.Size.Bytes(), parcel.ExpiresAt, time.Now())
	return err
}

func (s *Store) Get(ctx context.Context, recipient, sender models.MessageAddress, id models.MessageId) (*models.StoredParcel, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT recipient_address, sender_address, message_id, recipient_location,
			storage_path, size, expires_at, created_at
		FROM parcels
		WHERE recipient_address = $1 AND sender_address = $2 AND message_id = $3`,
		recipient.String(), sender.String(), id.String())
	parcel, err := scanParcel(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return parcel, nil
}

// Delete is a no-op when the parcel is already gone.
func (s *Store) Delete(ctx context.Context, recipient, sender models.MessageAddress, id models.MessageId) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM parcels
		WHERE recipient_address = $1 AND sender_address = $2 AND message_id = $3`,
		recipient.String(), sender.String(), id.String())
	return err
}

func (s *Store) ListForRecipients(ctx context.Context, recipients []models.MessageAddress, location models.RecipientLocation) ([]models.StoredParcel, error) {
	addresses := make([]string, len(recipients))
	for i, r := range recipients {
		addresses[i] = r.String()
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT recipient_address, sender_address, message_id, recipient_location,
			storage_path, size, expires_at, created_at
		FROM parcels
		WHERE recipient_location = $1 AND recipient_address = ANY($2)
		ORDER BY created_at, message_id`,
		string(location), pq.Array(addresses))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanParcels(rows)
}

func (s *Store) ListForLocation(ctx context.Context, location models.RecipientLocation) ([]models.StoredParcel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT recipient_address, sender_address, message_id, recipient_location,
			storage_path, size, expires_at, created_at
		FROM parcels
		WHERE recipient_location = $1
		ORDER BY created_at, message_id`,
		string(location))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanParcels(rows)
}

func (s *Store) TotalSizeForLocation(ctx context.Context, location models.RecipientLocation) (models.StorageSize, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(size), 0) FROM parcels WHERE recipient_location = $1`,
		string(location)).Scan(&total)
	return models.StorageSize(total), err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanParcel(row rowScanner) (*models.StoredParcel, error) {
	var p models.StoredParcel
	var recipient, sender, id, location string
	var size int64
	err := row.Scan(&recipient, &sender, &id, &location,
		&p.StoragePath, &size, &p.ExpiresAt, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.RecipientAddress = models.MessageAddress(recipient)
	p.SenderAddress = models.MessageAddress(sender)
	p.MessageID = models.MessageId(id)
	p.RecipientLocation = models.RecipientLocation(location)
	p.Size = models.StorageSize(size)
	return &p, nil
}

func scanParcels(rows *sql.Rows) ([]models.StoredParcel, error) {
	var parcels []models.StoredParcel
	for rows.Next() {
		p, err := scanParcel(rows)
		if err != nil {
			return nil, err
		}
		parcels = append(parcels, *p)
	}
	return parcels, rows.Err()
}
