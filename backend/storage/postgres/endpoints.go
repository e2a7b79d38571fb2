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

	"github.com/efchatnet/relaygate/backend/models"
)

// Upsert replaces any previous registration of the same application and
// claims the derived address for it.
func (s *Store) Upsert(ctx context.Context, endpoint models.LocalEndpoint) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Re-registration with a new key moves the application to a new address
	_, err = tx.ExecContext(ctx,
		`DELETE FROM local_endpoints WHERE application_id = $1`,
		endpoint.ApplicationID)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO local_endpoints (address, application_id, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (address) DO UPDATE
		SET application_id = $2, created_at = $3`,
		endpoint.Address.String(), endpoint.ApplicationID, time.Now())
	if err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) GetEndpoint(ctx context.Context, address models.PrivateMessageAddress) (*models.LocalEndpoint, error) {
	var e models.LocalEndpoint
	var addr string
	err := s.db.QueryRowContext(ctx, `
		SELECT address, application_id, created_at FROM local_endpoints
		WHERE address = $1`, address.String()).
		Scan(&addr, &e.ApplicationID, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	e.Address = models.PrivateMessageAddress(addr)
	return &e, nil
}

func (s *Store) CountApplications(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT application_id) FROM local_endpoints`).Scan(&count)
	return count, err
}
