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

// GetRegistrationState defaults to "todo" when the state row was never
// written.
func (s *Store) GetRegistrationState(ctx context.Context) (models.RegistrationState, error) {
	var state string
	err := s.db.QueryRowContext(ctx,
		`SELECT registration_state FROM gateway_state WHERE id = 1`).Scan(&state)
	if err == sql.ErrNoRows {
		return models.RegistrationStateToDo, nil
	}
	if err != nil {
		return "", err
	}
	return models.RegistrationState(state), nil
}

func (s *Store) SetRegistrationState(ctx context.Context, state models.RegistrationState) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO gateway_state (id, registration_state, updated_at)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET registration_state = $1, updated_at = $2`,
		string(state), time.Now())
	return err
}
