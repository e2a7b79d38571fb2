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

func (s *Store) Migrate() error {
	migrations := []string{
		// Parcels held for delivery, locally or via courier
		`CREATE TABLE IF NOT EXISTS parcels (
			recipient_address VARCHAR(1024) NOT NULL,
			sender_address VARCHAR(1024) NOT NULL,
			message_id VARCHAR(255) NOT NULL,
			recipient_location VARCHAR(16) NOT NULL,
			storage_path VARCHAR(255) NOT NULL,
			size BIGINT NOT NULL,
			expires_at TIMESTAMP NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (recipient_address, sender_address, message_id)
		)`,

		// Find parcels pending for a recipient quickly
		`CREATE INDEX IF NOT EXISTS idx_parcels_recipient
		ON parcels(recipient_location, recipient_address)`,

		// Registered endpoint applications
		`CREATE TABLE IF NOT EXISTS local_endpoints (
			address VARCHAR(255) PRIMARY KEY,
			application_id VARCHAR(255) NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE INDEX IF NOT EXISTS idx_local_endpoints_app
		ON local_endpoints(application_id)`,

		// Single-row gateway state
		`CREATE TABLE IF NOT EXISTS gateway_state (
			id SMALLINT PRIMARY KEY DEFAULT 1,
			registration_state VARCHAR(16) NOT NULL DEFAULT 'todo',
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CHECK (id = 1)
		)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
