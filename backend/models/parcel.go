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

package models

import (
	"fmt"
	"time"
)

// StoredParcel is the index record of a parcel whose bytes live in the
// disk store. (sender, message id) is unique per store; StoragePath must
// resolve inside the parcel namespace of the disk store.
type StoredParcel struct {
	RecipientAddress  MessageAddress    `json:"recipient_address" db:"recipient_address"`
	SenderAddress     MessageAddress    `json:"sender_address" db:"sender_address"`
	MessageID         MessageId         `json:"message_id" db:"message_id"`
	RecipientLocation RecipientLocation `json:"recipient_location" db:"recipient_location"`
	StoragePath       string            `json:"storage_path" db:"storage_path"`
	Size              StorageSize       `json:"size" db:"size"`
	ExpiresAt         time.Time         `json:"expires_at" db:"expires_at"`
	CreatedAt         time.Time         `json:"created_at" db:"created_at"`
}

// Key returns a stable identifier combining the unique columns.
func (p StoredParcel) Key() string {
	return fmt.Sprintf("%s/%s/%s", p.RecipientAddress, p.SenderAddress, p.MessageID)
}

// Expired reports whether the parcel should no longer be delivered.
func (p StoredParcel) Expired(now time.Time) bool {
	return !p.ExpiresAt.After(now)
}

// StorageSize is a byte count of stored message data.
type StorageSize int64

func (s StorageSize) IsZero() bool { return s == 0 }

func (s StorageSize) Bytes() int64 { return int64(s) }
