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

package wire

import (
	"errors"

	"github.com/fxamacker/cbor/v2"
)

// ParcelCollectionAck notifies that a parcel was already collected
// elsewhere and the local copy must be dropped.
type ParcelCollectionAck struct {
	RecipientEndpointAddress string `cbor:"1,keyasint"`
	SenderEndpointAddress    string `cbor:"2,keyasint"`
	ParcelID                 string `cbor:"3,keyasint"`
}

const kindCollectionAck = "parcel collection ack"

// Serialize encodes the ack. Acks travel inside signed cargo and carry no
// signature of their own.
func (a *ParcelCollectionAck) Serialize() ([]byte, error) {
	return cbor.Marshal(a)
}

// DeserializeParcelCollectionAck decodes an ack from a cargo message
// payload.
func DeserializeParcelCollectionAck(raw []byte) (*ParcelCollectionAck, error) {
	var a ParcelCollectionAck
	if err := cbor.Unmarshal(raw, &a); err != nil {
		return nil, malformed(kindCollectionAck, err)
	}
	if a.RecipientEndpointAddress == "" || a.SenderEndpointAddress == "" || a.ParcelID == "" {
		return nil, malformed(kindCollectionAck, errors.New("missing fields"))
	}
	return &a, nil
}
