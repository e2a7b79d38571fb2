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

// Frames exchanged over a parcel collection session. The challenge and the
// delivery frames are binary; acks are plain text frames carrying the
// delivery's local id, so they are not defined here.

// HandshakeChallenge opens a collection session with a fresh nonce.
type HandshakeChallenge struct {
	Nonce []byte `cbor:"1,keyasint"`
}

func (c *HandshakeChallenge) Serialize() ([]byte, error) {
	return cbor.Marshal(c)
}

func DeserializeHandshakeChallenge(raw []byte) (*HandshakeChallenge, error) {
	var c HandshakeChallenge
	if err := cbor.Unmarshal(raw, &c); err != nil {
		return nil, malformed("handshake challenge", err)
	}
	if len(c.Nonce) == 0 {
		return nil, malformed("handshake challenge", errors.New("empty nonce"))
	}
	return &c, nil
}

// HandshakeResponse carries one nonce signature per endpoint the client
// wants to collect parcels for.
type HandshakeResponse struct {
	NonceSignatures [][]byte `cbor:"1,keyasint"`
}

func (r *HandshakeResponse) Serialize() ([]byte, error) {
	return cbor.Marshal(r)
}

func DeserializeHandshakeResponse(raw []byte) (*HandshakeResponse, error) {
	var r HandshakeResponse
	if err := cbor.Unmarshal(raw, &r); err != nil {
		return nil, malformed("handshake response", err)
	}
	return &r, nil
}

// ParcelDelivery wraps one parcel pushed to a collecting client. LocalID
// is a session-scoped correlation id echoed back in the client's ack.
type ParcelDelivery struct {
	LocalID string `cbor:"1,keyasint"`
	Parcel  []byte `cbor:"2,keyasint"`
}

func (d *ParcelDelivery) Serialize() ([]byte, error) {
	return cbor.Marshal(d)
}

func DeserializeParcelDelivery(raw []byte) (*ParcelDelivery, error) {
	var d ParcelDelivery
	if err := cbor.Unmarshal(raw, &d); err != nil {
		return nil, malformed("parcel delivery", err)
	}
	if d.LocalID == "" {
		return nil, malformed("parcel delivery", errors.New("missing local id"))
	}
	return &d, nil
}
