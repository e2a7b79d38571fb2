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
	"bytes"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"io"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// CargoMessage types. A cargo payload is a CBOR stream of CargoMessage
// items, each either a serialized parcel or a parcel collection ack.
const (
	CargoMessageTypeParcel        uint8 = 1
	CargoMessageTypeCollectionAck uint8 = 2
)

// CargoMessage is one multiplexed unit inside a cargo payload.
type CargoMessage struct {
	Type    uint8  `cbor:"1,keyasint"`
	Payload []byte `cbor:"2,keyasint"`
}

type cargoBody struct {
	RecipientAddress  string `cbor:"1,keyasint"`
	SenderCertificate []byte `cbor:"2,keyasint"`
	CreationTime      int64  `cbor:"3,keyasint"`
	Payload           []byte `cbor:"4,keyasint"`
}

// Cargo is an opaque signed bundle of cargo messages exchanged with a
// courier or the internet relay.
type Cargo struct {
	RecipientAddress  string
	SenderCertificate []byte
	CreationTime      time.Time
	Payload           []byte

	signedBody []byte
	signature  []byte
}

const kindCargo = "cargo"

// EncodeCargoMessages packs messages into a cargo payload.
func EncodeCargoMessages(messages []CargoMessage) ([]byte, error) {
	var buf bytes.Buffer
	enc := cbor.NewEncoder(&buf)
	for _, m := range messages {
		if err := enc.Encode(m); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// SerializeCargo encodes and signs a cargo envelope with the gateway key.
func SerializeCargo(c *Cargo, senderKey *rsa.PrivateKey) ([]byte, error) {
	body := cargoBody{
		RecipientAddress:  c.RecipientAddress,
		SenderCertificate: c.SenderCertificate,
		CreationTime:      c.CreationTime.Unix(),
		Payload:           c.Payload,
	}
	return sealEnvelope(body, senderKey)
}

// DeserializeCargo decodes a cargo envelope without trusting it.
func DeserializeCargo(raw []byte) (*Cargo, error) {
	var env signedEnvelope
	if err := cbor.Unmarshal(raw, &env); err != nil {
		return nil, malformed(kindCargo, err)
	}
	var body cargoBody
	if err := cbor.Unmarshal(env.Body, &body); err != nil {
		return nil, malformed(kindCargo, err)
	}
	return &Cargo{
		RecipientAddress:  body.RecipientAddress,
		SenderCertificate: body.SenderCertificate,
		CreationTime:      time.Unix(body.CreationTime, 0),
		Payload:           body.Payload,
		signedBody:        env.Body,
		signature:         env.Signature,
	}, nil
}

// Verify checks the sender signature and returns the sender certificate.
func (c *Cargo) Verify() (*x509.Certificate, error) {
	return verifyEnvelope(kindCargo, c.SenderCertificate, c.signedBody, c.signature)
}

// Messages returns a lazy reader over the messages multiplexed in the
// cargo payload. Cargo may hold many messages; they are decoded one at a
// time rather than all at once.
func (c *Cargo) Messages() *CargoMessageReader {
	return &CargoMessageReader{dec: cbor.NewDecoder(bytes.NewReader(c.Payload))}
}

// CargoMessageReader iterates the messages of one cargo payload.
type CargoMessageReader struct {
	dec *cbor.Decoder
}

// Next returns the next message, io.EOF when the payload is exhausted, or
// a MalformedMessageError when the stream is corrupt.
func (r *CargoMessageReader) Next() (*CargoMessage, error) {
	var m CargoMessage
	if err := r.dec.Decode(&m); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, malformed("cargo message", err)
	}
	if m.Type != CargoMessageTypeParcel && m.Type != CargoMessageTypeCollectionAck {
		return nil, malformed("cargo message", errors.New("unknown message type"))
	}
	return &m, nil
}
