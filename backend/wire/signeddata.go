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
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"

	"github.com/fxamacker/cbor/v2"
)

// SignedData is a detached-signature container: it binds signer records to
// a payload that travels out of band (e.g. a handshake nonce). The
// container itself makes no trust claims; verification order and policy
// live in the handshake package.
type SignedData struct {
	Signers []SignerInfo `cbor:"1,keyasint"`
}

// SignerInfo is one signer record. Certificate is the signer's DER
// certificate and may be absent, which verifiers must treat as an error.
type SignerInfo struct {
	Certificate []byte `cbor:"1,keyasint"`
	Signature   []byte `cbor:"2,keyasint"`
}

// SignDetached builds a single-signer container over payload. The
// certificate is attached so the verifier needs no side channel.
func SignDetached(payload []byte, key *rsa.PrivateKey, certDER []byte) ([]byte, error) {
	digest := sha256.Sum256(payload)
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		return nil, err
	}
	return cbor.Marshal(SignedData{
		Signers: []SignerInfo{{Certificate: certDER, Signature: sig}},
	})
}

// DeserializeSignedData decodes the container. It performs only the
// structural decode; every semantic check is the verifier's job.
func DeserializeSignedData(raw []byte) (*SignedData, error) {
	var sd SignedData
	if err := cbor.Unmarshal(raw, &sd); err != nil {
		return nil, malformed("signature container", err)
	}
	return &sd, nil
}
