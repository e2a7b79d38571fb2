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
	"crypto/rsa"
	"crypto/x509"
	"errors"

	"github.com/fxamacker/cbor/v2"
)

// RegistrationRequest is sent by an endpoint application completing the
// two-step registration protocol: its public key plus the authorization
// token obtained during pre-registration.
type RegistrationRequest struct {
	EndpointPublicKey []byte `cbor:"1,keyasint"`
	Authorization     []byte `cbor:"2,keyasint"`
}

const kindRegistrationRequest = "registration request"

// Serialize encodes the request.
func (r *RegistrationRequest) Serialize() ([]byte, error) {
	return cbor.Marshal(r)
}

// DeserializeRegistrationRequest decodes a registration request.
func DeserializeRegistrationRequest(raw []byte) (*RegistrationRequest, error) {
	var r RegistrationRequest
	if err := cbor.Unmarshal(raw, &r); err != nil {
		return nil, malformed(kindRegistrationRequest, err)
	}
	if len(r.EndpointPublicKey) == 0 || len(r.Authorization) == 0 {
		return nil, malformed(kindRegistrationRequest, errors.New("missing fields"))
	}
	return &r, nil
}

// PublicKey parses the embedded endpoint key. Endpoints must use RSA keys.
func (r *RegistrationRequest) PublicKey() (*rsa.PublicKey, error) {
	key, err := x509.ParsePKIXPublicKey(r.EndpointPublicKey)
	if err != nil {
		return nil, malformed(kindRegistrationRequest, err)
	}
	rsaKey, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, malformed(kindRegistrationRequest, errors.New("endpoint key is not RSA"))
	}
	return rsaKey, nil
}

// RegistrationBundle is the successful registration reply: the freshly
// issued endpoint certificate plus the gateway's own certificate, both DER.
type RegistrationBundle struct {
	EndpointCertificate []byte `cbor:"1,keyasint"`
	GatewayCertificate  []byte `cbor:"2,keyasint"`
}

// Serialize encodes the bundle.
func (b *RegistrationBundle) Serialize() ([]byte, error) {
	return cbor.Marshal(b)
}

// DeserializeRegistrationBundle decodes a bundle.
func DeserializeRegistrationBundle(raw []byte) (*RegistrationBundle, error) {
	var b RegistrationBundle
	if err := cbor.Unmarshal(raw, &b); err != nil {
		return nil, malformed("registration bundle", err)
	}
	if len(b.EndpointCertificate) == 0 || len(b.GatewayCertificate) == 0 {
		return nil, malformed("registration bundle", errors.New("missing certificates"))
	}
	return &b, nil
}
