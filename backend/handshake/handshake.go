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

// Package handshake proves an endpoint's possession of a registered key
// before parcel collection: the server challenges with a nonce, the client
// answers with a detached-signature container over it.
package handshake

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/efchatnet/relaygate/backend/wire"
)

// Verification failures, one per checklist step. The order of the checks
// is load-bearing: structural failures must surface before any semantic
// check runs on untrusted fields.
var (
	ErrMalformedSignature       = errors.New("signature container is malformed")
	ErrSignerCountInvalid       = errors.New("signature container must have exactly one signer")
	ErrSignerCertificateMissing = errors.New("signer certificate is not attached")
	ErrSignatureInvalid         = errors.New("nonce signature is invalid")
)

// GenerateNonce returns a fresh session nonce.
func GenerateNonce() []byte {
	n := uuid.New()
	return n[:]
}

// VerifySignature runs the ordered verification of a nonce signature:
//
//  1. the bytes must decode as a signature container
//  2. the container must carry exactly one signer record
//  3. that signer's certificate must be attached
//  4. the signature must verify over expectedNonce with the attached key
//
// On success the verified signer certificate is returned. The function is
// pure: no field of the container is trusted before its step has passed.
func VerifySignature(signatureSerialized, expectedNonce []byte) (*x509.Certificate, error) {
	container, err := wire.DeserializeSignedData(signatureSerialized)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}

	if len(container.Signers) != 1 {
		return nil, fmt.Errorf("%w (got %d)", ErrSignerCountInvalid, len(container.Signers))
	}
	signer := container.Signers[0]

	if len(signer.Certificate) == 0 {
		return nil, ErrSignerCertificateMissing
	}
	cert, err := x509.ParseCertificate(signer.Certificate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSignature, err)
	}

	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: signer key is not RSA", ErrSignatureInvalid)
	}
	digest := sha256.Sum256(expectedNonce)
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], signer.Signature); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	return cert, nil
}
