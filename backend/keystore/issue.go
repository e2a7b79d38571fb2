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

package keystore

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"math/big"
	"time"

	"github.com/efchatnet/relaygate/backend/models"
)

// PrivateAddress derives the deterministic private address of a node from
// its public key: the address prefix plus the hex SHA-256 of the PKIX DER
// encoding. Same key, same address, always.
func PrivateAddress(pub *rsa.PublicKey) (models.PrivateMessageAddress, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", err
	}
	digest := sha256.Sum256(der)
	return models.PrivateMessageAddress(models.PrivateAddressPrefix + hex.EncodeToString(digest[:])), nil
}

// CertificateAddress derives the private address bound to a certificate's
// subject key.
func CertificateAddress(cert *x509.Certificate) (models.PrivateMessageAddress, error) {
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return "", x509.ErrUnsupportedAlgorithm
	}
	return PrivateAddress(pub)
}

// IssueGatewayCertificate self-signs a CA certificate for the gateway key.
func IssueGatewayCertificate(key *rsa.PrivateKey, expiry time.Time) (*x509.Certificate, error) {
	address, err := PrivateAddress(&key.PublicKey)
	if err != nil {
		return nil, err
	}
	template, err := certTemplate(address, expiry)
	if err != nil {
		return nil, err
	}
	template.IsCA = true
	template.BasicConstraintsValid = true
	template.KeyUsage |= x509.KeyUsageCertSign

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		return nil, err
	}
	return x509.ParseCertificate(der)
}

// IssueEndpointCertificate signs a certificate for an endpoint public key
// with the gateway key. The subject is the endpoint's derived address.
func IssueEndpointCertificate(endpointKey *rsa.PublicKey, gatewayKey *rsa.PrivateKey, gatewayCert *x509.Certificate, expiry time.Time) (*x509.Certificate, error) {
	address, err := PrivateAddress(endpointKey)
	if err != nil {
		return nil, err
	}
	template, err := certTemplate(address, expiry)
	if err != nil {
		return nil, err
	}

	der, err := x509.CreateCertificate(rand.Reader, template, gatewayCert, endpointKey, gatewayKey)
	if err != nil {
		return nil, err
	}
	return x509.ParseCertificate(der)
}

func certTemplate(address models.PrivateMessageAddress, expiry time.Time) (*x509.Certificate, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, err
	}
	return &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: address.String()},
		NotBefore:    time.Now().Add(-time.Minute),
		NotAfter:     expiry,
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}, nil
}
