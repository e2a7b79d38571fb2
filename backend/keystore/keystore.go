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

// Package keystore owns the gateway's long-lived key pair and self-issued
// certificate. Both are generated on first use, persisted in the blob
// store, and cached for the process lifetime. No other component may
// persist the private key.
package keystore

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	logging "gopkg.in/op/go-logging.v1"

	"github.com/efchatnet/relaygate/backend/storage"
	"github.com/efchatnet/relaygate/backend/storage/disk"
)

var log = logging.MustGetLogger("keystore")

const (
	keyBits                  = 2048
	gatewayCertValidityYears = 3

	privateKeyName  = "gateway.key"
	certificateName = "gateway.certificate"
)

// ErrKeyMaterialCorrupt means persisted key bytes exist but do not decode.
// The keystore never regenerates over corrupt material: a silent new key
// would invalidate every endpoint certificate issued so far.
var ErrKeyMaterialCorrupt = errors.New("persisted key material is corrupt")

type Keystore struct {
	blobs storage.BlobStore

	group singleflight.Group

	mu   sync.RWMutex
	key  *rsa.PrivateKey
	cert *x509.Certificate
}

func New(blobs storage.BlobStore) *Keystore {
	return &Keystore{blobs: blobs}
}

// KeyPair returns the gateway key pair, generating and persisting one on
// first use. Safe for concurrent callers; only one generation runs.
func (k *Keystore) KeyPair() (*rsa.PrivateKey, error) {
	k.mu.RLock()
	cached := k.key
	k.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	v, err, _ := k.group.Do("key", func() (interface{}, error) {
		return k.loadOrGenerateKey()
	})
	if err != nil {
		return nil, err
	}
	return v.(*rsa.PrivateKey), nil
}

// Certificate returns the gateway's self-issued certificate, generating a
// three-year one on first use.
func (k *Keystore) Certificate() (*x509.Certificate, error) {
	k.mu.RLock()
	cached := k.cert
	k.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	v, err, _ := k.group.Do("certificate", func() (interface{}, error) {
		return k.loadOrGenerateCertificate()
	})
	if err != nil {
		return nil, err
	}
	return v.(*x509.Certificate), nil
}

func (k *Keystore) loadOrGenerateKey() (*rsa.PrivateKey, error) {
	k.mu.RLock()
	if k.key != nil {
		defer k.mu.RUnlock()
		return k.key, nil
	}
	k.mu.RUnlock()

	raw, err := k.blobs.Read(disk.NamespaceKeystore, privateKeyName)
	switch {
	case err == nil:
		parsed, err := x509.ParsePKCS8PrivateKey(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeyMaterialCorrupt, err)
		}
		key, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: not an RSA key", ErrKeyMaterialCorrupt)
		}
		k.cache(key, nil)
		return key, nil
	case errors.Is(err, os.ErrNotExist):
		key, err := rsa.GenerateKey(rand.Reader, keyBits)
		if err != nil {
			return nil, err
		}
		der, err := x509.MarshalPKCS8PrivateKey(key)
		if err != nil {
			return nil, err
		}
		if err := k.blobs.Store(disk.NamespaceKeystore, privateKeyName, der); err != nil {
			return nil, err
		}
		log.Infof("generated new gateway key pair")
		k.cache(key, nil)
		return key, nil
	default:
		return nil, err
	}
}

func (k *Keystore) loadOrGenerateCertificate() (*x509.Certificate, error) {
	k.mu.RLock()
	if k.cert != nil {
		defer k.mu.RUnlock()
		return k.cert, nil
	}
	k.mu.RUnlock()

	raw, err := k.blobs.Read(disk.NamespaceKeystore, certificateName)
	switch {
	case err == nil:
		cert, err := x509.ParseCertificate(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrKeyMaterialCorrupt, err)
		}
		k.cache(nil, cert)
		return cert, nil
	case errors.Is(err, os.ErrNotExist):
		key, err := k.KeyPair()
		if err != nil {
			return nil, err
		}
		expiry := time.Now().AddDate(gatewayCertValidityYears, 0, 0)
		cert, err := IssueGatewayCertificate(key, expiry)
		if err != nil {
			return nil, err
		}
		if err := k.blobs.Store(disk.NamespaceKeystore, certificateName, cert.Raw); err != nil {
			return nil, err
		}
		log.Infof("issued gateway certificate for %s, expires %s",
			cert.Subject.CommonName, cert.NotAfter.Format(time.RFC3339))
		k.cache(nil, cert)
		return cert, nil
	default:
		return nil, err
	}
}

func (k *Keystore) cache(key *rsa.PrivateKey, cert *x509.Certificate) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if key != nil {
		k.key = key
	}
	if cert != nil {
		k.cert = cert
	}
}
