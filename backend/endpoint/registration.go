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

// Package endpoint implements the two-step registration protocol for local
// applications and the per-session bookkeeping of parcel collection.
package endpoint

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	logging "gopkg.in/op/go-logging.v1"

	"github.com/efchatnet/relaygate/backend/keystore"
	"github.com/efchatnet/relaygate/backend/models"
	"github.com/efchatnet/relaygate/backend/storage"
	"github.com/efchatnet/relaygate/backend/wire"
)

var log = logging.MustGetLogger("endpoint")

const (
	// AuthorizationTTL bounds how long a pre-registration authorization
	// stays valid. Long enough for the application to turn around its
	// registration request, short enough to be useless if leaked.
	AuthorizationTTL = 15 * time.Second

	endpointCertValidityYears = 3

	applicationIDClaim = "app"
)

// InvalidAuthorizationError means the authorization embedded in a
// registration request did not verify: bad signature, expired, or not a
// token this gateway issued.
type InvalidAuthorizationError struct {
	Cause error
}

func (e *InvalidAuthorizationError) Error() string {
	return fmt.Sprintf("registration request contains invalid authorization: %v", e.Cause)
}

func (e *InvalidAuthorizationError) Unwrap() error { return e.Cause }

type Registration struct {
	endpoints storage.EndpointStore
	keys      *keystore.Keystore
}

func NewRegistration(endpoints storage.EndpointStore, keys *keystore.Keystore) *Registration {
	return &Registration{endpoints: endpoints, keys: keys}
}

// Authorize issues a short-lived signed authorization inviting the given
// application to register. Nothing is persisted; the token itself is the
// proof. Callers must have authenticated the application out of band.
func (r *Registration) Authorize(applicationID string) ([]byte, error) {
	key, err := r.keys.KeyPair()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		applicationIDClaim: applicationID,
		"iat":              now.Unix(),
		"exp":              now.Add(AuthorizationTTL).Unix(),
	})
	signed, err := token.SignedString(key)
	if err != nil {
		return nil, err
	}
	return []byte(signed), nil
}

// Register completes a registration: verify the embedded authorization,
// derive the endpoint address from its key, issue a three-year endpoint
// certificate, persist the endpoint record, and return the serialized
// bundle. Re-registering an application replaces its previous record.
func (r *Registration) Register(ctx context.Context, request *wire.RegistrationRequest) ([]byte, error) {
	applicationID, err := r.verifyAuthorization(request.Authorization)
	if err != nil {
		return nil, &InvalidAuthorizationError{Cause: err}
	}

	endpointKey, err := request.PublicKey()
	if err != nil {
		return nil, err
	}

	address, err := keystore.PrivateAddress(endpointKey)
	if err != nil {
		return nil, err
	}

	gatewayKey, err := r.keys.KeyPair()
	if err != nil {
		return nil, err
	}
	gatewayCert, err := r.keys.Certificate()
	if err != nil {
		return nil, err
	}

	expiry := time.Now().AddDate(endpointCertValidityYears, 0, 0)
	endpointCert, err := keystore.IssueEndpointCertificate(endpointKey, gatewayKey, gatewayCert, expiry)
	if err != nil {
		return nil, err
	}

	err = r.endpoints.Upsert(ctx, models.LocalEndpoint{
		Address:       address,
		ApplicationID: applicationID,
		CreatedAt:     time.Now(),
	})
	if err != nil {
		return nil, err
	}
	log.Infof("registered endpoint %s for application %s", address, applicationID)

	bundle := wire.RegistrationBundle{
		EndpointCertificate: endpointCert.Raw,
		GatewayCertificate:  gatewayCert.Raw,
	}
	return bundle.Serialize()
}

func (r *Registration) verifyAuthorization(authorization []byte) (string, error) {
	key, err := r.keys.KeyPair()
	if err != nil {
		return "", err
	}

	token, err := jwt.Parse(string(authorization),
		func(t *jwt.Token) (interface{}, error) { return &key.PublicKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("unexpected claims type")
	}
	applicationID, ok := claims[applicationIDClaim].(string)
	if !ok || applicationID == "" {
		return "", errors.New("authorization has no application id")
	}
	return applicationID, nil
}
