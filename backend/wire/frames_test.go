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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHandshakeChallengeRoundTrip(t *testing.T) {
	require := require.New(t)

	raw, err := (&HandshakeChallenge{Nonce: []byte{1, 2, 3}}).Serialize()
	require.NoError(err)

	challenge, err := DeserializeHandshakeChallenge(raw)
	require.NoError(err)
	require.Equal([]byte{1, 2, 3}, challenge.Nonce)
}

func TestHandshakeChallengeEmptyNonce(t *testing.T) {
	require := require.New(t)

	raw, err := (&HandshakeChallenge{}).Serialize()
	require.NoError(err)

	_, err = DeserializeHandshakeChallenge(raw)
	var malformed *MalformedMessageError
	require.ErrorAs(err, &malformed)
}

func TestHandshakeResponseRoundTrip(t *testing.T) {
	require := require.New(t)

	raw, err := (&HandshakeResponse{
		NonceSignatures: [][]byte{{0xaa}, {0xbb}},
	}).Serialize()
	require.NoError(err)

	response, err := DeserializeHandshakeResponse(raw)
	require.NoError(err)
	require.Len(response.NonceSignatures, 2)
}

func TestParcelDeliveryRoundTrip(t *testing.T) {
	require := require.New(t)

	raw, err := (&ParcelDelivery{LocalID: "id-1", Parcel: []byte("bytes")}).Serialize()
	require.NoError(err)

	delivery, err := DeserializeParcelDelivery(raw)
	require.NoError(err)
	require.Equal("id-1", delivery.LocalID)
	require.Equal([]byte("bytes"), delivery.Parcel)
}

func TestParcelDeliveryMissingLocalID(t *testing.T) {
	require := require.New(t)

	raw, err := (&ParcelDelivery{Parcel: []byte("bytes")}).Serialize()
	require.NoError(err)

	_, err = DeserializeParcelDelivery(raw)
	var malformed *MalformedMessageError
	require.ErrorAs(err, &malformed)
}

func TestRegistrationRequestMissingFields(t *testing.T) {
	require := require.New(t)

	raw, err := (&RegistrationRequest{EndpointPublicKey: []byte("key")}).Serialize()
	require.NoError(err)

	_, err = DeserializeRegistrationRequest(raw)
	var malformed *MalformedMessageError
	require.ErrorAs(err, &malformed)
}

func TestRegistrationBundleRoundTrip(t *testing.T) {
	require := require.New(t)

	raw, err := (&RegistrationBundle{
		EndpointCertificate: []byte("endpoint der"),
		GatewayCertificate:  []byte("gateway der"),
	}).Serialize()
	require.NoError(err)

	bundle, err := DeserializeRegistrationBundle(raw)
	require.NoError(err)
	require.Equal([]byte("endpoint der"), bundle.EndpointCertificate)
	require.Equal([]byte("gateway der"), bundle.GatewayCertificate)
}
