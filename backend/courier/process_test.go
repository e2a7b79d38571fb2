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

package courier

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/efchatnet/relaygate/backend/keystore"
	"github.com/efchatnet/relaygate/backend/models"
	"github.com/efchatnet/relaygate/backend/parcels"
	"github.com/efchatnet/relaygate/backend/storage/disk"
	"github.com/efchatnet/relaygate/backend/storage/memory"
	"github.com/efchatnet/relaygate/backend/wire"
)

type courierFixture struct {
	blobs   *disk.Store
	store   *memory.Store
	service *parcels.Service
	keys    *keystore.Keystore
}

func newCourierFixture(t *testing.T) *courierFixture {
	t.Helper()
	blobs, err := disk.New(t.TempDir())
	require.NoError(t, err)
	store := memory.NewStore()
	return &courierFixture{
		blobs:   blobs,
		store:   store,
		service: parcels.NewService(store, blobs),
		keys:    keystore.New(blobs),
	}
}

func (f *courierFixture) processor() *ProcessCargo {
	return NewProcessCargo(f.blobs, f.service, f.store)
}

func signedParcel(t *testing.T, recipient, messageID string) []byte {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	cert, err := keystore.IssueGatewayCertificate(key, time.Now().Add(time.Hour))
	require.NoError(t, err)
	raw, err := wire.SerializeParcel(&wire.Parcel{
		RecipientAddress:  recipient,
		SenderCertificate: cert.Raw,
		MessageID:         messageID,
		CreationTime:      time.Now().Add(-time.Minute),
		TTL:               time.Hour,
		Payload:           []byte("ciphertext"),
	}, key)
	require.NoError(t, err)
	return raw
}

func signedCargo(t *testing.T, keys *keystore.Keystore, messages []wire.CargoMessage) []byte {
	t.Helper()
	payload, err := wire.EncodeCargoMessages(messages)
	require.NoError(t, err)

	key, err := keys.KeyPair()
	require.NoError(t, err)
	cert, err := keys.Certificate()
	require.NoError(t, err)

	raw, err := wire.SerializeCargo(&wire.Cargo{
		RecipientAddress:  "0gateway",
		SenderCertificate: cert.Raw,
		CreationTime:      time.Now(),
		Payload:           payload,
	}, key)
	require.NoError(t, err)
	return raw
}

func TestProcessEmptyCargoStillPurges(t *testing.T) {
	require := require.New(t)
	f := newCourierFixture(t)

	require.NoError(f.processor().Process(context.Background()))

	names, err := f.blobs.List(disk.NamespaceCargo)
	require.NoError(err)
	require.Empty(names)
}

func TestProcessParcelCargo(t *testing.T) {
	require := require.New(t)
	f := newCourierFixture(t)
	ctx := context.Background()

	raw := signedCargo(t, f.keys, []wire.CargoMessage{
		{Type: wire.CargoMessageTypeParcel, Payload: signedParcel(t, "0recipient", "m1")},
	})
	_, err := f.blobs.StoreUnique(disk.NamespaceCargo, "cargo_", raw)
	require.NoError(err)

	require.NoError(f.processor().Process(ctx))

	stored, err := f.store.ListForLocation(ctx, models.RecipientLocationLocalEndpoint)
	require.NoError(err)
	require.Len(stored, 1)
	require.Equal(models.MessageAddress("0recipient"), stored[0].RecipientAddress)

	registered, err := f.store.IsRegistered(ctx, stored[0].RecipientAddress, stored[0].SenderAddress, stored[0].MessageID)
	require.NoError(err)
	require.True(registered)

	// Cargo is single-use
	names, err := f.blobs.List(disk.NamespaceCargo)
	require.NoError(err)
	require.Empty(names)
}

func TestProcessRoutesExternalBoundParcel(t *testing.T) {
	require := require.New(t)
	f := newCourierFixture(t)
	ctx := context.Background()

	// Public recipient address: the parcel transits this gateway on the
	// way to another one and is never offered for local collection.
	raw := signedCargo(t, f.keys, []wire.CargoMessage{
		{Type: wire.CargoMessageTypeParcel, Payload: signedParcel(t, "https://other.example.com", "m1")},
	})
	_, err := f.blobs.StoreUnique(disk.NamespaceCargo, "cargo_", raw)
	require.NoError(err)

	require.NoError(f.processor().Process(ctx))

	stored, err := f.store.ListForLocation(ctx, models.RecipientLocationExternalGateway)
	require.NoError(err)
	require.Len(stored, 1)

	registered, err := f.store.IsRegistered(ctx, stored[0].RecipientAddress, stored[0].SenderAddress, stored[0].MessageID)
	require.NoError(err)
	require.False(registered)
}

func TestProcessCollectionAckCargo(t *testing.T) {
	require := require.New(t)
	f := newCourierFixture(t)
	ctx := context.Background()

	// An outbound parcel awaiting the relay's ack
	stored, err := f.service.Store(ctx, signedParcel(t, "0remote", "m1"), models.RecipientLocationExternalGateway)
	require.NoError(err)
	require.NoError(f.store.Register(ctx, *stored))

	ackRaw, err := (&wire.ParcelCollectionAck{
		RecipientEndpointAddress: stored.RecipientAddress.String(),
		SenderEndpointAddress:    stored.SenderAddress.String(),
		ParcelID:                 stored.MessageID.String(),
	}).Serialize()
	require.NoError(err)

	raw := signedCargo(t, f.keys, []wire.CargoMessage{
		{Type: wire.CargoMessageTypeCollectionAck, Payload: ackRaw},
	})
	_, err = f.blobs.StoreUnique(disk.NamespaceCargo, "cargo_", raw)
	require.NoError(err)

	require.NoError(f.processor().Process(ctx))

	indexed, err := f.store.Get(ctx, stored.RecipientAddress, stored.SenderAddress, stored.MessageID)
	require.NoError(err)
	require.Nil(indexed)

	registered, err := f.store.IsRegistered(ctx, stored.RecipientAddress, stored.SenderAddress, stored.MessageID)
	require.NoError(err)
	require.False(registered)
}

func TestProcessSkipsMalformedCargo(t *testing.T) {
	require := require.New(t)
	f := newCourierFixture(t)
	ctx := context.Background()

	_, err := f.blobs.StoreUnique(disk.NamespaceCargo, "cargo_", []byte("garbage"))
	require.NoError(err)
	good := signedCargo(t, f.keys, []wire.CargoMessage{
		{Type: wire.CargoMessageTypeParcel, Payload: signedParcel(t, "0recipient", "m1")},
	})
	_, err = f.blobs.StoreUnique(disk.NamespaceCargo, "cargo_", good)
	require.NoError(err)

	require.NoError(f.processor().Process(ctx))

	// The well-formed cargo was still processed
	stored, err := f.store.ListForLocation(ctx, models.RecipientLocationLocalEndpoint)
	require.NoError(err)
	require.Len(stored, 1)
}

func TestProcessDropsBadParcelInsideCargo(t *testing.T) {
	require := require.New(t)
	f := newCourierFixture(t)
	ctx := context.Background()

	raw := signedCargo(t, f.keys, []wire.CargoMessage{
		{Type: wire.CargoMessageTypeParcel, Payload: []byte("not a parcel")},
	})
	_, err := f.blobs.StoreUnique(disk.NamespaceCargo, "cargo_", raw)
	require.NoError(err)

	require.NoError(f.processor().Process(ctx))

	stored, err := f.store.ListForLocation(ctx, models.RecipientLocationLocalEndpoint)
	require.NoError(err)
	require.Empty(stored)
}

func TestGenerateCargoPacksOutboundParcels(t *testing.T) {
	require := require.New(t)
	f := newCourierFixture(t)
	ctx := context.Background()

	parcelRaw := signedParcel(t, "0remote", "m1")
	_, err := f.service.Store(ctx, parcelRaw, models.RecipientLocationExternalGateway)
	require.NoError(err)
	// A parcel for local collection must not end up in cargo
	_, err = f.service.Store(ctx, signedParcel(t, "0local", "m2"), models.RecipientLocationLocalEndpoint)
	require.NoError(err)

	generator := NewGenerateCargo(f.store, f.service, f.keys, "https://relay.example.com")
	cargo, err := generator.Generate(ctx)
	require.NoError(err)
	require.Len(cargo, 1)

	decoded, err := wire.DeserializeCargo(cargo[0])
	require.NoError(err)
	require.Equal("https://relay.example.com", decoded.RecipientAddress)
	_, err = decoded.Verify()
	require.NoError(err)

	message, err := decoded.Messages().Next()
	require.NoError(err)
	require.Equal(wire.CargoMessageTypeParcel, message.Type)
	require.Equal(parcelRaw, message.Payload)
}

func TestGenerateCargoNothingPending(t *testing.T) {
	require := require.New(t)
	f := newCourierFixture(t)

	generator := NewGenerateCargo(f.store, f.service, f.keys, "https://relay.example.com")
	cargo, err := generator.Generate(context.Background())
	require.NoError(err)
	require.Nil(cargo)
}
