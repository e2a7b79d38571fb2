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

package endpoint

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

func collectFixture(t *testing.T) (*CollectParcels, *parcels.Service, *memory.Store) {
	t.Helper()
	blobs, err := disk.New(t.TempDir())
	require.NoError(t, err)
	store := memory.NewStore()
	service := parcels.NewService(store, blobs)
	return NewCollectParcels(store, service, store), service, store
}

func storeParcelFor(t *testing.T, service *parcels.Service, recipient string, ttl time.Duration) models.StoredParcel {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	cert, err := keystore.IssueGatewayCertificate(key, time.Now().Add(time.Hour))
	require.NoError(t, err)
	raw, err := wire.SerializeParcel(&wire.Parcel{
		RecipientAddress:  recipient,
		SenderCertificate: cert.Raw,
		MessageID:         "message-1",
		CreationTime:      time.Now().Add(-time.Minute),
		TTL:               ttl,
		Payload:           []byte("ciphertext"),
	}, key)
	require.NoError(t, err)

	stored, err := service.Store(context.Background(), raw, models.RecipientLocationLocalEndpoint)
	require.NoError(t, err)
	return *stored
}

func TestNextParcelsDeliversOnce(t *testing.T) {
	require := require.New(t)
	session, service, _ := collectFixture(t)
	ctx := context.Background()

	stored := storeParcelFor(t, service, "0recipient", time.Hour)

	deliveries, err := session.NextParcels(ctx, []models.MessageAddress{"0recipient"})
	require.NoError(err)
	require.Len(deliveries, 1)
	require.NotEmpty(deliveries[0].LocalID)

	raw, err := service.Read(stored)
	require.NoError(err)
	require.Equal(raw, deliveries[0].Parcel)

	// Same session never pushes the same parcel twice
	again, err := session.NextParcels(ctx, []models.MessageAddress{"0recipient"})
	require.NoError(err)
	require.Empty(again)
	require.True(session.AwaitingAck())
}

func TestNextParcelsSkipsOtherRecipients(t *testing.T) {
	require := require.New(t)
	session, service, _ := collectFixture(t)

	storeParcelFor(t, service, "0other", time.Hour)

	deliveries, err := session.NextParcels(context.Background(), []models.MessageAddress{"0recipient"})
	require.NoError(err)
	require.Empty(deliveries)
}

func TestProcessAckDeletesParcel(t *testing.T) {
	require := require.New(t)
	session, service, store := collectFixture(t)
	ctx := context.Background()

	stored := storeParcelFor(t, service, "0recipient", time.Hour)
	require.NoError(store.Register(ctx, stored))

	deliveries, err := session.NextParcels(ctx, []models.MessageAddress{"0recipient"})
	require.NoError(err)
	require.Len(deliveries, 1)

	require.NoError(session.ProcessAck(ctx, deliveries[0].LocalID))
	require.False(session.AwaitingAck())

	indexed, err := store.Get(ctx, stored.RecipientAddress, stored.SenderAddress, stored.MessageID)
	require.NoError(err)
	require.Nil(indexed)

	registered, err := store.IsRegistered(ctx, stored.RecipientAddress, stored.SenderAddress, stored.MessageID)
	require.NoError(err)
	require.False(registered)
}

// An acked parcel leaves no session state behind. Keep-alive sessions
// run indefinitely, so the per-session maps have to shrink as parcels
// are acked rather than grow for the session's lifetime.
func TestProcessAckPrunesSessionState(t *testing.T) {
	require := require.New(t)
	session, service, _ := collectFixture(t)
	ctx := context.Background()

	storeParcelFor(t, service, "0recipient", time.Hour)
	deliveries, err := session.NextParcels(ctx, []models.MessageAddress{"0recipient"})
	require.NoError(err)
	require.Len(deliveries, 1)
	require.NoError(session.ProcessAck(ctx, deliveries[0].LocalID))

	session.mu.Lock()
	require.Empty(session.sent)
	require.Empty(session.pending)
	session.mu.Unlock()
}

func TestProcessAckUnknownIDIsNoOp(t *testing.T) {
	require := require.New(t)
	session, _, _ := collectFixture(t)
	require.NoError(session.ProcessAck(context.Background(), "never-issued"))
}
