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
	"time"

	"github.com/efchatnet/relaygate/backend/keystore"
	"github.com/efchatnet/relaygate/backend/models"
	"github.com/efchatnet/relaygate/backend/parcels"
	"github.com/efchatnet/relaygate/backend/storage"
	"github.com/efchatnet/relaygate/backend/wire"
)

// GenerateCargo packs every external-gateway-bound parcel into signed
// cargo addressed to the remote relay.
type GenerateCargo struct {
	index        storage.ParcelStore
	parcels      *parcels.Service
	keys         *keystore.Keystore
	relayAddress string
}

func NewGenerateCargo(index storage.ParcelStore, service *parcels.Service, keys *keystore.Keystore, relayAddress string) *GenerateCargo {
	return &GenerateCargo{index: index, parcels: service, keys: keys, relayAddress: relayAddress}
}

// Generate returns zero or one cargo bundles: nothing pending means no
// cargo at all rather than an empty envelope.
func (g *GenerateCargo) Generate(ctx context.Context) ([][]byte, error) {
	stored, err := g.index.ListForLocation(ctx, models.RecipientLocationExternalGateway)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	var messages []wire.CargoMessage
	for _, parcel := range stored {
		if parcel.Expired(now) {
			continue
		}
		raw, err := g.parcels.Read(parcel)
		if err != nil {
			return nil, err
		}
		messages = append(messages, wire.CargoMessage{
			Type:    wire.CargoMessageTypeParcel,
			Payload: raw,
		})
	}
	if len(messages) == 0 {
		return nil, nil
	}

	payload, err := wire.EncodeCargoMessages(messages)
	if err != nil {
		return nil, err
	}

	key, err := g.keys.KeyPair()
	if err != nil {
		return nil, err
	}
	cert, err := g.keys.Certificate()
	if err != nil {
		return nil, err
	}

	cargo := wire.Cargo{
		RecipientAddress:  g.relayAddress,
		SenderCertificate: cert.Raw,
		CreationTime:      now,
		Payload:           payload,
	}
	serialized, err := wire.SerializeCargo(&cargo, key)
	if err != nil {
		return nil, err
	}
	return [][]byte{serialized}, nil
}
