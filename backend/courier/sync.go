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

	"github.com/efchatnet/relaygate/backend/storage"
	"github.com/efchatnet/relaygate/backend/storage/disk"
)

// State of a courier synchronization run.
type State string

const (
	StateWaiting         State = "waiting"
	StateDeliveringCargo State = "delivering_cargo"
	StateCollectingCargo State = "collecting_cargo"
	StateFinished        State = "finished"
	StateError           State = "error"
)

// Sync sequences one full cargo exchange: deliver outgoing cargo, wait for
// the courier to turn around, collect and process inbound cargo, finish.
// State transitions are emitted on the channel handed to Run so an
// observer (UI, logs) can follow along.
type Sync struct {
	client    Client
	generator *GenerateCargo
	processor *ProcessCargo
	blobs     storage.BlobStore

	// Courier turnaround pause between delivering and collecting
	CollectWait time.Duration
}

func NewSync(client Client, generator *GenerateCargo, processor *ProcessCargo, blobs storage.BlobStore) *Sync {
	return &Sync{
		client:    client,
		generator: generator,
		processor: processor,
		blobs:     blobs,
		CollectWait: 2 * time.Second,
	}
}

// Run executes one sync cycle, reporting states on the channel. The
// channel is closed when the run ends; on failure the last state is
// StateError and the error is returned. Cancelling ctx aborts the cycle
// between phases.
func (s *Sync) Run(ctx context.Context, states chan<- State) error {
	defer close(states)

	err := s.run(ctx, states)
	if err != nil {
		log.Errorf("courier sync failed: %v", err)
		emit(ctx, states, StateError)
		return err
	}
	emit(ctx, states, StateFinished)
	return nil
}

func (s *Sync) run(ctx context.Context, states chan<- State) error {
	emit(ctx, states, StateDeliveringCargo)
	cargo, err := s.generator.Generate(ctx)
	if err != nil {
		return err
	}
	if len(cargo) > 0 {
		if err := s.client.DeliverCargo(ctx, cargo); err != nil {
			return err
		}
	}

	emit(ctx, states, StateWaiting)
	select {
	case <-time.After(s.CollectWait):
	case <-ctx.Done():
		return ctx.Err()
	}

	emit(ctx, states, StateCollectingCargo)
	inbound, err := s.client.ListInboundCargo(ctx)
	if err != nil {
		return err
	}
	for _, raw := range inbound {
		if _, err := s.blobs.StoreUnique(disk.NamespaceCargo, "cargo_", raw); err != nil {
			return err
		}
	}
	if err := s.processor.Process(ctx); err != nil {
		return err
	}
	return s.client.DeleteAll(ctx)
}

func emit(ctx context.Context, states chan<- State, state State) {
	select {
	case states <- state:
	case <-ctx.Done():
	}
}
