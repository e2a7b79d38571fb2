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

package handlers

import (
	"context"
	"net/http"
	"sync"

	"github.com/efchatnet/relaygate/backend/courier"
)

// SyncHandler triggers a courier synchronization cycle. Only one cycle
// runs at a time; a trigger while one is running is answered with 409.
type SyncHandler struct {
	sync *courier.Sync

	mu      sync.Mutex
	running bool
}

func NewSyncHandler(courierSync *courier.Sync) *SyncHandler {
	return &SyncHandler{sync: courierSync}
}

func (h *SyncHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		http.Error(w, "Sync already running", http.StatusConflict)
		return
	}
	h.running = true
	h.mu.Unlock()

	states := make(chan courier.State, 8)
	go func() {
		defer func() {
			h.mu.Lock()
			h.running = false
			h.mu.Unlock()
		}()
		// Detached from the request: the cycle outlives the trigger call
		if err := h.sync.Run(context.Background(), states); err != nil {
			log.Errorf("triggered courier sync failed: %v", err)
		}
	}()
	go func() {
		for state := range states {
			log.Infof("courier sync: %s", state)
		}
	}()

	w.WriteHeader(http.StatusAccepted)
}
