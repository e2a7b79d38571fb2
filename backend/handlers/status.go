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
	"encoding/json"
	"net/http"

	"github.com/efchatnet/relaygate/backend/models"
	"github.com/efchatnet/relaygate/backend/storage"
)

// StatusHandler reports what the gateway is holding: how many
// applications registered and how much data waits for the next courier.
type StatusHandler struct {
	endpoints storage.EndpointStore
	parcels   storage.ParcelStore
	state     storage.StateStore
}

func NewStatusHandler(endpoints storage.EndpointStore, parcels storage.ParcelStore, state storage.StateStore) *StatusHandler {
	return &StatusHandler{endpoints: endpoints, parcels: parcels, state: state}
}

type statusReply struct {
	RegistrationState string `json:"registration_state"`
	Applications      int    `json:"applications"`
	OutgoingDataBytes int64  `json:"outgoing_data_bytes"`
}

func (h *StatusHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	state, err := h.state.GetRegistrationState(ctx)
	if err != nil {
		http.Error(w, "Failed to read gateway state", http.StatusInternalServerError)
		return
	}
	applications, err := h.endpoints.CountApplications(ctx)
	if err != nil {
		http.Error(w, "Failed to count applications", http.StatusInternalServerError)
		return
	}
	outgoing, err := h.parcels.TotalSizeForLocation(ctx, models.RecipientLocationExternalGateway)
	if err != nil {
		http.Error(w, "Failed to measure outgoing data", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(statusReply{
		RegistrationState: string(state),
		Applications:      applications,
		OutgoingDataBytes: outgoing.Bytes(),
	})
}
