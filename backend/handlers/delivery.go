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
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/efchatnet/relaygate/backend/models"
	"github.com/efchatnet/relaygate/backend/parcels"
	"github.com/efchatnet/relaygate/backend/wire"
)

type DeliveryHandler struct {
	parcels *parcels.Service
}

func NewDeliveryHandler(service *parcels.Service) *DeliveryHandler {
	return &DeliveryHandler{parcels: service}
}

// Deliver accepts a parcel from a local application for relay to an
// external gateway. The content type is checked before any parcel byte is
// parsed.
func (h *DeliveryHandler) Deliver(w http.ResponseWriter, r *http.Request) {
	if !hasContentType(r, ContentTypeParcel) {
		http.Error(w,
			fmt.Sprintf("Content type %s is required", ContentTypeParcel),
			http.StatusUnsupportedMediaType)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request", http.StatusInternalServerError)
		return
	}

	_, err = h.parcels.Store(r.Context(), body, models.RecipientLocationExternalGateway)
	if err != nil {
		var malformed *wire.MalformedMessageError
		var invalid *wire.InvalidMessageError
		switch {
		case errors.As(err, &malformed):
			http.Error(w, "parcel is malformed", http.StatusBadRequest)
		case errors.As(err, &invalid):
			http.Error(w, "parcel is invalid", http.StatusForbidden)
		default:
			log.Errorf("storing delivered parcel failed: %v", err)
			http.Error(w, "Failed to store parcel", http.StatusInternalServerError)
		}
		return
	}

	w.WriteHeader(http.StatusAccepted)
}
