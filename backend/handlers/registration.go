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

	"github.com/efchatnet/relaygate/backend/endpoint"
	"github.com/efchatnet/relaygate/backend/wire"
)

type RegistrationHandler struct {
	registration *endpoint.Registration
}

func NewRegistrationHandler(registration *endpoint.Registration) *RegistrationHandler {
	return &RegistrationHandler{registration: registration}
}

// Register completes an endpoint registration. Malformed requests and
// invalid authorizations get distinct replies so clients can tell a coding
// bug from a stale token.
func (h *RegistrationHandler) Register(w http.ResponseWriter, r *http.Request) {
	if !hasContentType(r, ContentTypeRegistrationRequest) {
		http.Error(w,
			fmt.Sprintf("Content type %s is required", ContentTypeRegistrationRequest),
			http.StatusUnsupportedMediaType)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request", http.StatusInternalServerError)
		return
	}

	request, err := wire.DeserializeRegistrationRequest(body)
	if err != nil {
		http.Error(w, "malformed registration request", http.StatusBadRequest)
		return
	}

	bundle, err := h.registration.Register(r.Context(), request)
	if err != nil {
		var invalidAuth *endpoint.InvalidAuthorizationError
		var malformed *wire.MalformedMessageError
		switch {
		case errors.As(err, &invalidAuth):
			http.Error(w, "invalid authorization encapsulated in request", http.StatusBadRequest)
		case errors.As(err, &malformed):
			http.Error(w, "malformed registration request", http.StatusBadRequest)
		default:
			log.Errorf("registration failed: %v", err)
			http.Error(w, "Failed to register endpoint", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", ContentTypeRegistrationBundle)
	w.WriteHeader(http.StatusOK)
	w.Write(bundle)
}
