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

// Package handlers exposes the local protocol surface endpoint
// applications talk to: registration, parcel delivery, parcel collection
// and gateway status.
package handlers

import (
	"mime"
	"net/http"

	logging "gopkg.in/op/go-logging.v1"
)

var log = logging.MustGetLogger("handlers")

// Media types of the local protocol.
const (
	ContentTypeRegistrationRequest = "application/vnd.relaygate.registration-request"
	ContentTypeRegistrationBundle  = "application/vnd.relaygate.registration-bundle"
	ContentTypeParcel              = "application/vnd.relaygate.parcel"
)

// hasContentType matches the request's media type ignoring parameters.
func hasContentType(r *http.Request, want string) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mediaType == want
}
