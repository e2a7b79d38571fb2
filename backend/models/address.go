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

package models

import (
	"strings"
)

// MessageAddress identifies the sender or recipient of a parcel. Private
// addresses start with "0" and are derived from the owner's public key;
// anything else is a public address reachable over the internet.
type MessageAddress string

// PrivateAddressPrefix marks addresses derived from a node public key.
const PrivateAddressPrefix = "0"

func (a MessageAddress) String() string { return string(a) }

// IsPrivate reports whether the address refers to a private node rather
// than an internet host.
func (a MessageAddress) IsPrivate() bool {
	return strings.HasPrefix(string(a), PrivateAddressPrefix)
}

// PrivateMessageAddress is a MessageAddress known to be private.
type PrivateMessageAddress string

func (a PrivateMessageAddress) String() string { return string(a) }

// ToMessageAddress widens a private address back to a generic one.
func (a PrivateMessageAddress) ToMessageAddress() MessageAddress {
	return MessageAddress(a)
}

// MessageId is the sender-scoped identifier of a parcel.
type MessageId string

func (id MessageId) String() string { return string(id) }

// RecipientLocation says where a stored parcel must eventually go.
type RecipientLocation string

const (
	// RecipientLocationLocalEndpoint marks parcels held for collection by
	// an application on this device.
	RecipientLocationLocalEndpoint RecipientLocation = "local"

	// RecipientLocationExternalGateway marks parcels bound for another
	// gateway via courier or internet relay.
	RecipientLocationExternalGateway RecipientLocation = "external"
)

// LocationForAddress resolves where a parcel for the given recipient must
// go: private addresses belong to endpoints on this device, anything else
// is bound for another gateway.
func LocationForAddress(recipient MessageAddress) RecipientLocation {
	if recipient.IsPrivate() {
		return RecipientLocationLocalEndpoint
	}
	return RecipientLocationExternalGateway
}

// RegistrationState tracks whether this gateway has completed its own
// registration with the remote public relay.
type RegistrationState string

const (
	RegistrationStateToDo RegistrationState = "todo"
	RegistrationStateDone RegistrationState = "done"
)
