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

// Package wire implements the binary envelopes exchanged between endpoint
// applications, gateways and couriers. All envelopes are CBOR maps; signed
// envelopes carry an RSA signature over the raw encoded body so that the
// exact signed bytes survive re-encoding.
package wire

import (
	"fmt"
)

// MalformedMessageError means the input bytes could not be decoded as the
// expected envelope. It is always safe to report verbatim to the peer.
type MalformedMessageError struct {
	Kind  string
	Cause error
}

func (e *MalformedMessageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("malformed %s: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("malformed %s", e.Kind)
}

func (e *MalformedMessageError) Unwrap() error { return e.Cause }

// InvalidMessageError means the envelope decoded fine but failed a
// cryptographic or semantic check (bad signature, expired, bad
// certificate). Distinct from MalformedMessageError so callers can reply
// with a different status.
type InvalidMessageError struct {
	Kind  string
	Cause error
}

func (e *InvalidMessageError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid %s: %v", e.Kind, e.Cause)
	}
	return fmt.Sprintf("invalid %s", e.Kind)
}

func (e *InvalidMessageError) Unwrap() error { return e.Cause }

func malformed(kind string, cause error) error {
	return &MalformedMessageError{Kind: kind, Cause: cause}
}

func invalid(kind string, cause error) error {
	return &InvalidMessageError{Kind: kind, Cause: cause}
}
