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

// Package preregistration serves the capability-discovery step of
// registration over a local Unix socket. The caller never identifies
// itself; its identity is resolved from the socket's peer credentials, so
// an application cannot request an authorization for anybody but itself.
package preregistration

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"time"

	"github.com/fxamacker/cbor/v2"
	logging "gopkg.in/op/go-logging.v1"

	"github.com/efchatnet/relaygate/backend/endpoint"
	"github.com/efchatnet/relaygate/backend/models"
	"github.com/efchatnet/relaygate/backend/storage"
)

var log = logging.MustGetLogger("preregistration")

// Message codes of the pre-registration exchange. Every classified
// failure gets its own reply kind so callers can tell "you have no
// identity" from "the gateway is not ready".
const (
	MessageRequest               uint8 = 1
	MessageAuthorization         uint8 = 2
	MessageNoApplicationIdentity uint8 = 3
	MessageGatewayNotRegistered  uint8 = 4
)

// Frames are a 4-byte big-endian length followed by a CBOR body.
const maxFrameSize = 64 * 1024

// Message is one pre-registration frame in either direction.
type Message struct {
	Code          uint8  `cbor:"1,keyasint"`
	Authorization []byte `cbor:"2,keyasint,omitempty"`
}

// Resolver attributes a connection to an application. Implementations
// typically map the peer's OS credentials to an installed application id.
type Resolver interface {
	ResolveCallerApplicationID(conn net.Conn) (string, bool)
}

// Service answers pre-registration requests with one of three outcomes:
// an authorization, "you have no identity", or "the gateway itself is not
// registered yet".
type Service struct {
	registration *endpoint.Registration
	state        storage.StateStore
	resolver     Resolver
}

func NewService(registration *endpoint.Registration, state storage.StateStore, resolver Resolver) *Service {
	return &Service{registration: registration, state: state, resolver: resolver}
}

// Serve accepts connections until ctx is cancelled or the listener fails.
func (s *Service) Serve(ctx context.Context, listener net.Listener) error {
	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go s.handle(ctx, conn)
	}
}

func (s *Service) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(30 * time.Second))

	request, err := readMessage(conn)
	if err != nil {
		log.Warningf("dropping unreadable pre-registration request: %v", err)
		return
	}
	if request.Code != MessageRequest {
		log.Warningf("unexpected pre-registration message code %d", request.Code)
		return
	}

	reply, ok := s.reply(ctx, conn)
	if !ok {
		// Internal failure: drop the connection without a reply.
		return
	}
	if err := writeMessage(conn, reply); err != nil {
		log.Warningf("could not send pre-registration reply: %v", err)
	}
}

func (s *Service) reply(ctx context.Context, conn net.Conn) (Message, bool) {
	applicationID, ok := s.resolver.ResolveCallerApplicationID(conn)
	if !ok {
		log.Warningf("could not resolve application id of caller")
		return Message{Code: MessageNoApplicationIdentity}, true
	}

	state, err := s.state.GetRegistrationState(ctx)
	if err != nil {
		log.Errorf("could not read gateway registration state: %v", err)
		return Message{}, false
	}
	if state != models.RegistrationStateDone {
		log.Warningf("refusing pre-registration of %s: gateway not registered", applicationID)
		return Message{Code: MessageGatewayNotRegistered}, true
	}

	authorization, err := s.registration.Authorize(applicationID)
	if err != nil {
		log.Errorf("could not authorize %s: %v", applicationID, err)
		return Message{}, false
	}
	return Message{Code: MessageAuthorization, Authorization: authorization}, true
}

func readMessage(r io.Reader) (*Message, error) {
	var length uint32
	if err := binary.Read(r, binary.BigEndian, &length); err != nil {
		return nil, err
	}
	if length == 0 || length > maxFrameSize {
		return nil, errors.New("frame size out of bounds")
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	var m Message
	if err := cbor.Unmarshal(body, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func writeMessage(w io.Writer, m Message) error {
	body, err := cbor.Marshal(m)
	if err != nil {
		return err
	}
	if err := binary.Write(w, binary.BigEndian, uint32(len(body))); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}
