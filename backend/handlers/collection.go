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
	"time"

	"github.com/gorilla/websocket"

	"github.com/efchatnet/relaygate/backend/endpoint"
	"github.com/efchatnet/relaygate/backend/handshake"
	"github.com/efchatnet/relaygate/backend/keystore"
	"github.com/efchatnet/relaygate/backend/models"
	"github.com/efchatnet/relaygate/backend/wire"
)

const (
	// HeaderKeepAlive keeps a collection session open after all pending
	// parcels are delivered and acknowledged.
	HeaderKeepAlive = "X-Relay-Keep-Alive"

	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second

	// Maximum frame size accepted from peers.
	maxFrameSize = 8 * 1024 * 1024

	// How often a session re-checks for newly arrived parcels.
	defaultPollInterval = 3 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin policy is enforced after the upgrade so browsers get a
	// proper close reason instead of a broken handshake
	CheckOrigin: func(r *http.Request) bool { return true },
}

// CollectionHandler serves the long-lived parcel collection sessions.
type CollectionHandler struct {
	newSession func() *endpoint.CollectParcels

	// PollInterval overrides the re-check cadence, mainly for tests.
	PollInterval time.Duration
}

func NewCollectionHandler(newSession func() *endpoint.CollectParcels) *CollectionHandler {
	return &CollectionHandler{newSession: newSession, PollInterval: defaultPollInterval}
}

// Collect runs one collection session: challenge, handshake verification,
// then concurrent parcel delivery and ack processing until the client is
// done or disconnects.
func (h *CollectionHandler) Collect(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxFrameSize)

	if r.Header.Get("Origin") != "" {
		// The client is most likely a (malicious) web page
		closeSession(conn, websocket.ClosePolicyViolation,
			"Web browser requests are disabled for security reasons")
		return
	}

	addresses, ok := h.doHandshake(conn)
	if !ok {
		return
	}

	keepAlive := r.Header.Get(HeaderKeepAlive) == "on"
	h.serve(r.Context(), conn, addresses, keepAlive)
}

// doHandshake sends the nonce challenge and verifies the response. Every
// valid nonce signature authorizes collection for one endpoint address.
func (h *CollectionHandler) doHandshake(conn *websocket.Conn) ([]models.MessageAddress, bool) {
	nonce := handshake.GenerateNonce()
	challenge := wire.HandshakeChallenge{Nonce: nonce}
	frame, err := challenge.Serialize()
	if err != nil {
		return nil, false
	}
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return nil, false
	}

	_, raw, err := conn.ReadMessage()
	if err != nil {
		return nil, false
	}
	response, err := wire.DeserializeHandshakeResponse(raw)
	if err != nil {
		closeSession(conn, websocket.CloseUnsupportedData, "Invalid handshake response")
		return nil, false
	}

	if len(response.NonceSignatures) == 0 {
		closeSession(conn, websocket.CloseUnsupportedData,
			"Handshake response did not include any nonce signatures")
		return nil, false
	}

	var addresses []models.MessageAddress
	for _, signature := range response.NonceSignatures {
		cert, err := handshake.VerifySignature(signature, nonce)
		if err != nil {
			closeSession(conn, websocket.CloseUnsupportedData,
				"Handshake response included invalid nonce signatures")
			return nil, false
		}
		address, err := keystore.CertificateAddress(cert)
		if err != nil {
			closeSession(conn, websocket.CloseUnsupportedData,
				"Handshake response included invalid nonce signatures")
			return nil, false
		}
		addresses = append(addresses, address.ToMessageAddress())
	}
	return addresses, true
}

func (h *CollectionHandler) serve(parent context.Context, conn *websocket.Conn, addresses []models.MessageAddress, keepAlive bool) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	session := h.newSession()

	// Ack frames arrive concurrently with deliveries and are matched by
	// correlation id, never by position.
	go func() {
		defer cancel()
		for {
			messageType, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if messageType != websocket.TextMessage {
				closeSession(conn, websocket.CloseUnsupportedData, "Invalid ack")
				return
			}
			if err := session.ProcessAck(ctx, string(raw)); err != nil {
				log.Errorf("processing parcel ack failed: %v", err)
				return
			}
		}
	}()

	ticker := time.NewTicker(h.PollInterval)
	defer ticker.Stop()

	for {
		deliveries, err := session.NextParcels(ctx, addresses)
		if err != nil {
			if ctx.Err() == nil {
				log.Errorf("listing parcels for collection failed: %v", err)
				closeSession(conn, websocket.CloseInternalServerErr, "Internal error")
			}
			return
		}

		for _, delivery := range deliveries {
			frame, err := (&wire.ParcelDelivery{
				LocalID: delivery.LocalID,
				Parcel:  delivery.Parcel,
			}).Serialize()
			if err != nil {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return
			}
		}

		if !keepAlive && len(deliveries) == 0 && !session.AwaitingAck() {
			closeSession(conn, websocket.CloseNormalClosure, "All available parcels delivered")
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func closeSession(conn *websocket.Conn, code int, reason string) {
	message := websocket.FormatCloseMessage(code, reason)
	conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(writeWait))
}
