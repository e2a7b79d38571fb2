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
	"crypto/rand"
	"crypto/rsa"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/efchatnet/relaygate/backend/endpoint"
	"github.com/efchatnet/relaygate/backend/keystore"
	"github.com/efchatnet/relaygate/backend/middleware"
	"github.com/efchatnet/relaygate/backend/models"
	"github.com/efchatnet/relaygate/backend/wire"
)

func collectionServer(t *testing.T, f *fixture) *httptest.Server {
	t.Helper()
	handler := NewCollectionHandler(func() *endpoint.CollectParcels {
		return endpoint.NewCollectParcels(f.store, f.service, f.store)
	})
	handler.PollInterval = 20 * time.Millisecond
	server := httptest.NewServer(http.HandlerFunc(handler.Collect))
	t.Cleanup(server.Close)
	return server
}

func dialCollection(t *testing.T, server *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readClose reads until the peer closes and returns the close code and text.
func readClose(t *testing.T, conn *websocket.Conn) (int, string) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		closeErr, ok := err.(*websocket.CloseError)
		require.True(t, ok, "expected close error, got %v", err)
		return closeErr.Code, closeErr.Text
	}
}

func readChallenge(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	challenge, err := wire.DeserializeHandshakeChallenge(raw)
	require.NoError(t, err)
	return challenge.Nonce
}

func sendHandshakeResponse(t *testing.T, conn *websocket.Conn, signatures [][]byte) {
	t.Helper()
	raw, err := (&wire.HandshakeResponse{NonceSignatures: signatures}).Serialize()
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, raw))
}

// The websocket upgrade must survive the middleware stack the server
// actually mounts: the logging wrapper has to expose hijacking or the
// upgrader fails with a 500 before the challenge is sent.
func TestCollectUpgradesThroughRouterMiddleware(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)

	handler := NewCollectionHandler(func() *endpoint.CollectParcels {
		return endpoint.NewCollectParcels(f.store, f.service, f.store)
	})
	handler.PollInterval = 20 * time.Millisecond

	r := mux.NewRouter()
	r.Use(middleware.Logging)
	api := r.PathPrefix("/v1").Subrouter()
	api.Use(middleware.LocalOnly)
	api.HandleFunc("/parcel-collection", handler.Collect).Methods("GET")

	server := httptest.NewServer(r)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/v1/parcel-collection"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(err)
	t.Cleanup(func() { conn.Close() })

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(err)
	cert, err := keystore.IssueGatewayCertificate(key, time.Now().Add(time.Hour))
	require.NoError(err)

	nonce := readChallenge(t, conn)
	signature, err := wire.SignDetached(nonce, key, cert.Raw)
	require.NoError(err)
	sendHandshakeResponse(t, conn, [][]byte{signature})

	code, text := readClose(t, conn)
	require.Equal(websocket.CloseNormalClosure, code)
	require.Equal("All available parcels delivered", text)
}

func TestCollectRejectsBrowserOrigin(t *testing.T) {
	require := require.New(t)
	server := collectionServer(t, newFixture(t))

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	conn := dialCollection(t, server, header)

	code, text := readClose(t, conn)
	require.Equal(websocket.ClosePolicyViolation, code)
	require.Equal("Web browser requests are disabled for security reasons", text)
}

func TestCollectRejectsEmptyHandshakeResponse(t *testing.T) {
	require := require.New(t)
	server := collectionServer(t, newFixture(t))
	conn := dialCollection(t, server, nil)

	readChallenge(t, conn)
	sendHandshakeResponse(t, conn, nil)

	code, text := readClose(t, conn)
	require.Equal(websocket.CloseUnsupportedData, code)
	require.Equal("Handshake response did not include any nonce signatures", text)
}

func TestCollectRejectsInvalidNonceSignature(t *testing.T) {
	require := require.New(t)
	server := collectionServer(t, newFixture(t))
	conn := dialCollection(t, server, nil)

	readChallenge(t, conn)
	sendHandshakeResponse(t, conn, [][]byte{[]byte("not a signature")})

	code, text := readClose(t, conn)
	require.Equal(websocket.CloseUnsupportedData, code)
	require.Equal("Handshake response included invalid nonce signatures", text)
}

func TestCollectRejectsGarbageHandshakeFrame(t *testing.T) {
	require := require.New(t)
	server := collectionServer(t, newFixture(t))
	conn := dialCollection(t, server, nil)

	readChallenge(t, conn)
	// Valid CBOR is required; an empty binary frame is not a response
	require.NoError(conn.WriteMessage(websocket.BinaryMessage, []byte{0xff, 0xff}))

	code, text := readClose(t, conn)
	require.Equal(websocket.CloseUnsupportedData, code)
	require.Equal("Invalid handshake response", text)
}

func TestCollectNoParcelsClosesNormally(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	server := collectionServer(t, f)
	conn := dialCollection(t, server, nil)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(err)
	cert, err := keystore.IssueGatewayCertificate(key, time.Now().Add(time.Hour))
	require.NoError(err)

	nonce := readChallenge(t, conn)
	signature, err := wire.SignDetached(nonce, key, cert.Raw)
	require.NoError(err)
	sendHandshakeResponse(t, conn, [][]byte{signature})

	code, text := readClose(t, conn)
	require.Equal(websocket.CloseNormalClosure, code)
	require.Equal("All available parcels delivered", text)
}

func TestCollectDeliversAndAcks(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	server := collectionServer(t, f)

	// The collecting endpoint's own key; parcels are addressed to the
	// address derived from it.
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(err)
	cert, err := keystore.IssueGatewayCertificate(key, time.Now().Add(time.Hour))
	require.NoError(err)
	address, err := keystore.PrivateAddress(&key.PublicKey)
	require.NoError(err)

	parcelRaw := signedParcel(t, address.String())
	stored, err := f.service.Store(context.Background(), parcelRaw, models.RecipientLocationLocalEndpoint)
	require.NoError(err)

	conn := dialCollection(t, server, nil)
	nonce := readChallenge(t, conn)
	signature, err := wire.SignDetached(nonce, key, cert.Raw)
	require.NoError(err)
	sendHandshakeResponse(t, conn, [][]byte{signature})

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(err)
	delivery, err := wire.DeserializeParcelDelivery(raw)
	require.NoError(err)
	require.Equal(parcelRaw, delivery.Parcel)

	// Ack it: the parcel gets deleted and the session winds down
	require.NoError(conn.WriteMessage(websocket.TextMessage, []byte(delivery.LocalID)))

	code, text := readClose(t, conn)
	require.Equal(websocket.CloseNormalClosure, code)
	require.Equal("All available parcels delivered", text)

	indexed, err := f.store.Get(context.Background(), stored.RecipientAddress, stored.SenderAddress, stored.MessageID)
	require.NoError(err)
	require.Nil(indexed)
}

func TestCollectRejectsBinaryAck(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	server := collectionServer(t, f)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(err)
	cert, err := keystore.IssueGatewayCertificate(key, time.Now().Add(time.Hour))
	require.NoError(err)

	// Keep-alive so the session does not wind down before the bad ack
	header := http.Header{HeaderKeepAlive: []string{"on"}}
	conn := dialCollection(t, server, header)

	nonce := readChallenge(t, conn)
	signature, err := wire.SignDetached(nonce, key, cert.Raw)
	require.NoError(err)
	sendHandshakeResponse(t, conn, [][]byte{signature})

	require.NoError(conn.WriteMessage(websocket.BinaryMessage, []byte("binary ack")))

	code, text := readClose(t, conn)
	require.Equal(websocket.CloseUnsupportedData, code)
	require.Equal("Invalid ack", text)
}

func TestCollectKeepAliveStaysOpen(t *testing.T) {
	require := require.New(t)
	f := newFixture(t)
	server := collectionServer(t, f)

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(err)
	cert, err := keystore.IssueGatewayCertificate(key, time.Now().Add(time.Hour))
	require.NoError(err)

	header := http.Header{HeaderKeepAlive: []string{"on"}}
	conn := dialCollection(t, server, header)

	nonce := readChallenge(t, conn)
	signature, err := wire.SignDetached(nonce, key, cert.Raw)
	require.NoError(err)
	sendHandshakeResponse(t, conn, [][]byte{signature})

	// With keep-alive on and nothing to deliver the server sends nothing
	// and keeps the session open past several poll cycles.
	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err = conn.ReadMessage()
	netErr, ok := err.(interface{ Timeout() bool })
	require.True(ok, "expected timeout, got %v", err)
	require.True(netErr.Timeout())
}
