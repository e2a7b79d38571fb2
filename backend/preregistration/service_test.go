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

package preregistration

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/efchatnet/relaygate/backend/endpoint"
	"github.com/efchatnet/relaygate/backend/keystore"
	"github.com/efchatnet/relaygate/backend/models"
	"github.com/efchatnet/relaygate/backend/storage/disk"
	"github.com/efchatnet/relaygate/backend/storage/memory"
)

type staticResolver struct {
	applicationID string
	ok            bool
}

func (r *staticResolver) ResolveCallerApplicationID(conn net.Conn) (string, bool) {
	return r.applicationID, r.ok
}

func startService(t *testing.T, store *memory.Store, resolver Resolver) string {
	t.Helper()
	blobs, err := disk.New(t.TempDir())
	require.NoError(t, err)
	registration := endpoint.NewRegistration(store, keystore.New(blobs))
	service := NewService(registration, store, resolver)

	socketPath := filepath.Join(t.TempDir(), "gw.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go service.Serve(ctx, listener)
	return socketPath
}

func exchange(t *testing.T, socketPath string) *Message {
	t.Helper()
	conn, err := net.DialTimeout("unix", socketPath, time.Second)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(5 * time.Second))

	require.NoError(t, writeMessage(conn, Message{Code: MessageRequest}))
	reply, err := readMessage(conn)
	require.NoError(t, err)
	return reply
}

func TestPreRegistrationIssuesAuthorization(t *testing.T) {
	require := require.New(t)
	store := memory.NewStore()
	require.NoError(store.SetRegistrationState(context.Background(), models.RegistrationStateDone))

	socketPath := startService(t, store, &staticResolver{applicationID: "com.example.app", ok: true})
	reply := exchange(t, socketPath)

	require.Equal(MessageAuthorization, reply.Code)
	require.NotEmpty(reply.Authorization)

	// The token names the resolved application
	token, _, err := jwt.NewParser().ParseUnverified(string(reply.Authorization), jwt.MapClaims{})
	require.NoError(err)
	claims := token.Claims.(jwt.MapClaims)
	require.Equal("com.example.app", claims["app"])
}

func TestPreRegistrationGatewayNotRegistered(t *testing.T) {
	require := require.New(t)
	store := memory.NewStore()

	socketPath := startService(t, store, &staticResolver{applicationID: "com.example.app", ok: true})
	reply := exchange(t, socketPath)

	require.Equal(MessageGatewayNotRegistered, reply.Code)
	require.Empty(reply.Authorization)
}

func TestPreRegistrationUnresolvedCaller(t *testing.T) {
	require := require.New(t)
	store := memory.NewStore()
	require.NoError(store.SetRegistrationState(context.Background(), models.RegistrationStateDone))

	socketPath := startService(t, store, &staticResolver{ok: false})
	reply := exchange(t, socketPath)

	require.Equal(MessageNoApplicationIdentity, reply.Code)
}

func TestMessageFrameRoundTrip(t *testing.T) {
	require := require.New(t)
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		writeMessage(server, Message{Code: MessageAuthorization, Authorization: []byte("token")})
	}()

	message, err := readMessage(client)
	require.NoError(err)
	require.Equal(MessageAuthorization, message.Code)
	require.Equal([]byte("token"), message.Authorization)
}

func TestReadMessageRejectsOversizedFrame(t *testing.T) {
	require := require.New(t)
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		server.Write([]byte{0xff, 0xff, 0xff, 0xff})
	}()

	_, err := readMessage(client)
	require.Error(err)
}
