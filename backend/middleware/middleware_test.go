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

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestLocalOnlyAllowsLoopback(t *testing.T) {
	require := require.New(t)
	handler := LocalOnly(okHandler())

	for _, addr := range []string{"127.0.0.1:5000", "[::1]:5000"} {
		req := httptest.NewRequest("GET", "/v1/status", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(http.StatusNoContent, rec.Code, addr)
	}
}

func TestLocalOnlyRejectsRemote(t *testing.T) {
	require := require.New(t)
	handler := LocalOnly(okHandler())

	for _, addr := range []string{"10.1.2.3:5000", "203.0.113.9:443", "garbage"} {
		req := httptest.NewRequest("GET", "/v1/status", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(http.StatusForbidden, rec.Code, addr)
	}
}

func TestLoggingPassesThrough(t *testing.T) {
	require := require.New(t)
	handler := Logging(okHandler())

	req := httptest.NewRequest("GET", "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(http.StatusNoContent, rec.Code)
}

// The writer handed to wrapped handlers must keep supporting connection
// hijacking, or websocket upgrades behind the middleware break.
func TestLoggingWriterSupportsHijack(t *testing.T) {
	require := require.New(t)

	var sawHijacker, sawUnwrap bool
	handler := Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sawHijacker = w.(http.Hijacker)
		_, sawUnwrap = w.(interface{ Unwrap() http.ResponseWriter })
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/v1/parcel-collection", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	require.True(sawHijacker)
	require.True(sawUnwrap)
}

func TestLoggingHijackRequiresCapableWriter(t *testing.T) {
	require := require.New(t)
	recorder := &statusRecorder{ResponseWriter: httptest.NewRecorder()}

	_, _, err := recorder.Hijack()
	require.Error(err)
}
