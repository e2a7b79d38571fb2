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
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// PeerCredentialResolver maps the UID of the process on the other end of a
// Unix socket to an application id. The mapping is supplied by the host,
// which knows which UID each installed application runs as.
type PeerCredentialResolver struct {
	ApplicationIDForUID func(uid uint32) (string, bool)
}

func (r *PeerCredentialResolver) ResolveCallerApplicationID(conn net.Conn) (string, bool) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return "", false
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return "", false
	}

	var cred *unix.Ucred
	var credErr error
	err = raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil || credErr != nil {
		return "", false
	}
	return r.ApplicationIDForUID(cred.Uid)
}
