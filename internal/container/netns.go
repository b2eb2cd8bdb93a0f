// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package container

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ifreq mirrors struct ifreq's name+flags prefix (enough for SIOC[GS]IFFLAGS;
// we never touch the union's other members).
type ifreq struct {
	name  [unix.IFNAMSIZ]byte
	flags int16
	_     [22]byte // pad out to the kernel's sizeof(struct ifreq)
}

// enableLoopback brings the "lo" interface up inside the current network
// namespace via the same SIOCGIFFLAGS/SIOCSIFFLAGS ioctl pair ifconfig
// uses, so localhost-bound tools (a build's own test server, say) still
// work once the container is isolated from the host's network.
func enableLoopback() error {
	sock, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM, unix.IPPROTO_UDP)
	if err != nil {
		return fmt.Errorf("container: socket(AF_INET, SOCK_DGRAM): %w", err)
	}
	defer unix.Close(sock)

	var req ifreq
	copy(req.name[:], "lo")

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(sock), unix.SIOCGIFFLAGS, uintptr(unsafe.Pointer(&req))); errno != 0 {
		return fmt.Errorf("container: ioctl(SIOCGIFFLAGS): %w", errno)
	}

	req.flags |= unix.IFF_UP | unix.IFF_RUNNING

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(sock), unix.SIOCSIFFLAGS, uintptr(unsafe.Pointer(&req))); errno != 0 {
		return fmt.Errorf("container: ioctl(SIOCSIFFLAGS): %w", errno)
	}
	return nil
}
