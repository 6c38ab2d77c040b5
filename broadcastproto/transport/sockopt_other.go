//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package transport

import (
	"net"
	"syscall"
)

func reuseControl(network, address string, c syscall.RawConn) error {
	return nil
}

func bindHost(group net.IP) string {
	return "0.0.0.0"
}
