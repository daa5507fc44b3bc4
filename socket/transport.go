package socket

import (
	"fmt"
	"net"

	log "github.com/sirupsen/logrus"
)

const (
	NET_UDP   = "udp"
	NET_SCION = "scion"
)

// Listen opens a socket bound to addr on the given network.
func Listen(network, addr string) (net.PacketConn, error) {
	log.Debugf("Listen on %s network=%s", addr, network)
	switch network {
	case NET_UDP:
		return ListenUDP(addr)
	case NET_SCION:
		return ListenSCION(addr)
	}
	return nil, fmt.Errorf("unsupported network %q", network)
}

// Dial opens an unconnected socket suitable for talking to remote and
// returns the resolved remote address.
func Dial(network, localAddr, remote string) (net.PacketConn, net.Addr, error) {
	log.Debugf("Dial %s from %q network=%s", remote, localAddr, network)
	switch network {
	case NET_UDP:
		return DialUDP(localAddr, remote)
	case NET_SCION:
		return DialSCION(localAddr, remote)
	}
	return nil, nil, fmt.Errorf("unsupported network %q", network)
}
