package socket

import (
	"net"

	"github.com/netsec-ethz/scion-apps/pkg/appnet"
	"github.com/scionproto/scion/go/lib/snet"
	log "github.com/sirupsen/logrus"
)

// ListenSCION opens a SCION socket on addr, e.g. "19-ffaa:1:cf1,[127.0.0.1]:8000".
func ListenSCION(addr string) (net.PacketConn, error) {
	listenAddr, err := snet.ParseUDPAddr(addr)
	if err != nil {
		return nil, err
	}
	conn, err := appnet.Listen(listenAddr.Host)
	if err != nil {
		return nil, err
	}
	log.Infof("Listening on SCION address %s", listenAddr)
	return conn, nil
}

// DialSCION resolves remote, queries a default path to it and opens a
// local SCION socket. Replies come back with reversed paths, so the
// returned address is only needed for the first packet.
func DialSCION(localAddr, remote string) (net.PacketConn, net.Addr, error) {
	remoteAddr, err := appnet.ResolveUDPAddr(remote)
	if err != nil {
		return nil, nil, err
	}

	err = appnet.SetDefaultPath(remoteAddr)
	if err != nil {
		return nil, nil, err
	}

	var conn *snet.Conn
	if localAddr != "" {
		listenAddr, err := snet.ParseUDPAddr(localAddr)
		if err != nil {
			return nil, nil, err
		}
		conn, err = appnet.Listen(listenAddr.Host)
		if err != nil {
			return nil, nil, err
		}
	} else {
		conn, err = appnet.ListenPort(0)
		if err != nil {
			return nil, nil, err
		}
	}
	log.Infof("Dialing SCION address %s", remoteAddr)
	return conn, remoteAddr, nil
}
