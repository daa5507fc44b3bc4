package controlplane

import (
	"net"

	"github.com/netsys-lab/akhftp/dataplane"
	"github.com/netsys-lab/akhftp/packet"
	"github.com/netsys-lab/akhftp/shared"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// RequestClose sends a CLOSE_REQUEST to peer. The response is read
// separately with WaitForCloseResponse. The returned header lets the
// caller match the transaction id of the response.
func RequestClose(sender dataplane.Sender, peer net.Addr) (packet.Header, error) {
	h := packet.BuildHeader(shared.MSG_CLOSE_REQUEST, packet.NewTransactionId())
	p := packet.BuildPacket(h, nil)
	defer p.Release()

	if _, err := sender.WriteTo(p.Bytes(), peer); err != nil {
		return h, errors.Wrap(err, "send close request")
	}
	log.Infof("Request close to %s, txn %d", peer, h.TransactionId)
	return h, nil
}
