package akhftp

import (
	"context"

	"github.com/netsys-lab/akhftp/config"
	"github.com/netsys-lab/akhftp/utils"
)

type MPOptions struct {
	NumConns int
}

// MultiReceiver listens on NumConns consecutive ports starting at the
// given address and serves all of them the same way.
type MultiReceiver struct {
	Receivers []*Receiver
}

func ListenMP(local string, files FileLookup, cfg *config.Config, options *MPOptions) (*MultiReceiver, error) {
	numConns := 1
	if options != nil && options.NumConns > 0 {
		numConns = options.NumConns
	}
	mr := &MultiReceiver{}
	for i := 0; i < numConns; i++ {
		addr, err := utils.IncreasePortInAddress(local, i)
		if err != nil {
			mr.Close()
			return nil, err
		}
		r, err := Listen(addr, files, cfg)
		if err != nil {
			mr.Close()
			return nil, err
		}
		mr.Receivers = append(mr.Receivers, r)
	}
	return mr, nil
}

// Serve runs all receivers. The first error cancels the others.
func (mr *MultiReceiver) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errChan := make(chan error, len(mr.Receivers))
	for i := range mr.Receivers {
		go func(r *Receiver) {
			errChan <- r.Serve(ctx)
		}(mr.Receivers[i])
	}
	var first error
	for i := 0; i < len(mr.Receivers); i++ {
		if err := <-errChan; err != nil && first == nil {
			first = err
			cancel()
		}
	}
	return first
}

func (mr *MultiReceiver) Close() error {
	var first error
	for _, r := range mr.Receivers {
		if err := r.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
