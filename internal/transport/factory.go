// Package transport opens the configured raw socket backend.
package transport

import (
	"fmt"

	"firestige.xyz/strix/internal/config"
	"firestige.xyz/strix/pkg/rawsock"
	"firestige.xyz/strix/pkg/rawsock/afpacket"
)

// Open builds a raw socket from the transport configuration. The wiznet
// backend is not constructible here: it needs a register bus driver only an
// embedding application can supply.
func Open(cfg config.TransportConfig, clock rawsock.Clock) (rawsock.RawSocket, error) {
	switch cfg.Backend {
	case "afpacket":
		var opts afpacket.Config
		if err := cfg.DecodeOptions(&opts); err != nil {
			return nil, err
		}
		sock, err := afpacket.Open(opts, clock)
		if err != nil {
			return nil, err
		}
		return sock, nil
	}
	return nil, fmt.Errorf("unknown transport backend %q", cfg.Backend)
}
