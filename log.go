// Package bytecoin wires up logging for the transfer synchronization core's
// subpackages, fanning a single logger out across each of them.
package bytecoin

import (
	"github.com/btcsuite/btclog"

	"github.com/ardolabar/bytecoin/chainsync"
	"github.com/ardolabar/bytecoin/consumer"
)

// UseLogger sets a logger that all of chainsync's and consumer's package-level
// log output is written through. Subscriber and transfers currently log
// nothing of their own; callers that later add logging there should extend
// this fan-out.
func UseLogger(logger btclog.Logger) {
	chainsync.UseLogger(logger)
	consumer.UseLogger(logger)
}

// DisableLog disables all library log output across every subpackage.
func DisableLog() {
	chainsync.DisableLog()
	consumer.DisableLog()
}
