// Package main runs the SPI bridge daemon.
package main

import (
	"go.viam.com/utils"

	"go.viam.com/spibridge/logging"
	"go.viam.com/spibridge/web/server"
)

var logger = logging.NewLogger("spibridge")

func main() {
	utils.ContextualMain(server.RunServer, logger)
}
