// Package main is the entry point for the tannoy server.
package main

import (
	"github.com/samber/lo"

	"github.com/tannoy-player/tannoy/cmd"
	"github.com/tannoy-player/tannoy/config"
	"github.com/tannoy-player/tannoy/log"
)

func main() {
	lo.Must0(config.Setup())
	lo.Must0(log.Setup())

	cmd.Execute()
}
