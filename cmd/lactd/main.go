// Command lactd is a privileged Linux daemon for GPU power, clock,
// fan, and performance control across AMD, Nvidia, and Intel GPUs.
package main

import (
	"fmt"
	"os"

	"github.com/openlact/lactd/cmd/lactd/command"
)

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	if err := command.App().Run(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
