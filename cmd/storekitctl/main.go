// Command storekitctl drives the storekit bridge from a terminal: purchases, restores and a
// notification server, printing every delivered envelope as a JSON line.
package main

import (
	"fmt"
	"os"

	"github.com/mihaimyh/gostorekit/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
