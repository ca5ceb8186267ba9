// shadowshot - periodic screen capture server and command line tools
package main

import (
	"os"

	"github.com/phoneixtaperlabs/shadow-screenshot/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
