// Command authly-cli inspects Authly trust material and verifies endpoint
// connectivity.
package main

import (
	"os"

	"github.com/authly/authly-go/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
