// Command prosodyctl renders transcripts locally or through a running
// prosodyd.
package main

import (
	"os"
)

var version = "0.1.0-dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
