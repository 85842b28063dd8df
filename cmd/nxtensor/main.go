// Command nxtensor extracts labeled windows from gridded datasets and
// assembles them into normalized multi-channel tensors.
//
// Usage:
//
//	nxtensor run --config extraction.yaml --output-dir ./output
//	nxtensor preprocess --config extraction.yaml
//	nxtensor extract --config extraction.yaml
//	nxtensor assemble --config extraction.yaml
package main

import (
	"os"

	"github.com/couchcryptid/nxtensor/internal/config"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		// Descriptor errors are reported before any work starts.
		if config.IsConfigurationError(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
