// Command ember is a retrieval-augmented chat assistant. It keeps
// transcripts in a local badger database, remembers past exchanges in an
// embedding index, and rotates generation calls over a pool of API keys.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
