// Command sitrep answers natural-language questions about cybersecurity
// incident reports stored in PostgreSQL with pgvector embeddings. It provides
// a CLI (via Cobra) and an HTTP API.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/sitrep-go/cmd/sitrep/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
