// Command pamana is the terminal client for the campus notes service.
package main

import (
	"context"
	"fmt"
	"os"

	"pamana/notes/internal/gateway"
)

func main() {
	if err := rootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", gateway.UserMessage(err))
		os.Exit(1)
	}
}
