// reactnet - a select()-driven HTTP endpoint and TLS-capable fetch client.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"reactnet/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "reactnet: %v\n", err)
		os.Exit(1)
	}
}
