// Command radosctl manages pools, objects, attributes and snapshots on a
// cluster through the rados client.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "radosctl: %v\n", err)
		stop()
		os.Exit(1)
	}
}
