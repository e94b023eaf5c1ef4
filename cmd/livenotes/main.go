package main

import (
	"context"
	"fmt"
	"os"

	"github.com/vango-go/livenotes/pkg/core"
)

func main() {
	cmd := newRootCmd()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "livenotes: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode lets scripts tell a missing session or an unusable device or
// channel apart from other failures.
func exitCode(err error) int {
	switch {
	case core.IsNotFound(err):
		return 3
	case core.IsDeviceUnavailable(err):
		return 4
	case core.IsChannelError(err):
		return 5
	default:
		return 1
	}
}
