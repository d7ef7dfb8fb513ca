package main

import (
	"context"
	"fmt"
	"os"
)

var version = "dev"

func main() {
	ctx := context.Background()
	if err := newRoot(version).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
