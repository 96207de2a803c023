package main

import (
	"context"
	"os"

	"github.com/spf13/afero"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app := &App{FS: afero.NewOsFs(), Out: os.Stdout, LogOut: os.Stderr}
	if err := NewRootCommand(app).ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
