package main

import (
	"context"
	"os"

	"github.com/dmitrijs2005/authcore/internal/authctl"
)

func main() {

	ctx := context.Background()
	app := authctl.NewApp(os.Stdout, os.Stdin)

	os.Exit(app.Run(ctx, os.Args[1:]))

}
