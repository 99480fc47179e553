package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	_ = godotenv.Load()
	_ = godotenv.Overload(".env.local")

	if err := newCLI().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newCLI() *cli.App {
	return &cli.App{
		Name:  "disperse",
		Usage: "Send a native coin or a token to many addresses in one transaction",
		Description: `Recipients are given one per line as "address, amount" (comma or
whitespace separated). Lines that do not parse are skipped.

Network, contracts and wallet are configured through the environment
(.env and .env.local are read from the working directory).`,
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Commands: []*cli.Command{
			previewCommand(),
			infoCommand(),
			approveCommand(),
			revokeCommand(),
			sendCommand(),
			shellCommand(),
		},
	}
}
