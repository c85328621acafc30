package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/lagrangedao/go-compute-market/build"
	"github.com/urfave/cli/v2"
)

const (
	FlagRepo = "repo"
)

func main() {
	app := &cli.App{
		Name:                 "compute-market",
		Usage:                "A compute market node keeps the ledger of providers offering priced compute capacity, consumers funding balances, and the jobs between them.",
		EnableBashCompletion: true,
		Version:              build.UserVersion(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    FlagRepo,
				EnvVars: []string{"MARKET_PATH"},
				Usage:   "market repo path",
				Value:   "~/.swan/market",
			},
		},
		Commands: []*cli.Command{
			runCmd,
			walletCmd,
			ledgerCmd,
		},
	}
	app.Setup()

	if err := app.Run(os.Args); err != nil {
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}

func repoPath(cctx *cli.Context) (string, error) {
	p := cctx.String(FlagRepo)
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		p = filepath.Join(home, strings.TrimPrefix(p, "~"))
	}
	return p, nil
}
