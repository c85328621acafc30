package main

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/lagrangedao/go-compute-market/build"
	"github.com/lagrangedao/go-compute-market/internal/market"
	"github.com/lagrangedao/go-compute-market/wallet"
	"github.com/urfave/cli/v2"
)

const (
	FlagRepo    = "repo"
	FlagNode    = "node"
	FlagFrom    = "from"
	FlagNoSign  = "no-sign"
	FlagOutput  = "output"
	FlagNoColor = "no-color"
)

func main() {
	app := &cli.App{
		Name:                 "market-cli",
		Usage:                "A compute market cli is a client tool for providers and consumers of a market node.",
		EnableBashCompletion: true,
		Version:              build.UserVersion(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    FlagRepo,
				EnvVars: []string{"MARKET_PATH"},
				Usage:   "market repo path holding the wallet keystore",
				Value:   "~/.swan/market",
			},
			&cli.StringFlag{
				Name:    FlagNode,
				EnvVars: []string{"MARKET_NODE"},
				Usage:   "market api url",
				Value:   "http://127.0.0.1:8085/api/v1/market",
			},
			&cli.StringFlag{
				Name:    FlagFrom,
				EnvVars: []string{"MARKET_ADDRESS"},
				Usage:   "caller address for provider, consumer and job commands",
			},
			&cli.BoolFlag{
				Name:  FlagNoSign,
				Usage: "send requests unsigned, for nodes running without signature checks",
			},
			&cli.StringFlag{
				Name:    FlagOutput,
				Aliases: []string{"o"},
				Usage:   "output format: table, json or yaml",
				Value:   "table",
			},
			&cli.BoolFlag{
				Name:  FlagNoColor,
				Usage: "disable colored output",
			},
		},
		Commands: []*cli.Command{
			providerCmd,
			consumerCmd,
			jobCmd,
			nodeCmd,
		},
	}
	app.Setup()

	if err := app.Run(os.Args); err != nil {
		os.Stderr.WriteString("Error: " + err.Error() + "\n")
		os.Exit(1)
	}
}

// newClient builds an api client acting as --from. Requests are signed
// with the key of that address from the local keystore unless --no-sign
// is given. The returned func releases the keystore.
func newClient(cctx *cli.Context) (*market.Client, func(), error) {
	from := cctx.String(FlagFrom)
	if cctx.Bool(FlagNoSign) || from == "" {
		return market.NewClient(cctx.String(FlagNode), from, nil), func() {}, nil
	}

	repo := cctx.String(FlagRepo)
	if repo == "~" || strings.HasPrefix(repo, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, nil, err
		}
		repo = filepath.Join(home, strings.TrimPrefix(repo, "~"))
	}
	localWallet, err := wallet.SetupWallet(repo)
	if err != nil {
		return nil, nil, err
	}
	return market.NewClient(cctx.String(FlagNode), from, localWallet), func() { localWallet.Close() }, nil
}
