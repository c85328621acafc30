package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/lagrangedao/go-compute-market/conf"
	"github.com/lagrangedao/go-compute-market/internal/initializer"
	"github.com/lagrangedao/go-compute-market/internal/ledger"
	"github.com/lagrangedao/go-compute-market/internal/market"
	"github.com/lagrangedao/go-compute-market/internal/models"
	"github.com/lagrangedao/go-compute-market/internal/seed"
	"github.com/lagrangedao/go-compute-market/util"
	"github.com/urfave/cli/v2"
)

var ledgerCmd = &cli.Command{
	Name:  "ledger",
	Usage: "Administer the ledger store directly; the node must not be running",
	Subcommands: []*cli.Command{
		ledgerAudit,
		ledgerExport,
		ledgerSeed,
		ledgerReset,
	},
}

func openLedger(cctx *cli.Context) (*ledger.Ledger, func(), error) {
	repo, err := repoPath(cctx)
	if err != nil {
		return nil, nil, err
	}
	l, store, err := initializer.OpenLedger(repo)
	if err != nil {
		return nil, nil, err
	}
	return l, func() { store.Close() }, nil
}

var ledgerAudit = &cli.Command{
	Name:  "audit",
	Usage: "Check the ledger invariants",
	Action: func(cctx *cli.Context) error {
		ctx := util.ReqContext(cctx.Context)
		l, closer, err := openLedger(cctx)
		if err != nil {
			return err
		}
		defer closer()

		report, err := l.CheckInvariants(ctx)
		if err != nil {
			return err
		}
		if report.Broken {
			color.Red("%s", report.String())
			return fmt.Errorf("ledger invariants broken")
		}
		color.Green("%s", report.String())
		return nil
	},
}

var ledgerExport = &cli.Command{
	Name:  "export",
	Usage: "Write a JSON snapshot of the ledger",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "out",
			Usage: "write the snapshot to a file instead of stdout",
		},
		&cli.BoolFlag{
			Name:  "upload",
			Usage: "upload the snapshot to the configured MCS bucket",
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := util.ReqContext(cctx.Context)
		l, closer, err := openLedger(cctx)
		if err != nil {
			return err
		}
		defer closer()

		if cctx.Bool("upload") {
			storage, err := market.NewStorageService(conf.GetConfig().MCS)
			if err != nil {
				return err
			}
			objectName := market.SnapshotObjectName(conf.GetConfig().API.NodeName, time.Now())
			file, err := storage.UploadSnapshot(ctx, l, objectName)
			if err != nil {
				return err
			}
			return json.NewEncoder(os.Stdout).Encode(models.SnapshotUploadResp{
				ObjectName: objectName,
				PayloadCid: file.PayloadCid,
			})
		}

		out := os.Stdout
		if path := cctx.String("out"); path != "" {
			f, err := os.Create(path)
			if err != nil {
				return err
			}
			defer f.Close()
			out = f
		}
		_, err = market.ExportSnapshot(ctx, l, out)
		return err
	},
}

var ledgerSeed = &cli.Command{
	Name:      "seed",
	Usage:     "Register providers and deposit consumer funds from a YAML file",
	ArgsUsage: "<file>",
	Action: func(cctx *cli.Context) error {
		ctx := util.ReqContext(cctx.Context)
		if cctx.NArg() != 1 {
			return fmt.Errorf("must specify the seed file")
		}
		f, err := seed.Load(cctx.Args().First())
		if err != nil {
			return err
		}

		l, closer, err := openLedger(cctx)
		if err != nil {
			return err
		}
		defer closer()

		res, err := f.Apply(ctx, l)
		fmt.Printf("registered %d providers, applied %d deposits totalling %s\n", res.Providers, res.Deposits, res.Deposited)
		return err
	},
}

var ledgerReset = &cli.Command{
	Name:  "reset",
	Usage: "Drop every provider, consumer and job",
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "really-do-it",
			Usage: "confirm the reset",
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := util.ReqContext(cctx.Context)
		if !cctx.Bool("really-do-it") {
			return fmt.Errorf("pass --really-do-it to erase the ledger")
		}
		l, closer, err := openLedger(cctx)
		if err != nil {
			return err
		}
		defer closer()

		if err := l.Reset(ctx); err != nil {
			return err
		}
		color.Yellow("ledger reset")
		return nil
	},
}
