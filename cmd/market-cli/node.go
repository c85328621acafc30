package main

import (
	"strconv"

	"github.com/lagrangedao/go-compute-market/util"
	"github.com/urfave/cli/v2"
)

var nodeCmd = &cli.Command{
	Name:  "node",
	Usage: "Inspect the market node",
	Subcommands: []*cli.Command{
		nodeInfo,
		nodeAudit,
	},
}

var nodeInfo = &cli.Command{
	Name:  "info",
	Usage: "Show node information",
	Action: func(cctx *cli.Context) error {
		ctx := util.ReqContext(cctx.Context)
		p, err := newPrinter(cctx)
		if err != nil {
			return err
		}
		client, closer, err := newClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		info, err := client.HostInfo(ctx)
		if err != nil {
			return err
		}
		return p.print(info, func() *util.VisualTable {
			return util.NewVisualTable([]string{"NODE", info.NodeName}, [][]string{
				{"NODE ID:", info.NodeID},
				{"ADDRESS:", info.NodeAddress},
				{"VERSION:", info.Version},
				{"BACKEND:", info.Backend},
				{"LAST JOB ID:", strconv.FormatUint(info.LastJobID, 10)},
				{"EVENT CLIENTS:", strconv.Itoa(info.EventClients)},
			}, nil)
		})
	},
}

var nodeAudit = &cli.Command{
	Name:  "audit",
	Usage: "Check the ledger invariants on the node",
	Action: func(cctx *cli.Context) error {
		ctx := util.ReqContext(cctx.Context)
		p, err := newPrinter(cctx)
		if err != nil {
			return err
		}
		client, closer, err := newClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		report, err := client.Audit(ctx)
		if err != nil {
			return err
		}
		return p.print(report, func() *util.VisualTable {
			var data [][]string
			for _, m := range report.Messages {
				data = append(data, []string{m})
			}
			if len(data) == 0 {
				data = append(data, []string{report.String()})
			}
			return util.NewVisualTable([]string{"AUDIT"}, data, nil)
		})
	},
}
