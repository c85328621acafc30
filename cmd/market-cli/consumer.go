package main

import (
	"fmt"
	"strconv"

	"github.com/lagrangedao/go-compute-market/util"
	"github.com/urfave/cli/v2"
)

var consumerCmd = &cli.Command{
	Name:  "consumer",
	Usage: "Fund a consumer balance",
	Subcommands: []*cli.Command{
		consumerFund,
		consumerGet,
	},
}

var consumerFund = &cli.Command{
	Name:      "fund",
	Usage:     "Add funds to the --from consumer",
	ArgsUsage: "<amount>",
	Action: func(cctx *cli.Context) error {
		ctx := util.ReqContext(cctx.Context)
		if cctx.NArg() != 1 {
			return fmt.Errorf("must specify the amount")
		}
		amount, err := strconv.ParseUint(cctx.Args().First(), 10, 64)
		if err != nil {
			return fmt.Errorf("failed to parse amount: %s", cctx.Args().First())
		}
		p, err := newPrinter(cctx)
		if err != nil {
			return err
		}
		client, closer, err := newClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		if err := client.AddFunds(ctx, amount); err != nil {
			return err
		}
		return p.message("added %d to %s", amount, cctx.String(FlagFrom))
	},
}

var consumerGet = &cli.Command{
	Name:      "get",
	Usage:     "Show a consumer balance",
	ArgsUsage: "<address>",
	Action: func(cctx *cli.Context) error {
		ctx := util.ReqContext(cctx.Context)
		if cctx.NArg() != 1 {
			return fmt.Errorf("incorrect number of arguments, got %d", cctx.NArg())
		}
		p, err := newPrinter(cctx)
		if err != nil {
			return err
		}
		client, closer, err := newClient(cctx)
		if err != nil {
			return err
		}
		defer closer()

		consumer, err := client.GetConsumer(ctx, cctx.Args().First())
		if err != nil {
			return err
		}
		return p.print(consumer, func() *util.VisualTable {
			return util.NewVisualTable([]string{"ADDRESS", "BALANCE"}, [][]string{{consumer.Address, strconv.FormatUint(consumer.Balance, 10)}}, nil)
		})
	},
}
