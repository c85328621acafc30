package main

import (
	"fmt"
	"strconv"

	"github.com/lagrangedao/go-compute-market/internal/models"
	"github.com/lagrangedao/go-compute-market/util"
	"github.com/urfave/cli/v2"
)

var providerCmd = &cli.Command{
	Name:  "provider",
	Usage: "Offer compute capacity and collect earnings",
	Subcommands: []*cli.Command{
		providerRegister,
		providerUpdate,
		providerGet,
		providerList,
		providerWithdraw,
	},
}

func parseOffer(cctx *cli.Context) (uint64, uint64, error) {
	if cctx.NArg() != 2 {
		return 0, 0, fmt.Errorf("need two params: resources and price per unit")
	}
	resources, err := strconv.ParseUint(cctx.Args().Get(0), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to parse resources: %s", cctx.Args().Get(0))
	}
	price, err := strconv.ParseUint(cctx.Args().Get(1), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to parse price per unit: %s", cctx.Args().Get(1))
	}
	return resources, price, nil
}

var providerRegister = &cli.Command{
	Name:      "register",
	Usage:     "Register the --from address as a provider",
	ArgsUsage: "<resources> <price per unit>",
	Action: func(cctx *cli.Context) error {
		ctx := util.ReqContext(cctx.Context)
		resources, price, err := parseOffer(cctx)
		if err != nil {
			return err
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

		if err := client.RegisterProvider(ctx, resources, price); err != nil {
			return err
		}
		return p.message("provider %s registered with %d resources at %d per unit", cctx.String(FlagFrom), resources, price)
	},
}

var providerUpdate = &cli.Command{
	Name:      "update",
	Usage:     "Replace the capacity and price of the --from provider",
	ArgsUsage: "<resources> <price per unit>",
	Action: func(cctx *cli.Context) error {
		ctx := util.ReqContext(cctx.Context)
		resources, price, err := parseOffer(cctx)
		if err != nil {
			return err
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

		if err := client.UpdateProvider(ctx, resources, price); err != nil {
			return err
		}
		return p.message("provider %s updated to %d resources at %d per unit", cctx.String(FlagFrom), resources, price)
	},
}

var providerGet = &cli.Command{
	Name:      "get",
	Usage:     "Show a provider",
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

		provider, err := client.GetProvider(ctx, cctx.Args().First())
		if err != nil {
			return err
		}
		return p.print(provider, func() *util.VisualTable { return providerTable(provider) })
	},
}

var providerList = &cli.Command{
	Name:  "list",
	Usage: "List providers",
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

		providers, err := client.ListProviders(ctx)
		if err != nil {
			return err
		}
		return p.print(models.ProviderListResp{Providers: providers}, func() *util.VisualTable {
			return providerTable(providers...)
		})
	},
}

var providerWithdraw = &cli.Command{
	Name:  "withdraw",
	Usage: "Withdraw all earnings of the --from provider",
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

		amount, err := client.WithdrawEarnings(ctx)
		if err != nil {
			return err
		}
		return p.print(models.WithdrawResp{Amount: amount}, func() *util.VisualTable {
			return util.NewVisualTable([]string{"PROVIDER", "WITHDRAWN"}, [][]string{{cctx.String(FlagFrom), strconv.FormatUint(amount, 10)}}, nil)
		})
	},
}

