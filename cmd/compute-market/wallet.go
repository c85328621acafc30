package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/lagrangedao/go-compute-market/util"
	"github.com/lagrangedao/go-compute-market/wallet"
	"github.com/urfave/cli/v2"
)

var walletCmd = &cli.Command{
	Name:  "wallet",
	Usage: "Manage wallets",
	Subcommands: []*cli.Command{
		walletNew,
		walletList,
		walletExport,
		walletImport,
		walletDelete,
		walletSign,
		walletVerify,
	},
}

func setupWallet(cctx *cli.Context) (*wallet.LocalWallet, error) {
	repo, err := repoPath(cctx)
	if err != nil {
		return nil, err
	}
	return wallet.SetupWallet(repo)
}

var walletNew = &cli.Command{
	Name:  "new",
	Usage: "Generate a new key",
	Action: func(cctx *cli.Context) error {
		ctx := util.ReqContext(cctx.Context)
		localWallet, err := setupWallet(cctx)
		if err != nil {
			return err
		}
		defer localWallet.Close()

		addr, err := localWallet.WalletNew(ctx)
		if err != nil {
			return err
		}
		fmt.Println(addr)
		return nil
	},
}

var walletList = &cli.Command{
	Name:  "list",
	Usage: "List wallet address",
	Action: func(cctx *cli.Context) error {
		ctx := util.ReqContext(cctx.Context)
		localWallet, err := setupWallet(cctx)
		if err != nil {
			return err
		}
		defer localWallet.Close()

		addrs, err := localWallet.WalletList(ctx)
		if err != nil {
			return err
		}
		var data [][]string
		for _, addr := range addrs {
			data = append(data, []string{addr})
		}
		util.NewVisualTable([]string{"ADDRESS"}, data, nil).Generate(os.Stdout)
		return nil
	},
}

var walletExport = &cli.Command{
	Name:      "export",
	Usage:     "export keys",
	ArgsUsage: "[address]",
	Action: func(cctx *cli.Context) error {
		ctx := util.ReqContext(cctx.Context)
		if !cctx.Args().Present() {
			return fmt.Errorf("must specify key to export")
		}
		localWallet, err := setupWallet(cctx)
		if err != nil {
			return err
		}
		defer localWallet.Close()

		ki, err := localWallet.WalletExport(ctx, cctx.Args().First())
		if err != nil {
			return err
		}
		fmt.Println(ki.PrivateKey)
		return nil
	},
}

var walletImport = &cli.Command{
	Name:      "import",
	Usage:     "import keys",
	ArgsUsage: "[<path> (optional, will read from stdin if omitted)]",
	Action: func(cctx *cli.Context) error {
		ctx := util.ReqContext(cctx.Context)

		var inpdata []byte
		if !cctx.Args().Present() || cctx.Args().First() == "-" {
			reader := bufio.NewReader(os.Stdin)
			fmt.Print("Enter private key: ")
			indata, err := reader.ReadBytes('\n')
			if err != nil {
				return err
			}
			inpdata = indata
		} else {
			fdata, err := os.ReadFile(cctx.Args().First())
			if err != nil {
				return err
			}
			inpdata = fdata
		}

		localWallet, err := setupWallet(cctx)
		if err != nil {
			return err
		}
		defer localWallet.Close()

		addr, err := localWallet.WalletImport(ctx, &wallet.KeyInfo{PrivateKey: strings.TrimSpace(string(inpdata))})
		if err != nil {
			return err
		}
		fmt.Printf("imported key %s successfully!\n", addr)
		return nil
	},
}

var walletDelete = &cli.Command{
	Name:      "delete",
	Usage:     "Delete an account from the wallet",
	ArgsUsage: "<address> ",
	Action: func(cctx *cli.Context) error {
		ctx := util.ReqContext(cctx.Context)
		if !cctx.Args().Present() || cctx.NArg() != 1 {
			return fmt.Errorf("must specify address to delete")
		}
		localWallet, err := setupWallet(cctx)
		if err != nil {
			return err
		}
		defer localWallet.Close()

		return localWallet.WalletDelete(ctx, cctx.Args().First())
	},
}

var walletSign = &cli.Command{
	Name:      "sign",
	Usage:     "Sign a message",
	ArgsUsage: "<signing address> <Message>",
	Action: func(cctx *cli.Context) error {
		ctx := util.ReqContext(cctx.Context)
		if !cctx.Args().Present() || cctx.NArg() != 2 {
			return fmt.Errorf("must specify signing address and message to sign")
		}

		addr := cctx.Args().First()
		if strings.TrimSpace(addr) == "" {
			return fmt.Errorf("failed to parse sign address")
		}
		msg := cctx.Args().Get(1)
		if strings.TrimSpace(msg) == "" {
			return fmt.Errorf("failed to parse message")
		}

		localWallet, err := setupWallet(cctx)
		if err != nil {
			return err
		}
		defer localWallet.Close()

		sig, err := localWallet.WalletSign(ctx, addr, []byte(msg))
		if err != nil {
			return err
		}
		fmt.Println(sig)
		return nil
	},
}

var walletVerify = &cli.Command{
	Name:      "verify",
	Usage:     "verify the signature of a message",
	ArgsUsage: "<signing address>  <signature> <rawMessage>",
	Action: func(cctx *cli.Context) error {
		ctx := util.ReqContext(cctx.Context)
		if cctx.NArg() != 3 {
			return fmt.Errorf("incorrect number of arguments, requires 3 parameters")
		}

		addr := cctx.Args().First()
		sigBytes, err := hexutil.Decode(cctx.Args().Get(1))
		if err != nil {
			return err
		}
		messageData := cctx.Args().Get(2)
		if strings.TrimSpace(messageData) == "" {
			return fmt.Errorf("failed to get raw message")
		}

		localWallet, err := setupWallet(cctx)
		if err != nil {
			return err
		}
		defer localWallet.Close()

		pass, err := localWallet.WalletVerify(ctx, addr, sigBytes, messageData)
		if err != nil {
			return err
		}
		fmt.Println(pass)
		return nil
	},
}
