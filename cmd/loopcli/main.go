// loopcli is the operator-facing control plane for nloopd, mirroring the
// teacher's cmd/lncli: a urfave/cli app whose commands dial the daemon's
// gRPC interface and print the result. Argument parsing and output
// formatting are a Non-goal here -- this stub shows the command shape
// (loopout/loopin/quote) wired to swapclient's client stub, not a
// full CLI.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli"

	"github.com/nloopd/nloop/swapclient"
)

func ctxBackground() context.Context {
	return context.Background()
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[loopcli] %v\n", err)
	os.Exit(1)
}

func getClient(ctx *cli.Context) (swapclient.SwapClient, func()) {
	conn, err := swapclient.DialSwapService(ctx.GlobalString("rpcserver"))
	if err != nil {
		fatal(err)
	}

	return conn, func() { conn.Close() }
}

var loopOutCommand = cli.Command{
	Name:      "loopout",
	Usage:     "perform an off-chain to on-chain swap (reverse submarine swap)",
	ArgsUsage: "amount",
	Action:    loopOut,
}

func loopOut(ctx *cli.Context) error {
	client, cleanUp := getClient(ctx)
	defer cleanUp()

	_, err := client.LoopOut(ctxBackground(), swapclient.LoopOutRequest{})
	if err != nil {
		return err
	}

	fmt.Println("loop out initiated")
	return nil
}

var loopInCommand = cli.Command{
	Name:      "loopin",
	Usage:     "perform an on-chain to off-chain swap",
	ArgsUsage: "amount",
	Action:    loopIn,
}

func loopIn(ctx *cli.Context) error {
	client, cleanUp := getClient(ctx)
	defer cleanUp()

	_, err := client.LoopIn(ctxBackground(), swapclient.LoopInRequest{})
	if err != nil {
		return err
	}

	fmt.Println("loop in initiated")
	return nil
}

var quoteCommand = cli.Command{
	Name:      "quote",
	Usage:     "get a swap fee quote",
	ArgsUsage: "amount",
	Action:    quote,
}

func quote(ctx *cli.Context) error {
	client, cleanUp := getClient(ctx)
	defer cleanUp()

	resp, err := client.GetQuote(ctxBackground(), swapclient.QuoteRequest{})
	if err != nil {
		return err
	}

	fmt.Printf("swap fee: %v, miner fee: %v\n", resp.SwapFee, resp.MinerFee)
	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = "loopcli"
	app.Version = "0.1"
	app.Usage = "control plane for nloopd"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "rpcserver",
			Value: "localhost:11011",
			Usage: "host:port of nloopd's RPC interface",
		},
	}
	app.Commands = []cli.Command{
		loopOutCommand,
		loopInCommand,
		quoteCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}
