package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/cryptolocker/nftwallet/internal/actions"
	"github.com/cryptolocker/nftwallet/internal/app"
	"github.com/cryptolocker/nftwallet/internal/dashboard"
	"github.com/cryptolocker/nftwallet/internal/wallet"
	"github.com/cryptolocker/nftwallet/pkg/config"
	"github.com/cryptolocker/nftwallet/pkg/logger"
	"github.com/cryptolocker/nftwallet/pkg/pinning"
)

type env struct {
	app     *app.App
	session *wallet.Session
	d       *actions.Dispatcher
	dash    *dashboard.Service
}

type command struct {
	usage string
	run   func(ctx context.Context, e *env, args []string) (interface{}, error)
}

var commands = map[string]command{
	"dashboard": {"", func(ctx context.Context, e *env, _ []string) (interface{}, error) {
		return e.dash.Fetch(ctx, e.session.Account())
	}},
	"position": {"", func(ctx context.Context, e *env, _ []string) (interface{}, error) {
		return e.dash.Position(ctx, e.session.Account())
	}},
	"listings": {"", func(ctx context.Context, e *env, _ []string) (interface{}, error) {
		ls, err := e.dash.Listings(ctx)
		if err != nil {
			return nil, err
		}
		return actions.ListingViews(ls), nil
	}},
	"listing": {"<tokenId>", func(ctx context.Context, e *env, args []string) (interface{}, error) {
		id, err := actions.ParseTokenID(args[0])
		if err != nil {
			return nil, err
		}
		return e.d.GetListing(ctx, id)
	}},
	"mint": {"<tokenURI> <name> [description]", func(ctx context.Context, e *env, args []string) (interface{}, error) {
		req := actions.MintRequest{TokenURI: args[0], Name: args[1]}
		if len(args) > 2 {
			req.Description = args[2]
		}
		return e.d.Mint(ctx, req)
	}},
	"mint-file": {"<image path> <name> [description]", mintFile},
	"approve-marketplace": {"", func(ctx context.Context, e *env, _ []string) (interface{}, error) {
		return e.d.ApproveMarketplace(ctx)
	}},
	"approve-token": {"<amount>", amountCmd((*actions.Dispatcher).ApproveToken)},
	"list": {"<tokenId> <price>", func(ctx context.Context, e *env, args []string) (interface{}, error) {
		id, price, err := idAndPrice(args)
		if err != nil {
			return nil, err
		}
		return e.d.List(ctx, id, price)
	}},
	"buy": {"<tokenId>", tokenCmd((*actions.Dispatcher).Buy)},
	"cancel": {"<tokenId>", tokenCmd((*actions.Dispatcher).Cancel)},
	"price": {"<tokenId> <price>", func(ctx context.Context, e *env, args []string) (interface{}, error) {
		id, price, err := idAndPrice(args)
		if err != nil {
			return nil, err
		}
		return e.d.UpdatePrice(ctx, id, price)
	}},
	"withdraw": {"", func(ctx context.Context, e *env, _ []string) (interface{}, error) {
		return e.d.Withdraw(ctx)
	}},
	"transfer": {"<to> <amount>", func(ctx context.Context, e *env, args []string) (interface{}, error) {
		amount, err := actions.ParsePrice(args[1])
		if err != nil {
			return nil, err
		}
		return e.d.Transfer(ctx, args[0], amount)
	}},
	"stake":   {"<amount>", amountCmd((*actions.Dispatcher).Stake)},
	"unstake": {"<amount>", amountCmd((*actions.Dispatcher).Unstake)},
	"claim": {"", func(ctx context.Context, e *env, _ []string) (interface{}, error) {
		return e.d.ClaimRewards(ctx)
	}},
	"swap": {"<tokenIn> <tokenOut> <amountIn raw> [slippageBps]", func(ctx context.Context, e *env, args []string) (interface{}, error) {
		amountIn, ok := new(big.Int).SetString(args[2], 10)
		if !ok {
			return nil, fmt.Errorf("invalid amountIn %q", args[2])
		}
		req := actions.SwapRequest{TokenIn: args[0], TokenOut: args[1], AmountIn: amountIn}
		if len(args) > 3 {
			if _, err := fmt.Sscan(args[3], &req.SlippageBps); err != nil {
				return nil, fmt.Errorf("invalid slippage %q", args[3])
			}
		}
		return e.d.Swap(ctx, req)
	}},
	"lock": {"<amount> <duration>", func(ctx context.Context, e *env, args []string) (interface{}, error) {
		amount, err := actions.ParsePrice(args[0])
		if err != nil {
			return nil, err
		}
		dur, err := time.ParseDuration(args[1])
		if err != nil {
			return nil, err
		}
		return e.d.Lock(ctx, "", amount, dur)
	}},
	"unlock": {"<vaultId>", tokenCmd((*actions.Dispatcher).Unlock)},
	"sagas": {"", func(ctx context.Context, e *env, _ []string) (interface{}, error) {
		return e.d.Sagas()
	}},
}

func tokenCmd(fn func(d *actions.Dispatcher, ctx context.Context, id *big.Int) (*actions.Result, error)) func(context.Context, *env, []string) (interface{}, error) {
	return func(ctx context.Context, e *env, args []string) (interface{}, error) {
		id, err := actions.ParseTokenID(args[0])
		if err != nil {
			return nil, err
		}
		return fn(e.d, ctx, id)
	}
}

func amountCmd(fn func(d *actions.Dispatcher, ctx context.Context, amount *big.Int) (*actions.Result, error)) func(context.Context, *env, []string) (interface{}, error) {
	return func(ctx context.Context, e *env, args []string) (interface{}, error) {
		amount, err := actions.ParsePrice(args[0])
		if err != nil {
			return nil, err
		}
		return fn(e.d, ctx, amount)
	}
}

func idAndPrice(args []string) (*big.Int, *big.Int, error) {
	id, err := actions.ParseTokenID(args[0])
	if err != nil {
		return nil, nil, err
	}
	price, err := actions.ParsePrice(args[1])
	if err != nil {
		return nil, nil, err
	}
	return id, price, nil
}

// mintFile 上传图片和 metadata 后铸造
func mintFile(ctx context.Context, e *env, args []string) (interface{}, error) {
	if e.app.Pinning == nil {
		return nil, pinning.ErrMissingCredentials
	}
	if err := e.session.RequireSigner(); err != nil {
		return nil, err
	}
	f, err := os.Open(args[0])
	if err != nil {
		return nil, err
	}
	defer f.Close()
	meta := pinning.Metadata{Name: args[1]}
	if len(args) > 2 {
		meta.Description = args[2]
	}
	tokenURI, imageURI, err := e.app.Pinning.PinNFT(ctx, filepath.Base(args[0]), f, meta)
	if err != nil {
		return nil, err
	}
	return e.d.Mint(ctx, actions.MintRequest{
		TokenURI:    tokenURI.URI,
		Name:        meta.Name,
		Description: meta.Description,
		Image:       imageURI.URI,
	})
}

func minArgs(usage string) int {
	n := 0
	for _, f := range strings.Fields(usage) {
		if strings.HasPrefix(f, "<") {
			n++
		}
	}
	return n
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: nftctl [flags] <command> [args]")
	fmt.Fprintln(os.Stderr, "\ncommands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %-20s %s\n", name, commands[name].usage)
	}
	fmt.Fprintln(os.Stderr, "\nflags:")
	flag.PrintDefaults()
}

func main() {
	_ = godotenv.Load()

	var (
		configPath = flag.String("config", os.Getenv("NFTWALLET_CONFIG"), "YAML config file (optional)")
		watch      = flag.String("watch", "", "read-only: act as this address instead of the configured key")
		simulate   = flag.Bool("simulate", false, "run against an in-process simulated chain")
		timeout    = flag.Duration("timeout", 5*time.Minute, "overall timeout")
	)
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}
	name, args := flag.Arg(0), flag.Args()[1:]
	cmd, ok := commands[name]
	if !ok || len(args) < minArgs(cmd.usage) {
		usage()
		os.Exit(2)
	}

	cfg, err := config.LoadFromFile(*configPath)
	if err != nil {
		fatal(err)
	}
	// 命令行输出 JSON 到 stdout，日志只写文件
	cfg.Log.Quiet = true
	if err := logger.Init(cfg.Log); err != nil {
		fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	a, err := app.New(ctx, cfg, app.Options{Simulate: *simulate})
	if err != nil {
		fatal(err)
	}
	defer a.Close()

	session, err := connect(ctx, a, cfg, *watch)
	if err != nil {
		fatal(err)
	}
	defer wallet.Disconnect(session)

	opts := actions.Options{Sagas: a.Sagas, Observer: a.Metrics}
	if a.Activity != nil {
		opts.Recorder = a.Activity
	}
	e := &env{
		app:     a,
		session: session,
		d:       actions.NewDispatcher(session, a.Factory, opts),
		dash:    dashboard.NewService(a.Factory, cfg.Network).WithBackend(session.Backend()),
	}

	out, err := cmd.run(ctx, e, args)
	if out != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	}
	if err != nil {
		fatal(err)
	}
}

func connect(ctx context.Context, a *app.App, cfg *config.Config, watch string) (*wallet.Session, error) {
	if watch != "" {
		return wallet.Watch(watch, cfg.Network, a.Factory.Backend())
	}
	p := a.WalletProvider()
	if p == nil {
		return nil, errors.New("no wallet key configured; pass -watch <address> for read-only use")
	}
	session, err := wallet.Connect(ctx, p, cfg.Network)
	if err != nil {
		return nil, err
	}
	if err := session.RequireNetwork(); err != nil {
		return nil, err
	}
	return session, nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "error:", err.Error())
	os.Exit(1)
}
