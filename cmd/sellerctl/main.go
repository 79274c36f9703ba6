// Command sellerctl is an operator CLI for the ingestion pipeline.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/and161185/fba-recon/internal/app"
	"github.com/and161185/fba-recon/internal/config"
	"github.com/and161185/fba-recon/internal/crypto"
	"github.com/and161185/fba-recon/internal/model"
	"github.com/and161185/fba-recon/internal/orders"
	"github.com/and161185/fba-recon/internal/spapi"
)

var buildDate = "unknown"

const usageText = `sellerctl
Usage:
  sellerctl [-env file] <cmd> [args]

Commands:
  version
  encrypt                                         (refresh token on stdin -> vault token)
  account-add -name <n> -region <eu|na|fe> -marketplaces DE,FR   (refresh token on stdin)
  orders      -account <id> [-days N] [-save]
  reports     -account <id> [-from YYYY-MM-DD] [-to YYYY-MM-DD] [-days N]
  recon       -account <id> [-from YYYY-MM-DD] [-to YYYY-MM-DD] [-days N]
`

var errUsage = errors.New("usage")

func main() {
	envFile := flag.String("env", ".env", "optional .env file")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usageText) }
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := run(ctx, *envFile, flag.Args(), os.Stdin, os.Stdout)
	switch {
	case errors.Is(err, errUsage):
		fmt.Fprint(os.Stderr, usageText)
		os.Exit(2)
	case err != nil:
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, envFile string, args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) < 1 {
		return errUsage
	}
	cmd, rest := args[0], args[1:]
	if cmd == "version" {
		fmt.Fprintf(stdout, "sellerctl %s (%s)\n", app.Version, buildDate)
		return nil
	}

	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}

	switch cmd {
	case "encrypt":
		vault, err := crypto.NewVault(cfg.SecretKey)
		if err != nil {
			return err
		}
		secret, err := readSecret(stdin)
		if err != nil {
			return err
		}
		tok, err := vault.Encrypt(secret)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, tok)
		return nil
	case "account-add", "orders", "reports", "recon":
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}

	logger, err := app.NewLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	switch cmd {
	case "account-add":
		fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
		name := fs.String("name", "", "account name")
		region := fs.String("region", cfg.Region, "region (eu, na, fe)")
		mks := fs.String("marketplaces", "", "country codes, comma separated")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if *name == "" {
			return fmt.Errorf("%w: -name is required", errUsage)
		}
		if _, ok := spapi.LookupRegion(*region); !ok {
			return fmt.Errorf("unknown region %q", *region)
		}
		secret, err := readSecret(stdin)
		if err != nil {
			return err
		}
		enc, err := a.Vault.Encrypt(secret)
		if err != nil {
			return err
		}
		acc := &model.Account{
			Name: *name, Region: strings.ToLower(*region), Marketplaces: spapi.ParseMarketplaces(*mks),
			RefreshTokenEnc: enc, Active: true,
		}
		if _, err := a.Accounts.Create(ctx, acc); err != nil {
			return err
		}
		return printJSON(stdout, map[string]any{"id": acc.ID, "name": acc.Name, "region": acc.Region, "marketplaces": acc.Marketplaces})

	case "orders":
		fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
		id := fs.Int64("account", 0, "account id")
		days := fs.Int("days", cfg.OrderWindowDays, "days back")
		save := fs.Bool("save", false, "persist the orders")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		if *save {
			n, err := a.Service.SyncOrders(ctx, *id, *days)
			if err != nil {
				return err
			}
			return printJSON(stdout, map[string]any{"account_id": *id, "saved": n})
		}
		acc, err := a.Accounts.Get(ctx, *id)
		if err != nil {
			return err
		}
		end := time.Now().UTC()
		list, err := a.Service.FetchOrders(ctx, acc.Config(), acc.ID, acc.RefreshTokenEnc, end.AddDate(0, 0, -*days), end)
		if err != nil {
			return err
		}
		return printJSON(stdout, orderView(list))

	case "reports", "recon":
		fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
		id := fs.Int64("account", 0, "account id")
		from := fs.String("from", "", "window start (YYYY-MM-DD)")
		to := fs.String("to", "", "window end, exclusive (YYYY-MM-DD)")
		days := fs.Int("days", cfg.ReportWindowDays, "window length when -from is empty")
		if err := fs.Parse(rest); err != nil {
			return err
		}
		start, end, err := parseWindow(*from, *to, *days, time.Now())
		if err != nil {
			return err
		}
		if cmd == "reports" {
			sum, err := a.Service.PullReports(ctx, *id, start, end)
			if perr := printJSON(stdout, sum); perr != nil {
				return perr
			}
			return err
		}
		res, err := a.Service.Reconcile(ctx, *id, start, end)
		if err != nil {
			return err
		}
		return printJSON(stdout, res)
	}
	return nil
}

// parseWindow resolves -from/-to/-days into a half-open UTC window.
// An empty -to means the start of today.
func parseWindow(from, to string, days int, now time.Time) (time.Time, time.Time, error) {
	end := now.UTC().Truncate(24 * time.Hour)
	if to != "" {
		t, err := time.Parse(time.DateOnly, to)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("bad -to: %w", err)
		}
		end = t
	}
	var start time.Time
	if from != "" {
		t, err := time.Parse(time.DateOnly, from)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("bad -from: %w", err)
		}
		start = t
	} else {
		if days <= 0 {
			return time.Time{}, time.Time{}, errors.New("-days must be positive")
		}
		start = end.AddDate(0, 0, -days)
	}
	if !start.Before(end) {
		return time.Time{}, time.Time{}, errors.New("window start must be before end")
	}
	return start, end, nil
}

func readSecret(r io.Reader) (string, error) {
	b, err := io.ReadAll(io.LimitReader(r, 64<<10))
	if err != nil {
		return "", err
	}
	s := strings.TrimSpace(string(b))
	if s == "" {
		return "", errors.New("empty input on stdin")
	}
	return s, nil
}

type orderOut struct {
	OrderID       string            `json:"order_id"`
	PurchaseDate  *time.Time        `json:"purchase_date,omitempty"`
	Status        string            `json:"status"`
	MarketplaceID string            `json:"marketplace_id"`
	Items         int               `json:"items"`
	Totals        map[string]string `json:"totals,omitempty"`
}

func orderView(list []model.OrderRecord) []orderOut {
	out := make([]orderOut, 0, len(list))
	for _, o := range list {
		v := orderOut{
			OrderID: o.OrderID, PurchaseDate: o.PurchaseDate, Status: o.Status,
			MarketplaceID: o.MarketplaceID, Items: len(o.Items),
		}
		for cur, amt := range orders.Total(o) {
			if v.Totals == nil {
				v.Totals = make(map[string]string)
			}
			v.Totals[cur] = amt.StringFixed(2)
		}
		out = append(out, v)
	}
	return out
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
