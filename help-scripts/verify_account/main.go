package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"orbot/api"
	"orbot/config"
	"orbot/models"
)

type checkOptions struct {
	currency   string
	marginRate float64
	headroom   float64
}

// verify prints the account summary and checks the currency and whether the
// margin available covers one position of the configured size. It returns
// false when a check fails.
func verify(ctx context.Context, client *api.RESTClient, opts checkOptions) (string, bool, error) {
	cfg := client.Config
	snap, err := client.AccountSnapshot(ctx)
	if err != nil {
		return "", false, fmt.Errorf("fetch account summary: %w", err)
	}

	var b strings.Builder
	ok := true
	fmt.Fprintf(&b, "[SUCCESS] Account connected:\n")
	fmt.Fprintf(&b, "  Currency:     %s\n", snap.Currency)
	fmt.Fprintf(&b, "  Balance:      %.2f\n", snap.Balance)
	fmt.Fprintf(&b, "  NAV:          %.2f\n", snap.NAV)
	fmt.Fprintf(&b, "  Margin avail: %.2f\n", snap.MarginAvailable)
	fmt.Fprintf(&b, "  Open trades:  %d\n", snap.OpenCount)

	if opts.currency != "" && !strings.EqualFold(snap.Currency, opts.currency) {
		fmt.Fprintf(&b, "[WARNING] Currency is %s, not %s. Check OANDA_ACCOUNT_ID.\n", snap.Currency, opts.currency)
		ok = false
	}

	units := cfg.Units(models.Long)
	recent, err := client.FetchRecent(ctx, 1)
	if err != nil || len(recent) == 0 {
		fmt.Fprintf(&b, "[WARNING] No %s price available, margin not checked: %v\n", cfg.Instrument, err)
		return b.String(), false, nil
	}
	price := recent[len(recent)-1].Close
	need := units * price * opts.marginRate
	if snap.MarginAvailable < need*opts.headroom {
		fmt.Fprintf(&b, "[WARNING] Margin available %.2f is below %.2f. %.0f units of %s @ %.2f need ~%.2f at %.1f%% margin.\n",
			snap.MarginAvailable, need*opts.headroom, units, cfg.Instrument, price, need, opts.marginRate*100)
		ok = false
	} else {
		fmt.Fprintf(&b, "[OK] Sufficient margin for %.0f units of %s (~%.2f needed).\n", units, cfg.Instrument, need)
	}
	return b.String(), ok, nil
}

func listAccounts(ctx context.Context, client *api.RESTClient) (string, error) {
	accounts, err := client.Accounts(ctx)
	if err != nil {
		return "", fmt.Errorf("list accounts, the token or environment may be wrong: %w", err)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Token is valid. Found %d account(s):\n", len(accounts))
	match := false
	for _, a := range accounts {
		mark := ""
		if a.ID == client.Config.OandaAccountID {
			mark, match = " (configured)", true
		}
		fmt.Fprintf(&b, " - ID: %s | Tags: %v%s\n", a.ID, a.Tags, mark)
	}
	if !match {
		fmt.Fprintf(&b, "[WARNING] OANDA_ACCOUNT_ID %q is not in the list.\n", client.Config.OandaAccountID)
	}
	return b.String(), nil
}

func main() {
	list := flag.Bool("list", false, "list the accounts reachable with the token")
	currency := flag.String("currency", "USD", "expected account currency (empty to skip)")
	marginRate := flag.Float64("margin-rate", 0.05, "margin rate of the instrument")
	headroom := flag.Float64("headroom", 1.03, "required margin multiple")
	timeout := flag.Duration("timeout", 15*time.Second, "overall timeout")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	client := api.NewRESTClient(cfg, nil)

	fmt.Printf("--- OANDA account check (%s) ---\n", cfg.OandaEnv)
	fmt.Printf("Account ID: %s\n", cfg.OandaAccountID)
	if *list {
		out, err := listAccounts(ctx, client)
		if err != nil {
			fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
			os.Exit(1)
		}
		fmt.Print(out)
		return
	}

	out, ok, err := verify(ctx, client, checkOptions{currency: *currency, marginRate: *marginRate, headroom: *headroom})
	if err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR] %v\n", err)
		os.Exit(1)
	}
	fmt.Print(out)
	if !ok {
		os.Exit(2)
	}
}
