package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/jrsteele09/izikwen-client/orders"
	"github.com/jrsteele09/izikwen-client/realtime"
	"github.com/jrsteele09/izikwen-client/users"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type command struct {
	args  int
	usage string
	run   func(ctx context.Context, a *app, args []string) error
}

var commandOrder = []string{
	"register", "login", "verify-2fa", "me", "change-password", "logout", "logout-all",
	"orders", "buy", "cancel", "watch",
	"admin-pending", "admin-set-status", "admin-watch",
}

var commands = map[string]command{
	"register":         {2, "<email> <password>", cmdRegister},
	"login":            {2, "<email> <password>", cmdLogin},
	"verify-2fa":       {2, "<code> <2fa-token>", cmdVerify2FA},
	"me":               {0, "", cmdMe},
	"change-password":  {2, "<current> <new>", cmdChangePassword},
	"logout":           {0, "", cmdLogout},
	"logout-all":       {0, "", cmdLogoutAll},
	"orders":           {0, "[status]", cmdOrders},
	"buy":              {2, "<amount-usd> <wallet-address> [network]", cmdBuy},
	"cancel":           {1, "<order-id>", cmdCancel},
	"watch":            {0, "", cmdWatch},
	"admin-pending":    {0, "", cmdAdminPending},
	"admin-set-status": {2, "<order-id> <COMPLETED|FAILED>", cmdAdminSetStatus},
	"admin-watch":      {0, "", cmdAdminWatch},
}

func cmdRegister(ctx context.Context, a *app, args []string) error {
	if err := users.ValidatePasswordStrength(args[1]); err != nil {
		log.Warn().Err(err).Msg("Weak password")
	}
	if err := a.auth.Register(ctx, args[0], args[1]); err != nil {
		return err
	}
	fmt.Println("Account created. You can now log in.")
	return nil
}

func cmdLogin(ctx context.Context, a *app, args []string) error {
	res, err := a.auth.Login(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	if res.Requires2FA {
		fmt.Printf("Two-factor code required. Run:\n  izikwen verify-2fa <code> %s\n", res.TwoFAToken)
		return nil
	}
	printUser(res.User)
	return nil
}

func cmdVerify2FA(ctx context.Context, a *app, args []string) error {
	u, err := a.auth.Verify2FA(ctx, args[0], args[1], a.device)
	if err != nil {
		return err
	}
	printUser(u)
	return nil
}

func cmdMe(ctx context.Context, a *app, _ []string) error {
	u, err := a.signedIn(ctx)
	if err != nil {
		return err
	}
	printUser(u)
	return nil
}

func cmdChangePassword(ctx context.Context, a *app, args []string) error {
	if err := a.auth.ChangePassword(ctx, args[0], args[1], args[1]); err != nil {
		return err
	}
	fmt.Println("Password changed.")
	return nil
}

func cmdLogout(ctx context.Context, a *app, _ []string) error {
	return a.auth.Logout(ctx)
}

func cmdLogoutAll(ctx context.Context, a *app, _ []string) error {
	return a.auth.LogoutAll(ctx)
}

func cmdOrders(ctx context.Context, a *app, args []string) error {
	var status orders.Status
	if len(args) > 0 {
		st, err := orders.ParseStatus(args[0])
		if err != nil {
			return err
		}
		status = st
	}
	list, err := a.orders.List(ctx)
	if err != nil {
		return err
	}
	printOrders(orders.Filter(list, status))
	return nil
}

func cmdBuy(ctx context.Context, a *app, args []string) error {
	amount, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return fmt.Errorf("amount %q: %w", args[0], err)
	}
	req := orders.BuyRequest{AmountFiat: amount, WalletAddress: args[1]}
	if len(args) > 2 {
		req.Network = args[2]
	}

	q := orders.NewQuote(amount)
	fmt.Printf("%.2f USD = %.2f HTG, you receive %.2f USDT\n", q.USD, q.HTG, q.USDT)

	o, err := a.orders.Create(ctx, req)
	if err != nil {
		return err
	}
	printOrders([]orders.Order{*o})
	return nil
}

func cmdCancel(ctx context.Context, a *app, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	o, err := a.orders.Cancel(ctx, id)
	if err != nil {
		return err
	}
	printOrders([]orders.Order{*o})
	return nil
}

func cmdAdminPending(ctx context.Context, a *app, _ []string) error {
	list, err := a.admin.Pending(ctx)
	if err != nil {
		return err
	}
	printOrders(list)
	return nil
}

func cmdAdminSetStatus(ctx context.Context, a *app, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	status, err := orders.ParseStatus(args[1])
	if err != nil {
		return err
	}
	o, err := a.admin.UpdateStatus(ctx, id, status)
	if err != nil {
		return err
	}
	printOrders([]orders.Order{*o})
	return nil
}

func cmdWatch(ctx context.Context, a *app, _ []string) error {
	if _, err := a.signedIn(ctx); err != nil {
		return err
	}
	list, err := a.orders.List(ctx)
	if err != nil {
		return err
	}
	return a.watch(ctx, orders.BoardHistory, a.cfg.GetUserOrdersPath(), list)
}

func cmdAdminWatch(ctx context.Context, a *app, _ []string) error {
	u, err := a.signedIn(ctx)
	if err != nil {
		return err
	}
	if !u.IsAdmin() {
		return fmt.Errorf("%s is not an admin", u.Email)
	}
	list, err := a.admin.Pending(ctx)
	if err != nil {
		return err
	}
	return a.watch(ctx, orders.BoardPending, a.cfg.GetAdminOrdersPath(), list)
}

// watch prints the board on every realtime change until ctx is cancelled.
// The socket follows the stored access token, so a refresh made by the REST
// client reconnects it with the new token.
func (a *app) watch(ctx context.Context, mode orders.BoardMode, path string, initial []orders.Order) error {
	board := orders.NewBoard(mode, orders.WithOnChange(func(list []orders.Order) {
		fmt.Println()
		printOrders(list)
	}))
	board.Reset(initial)

	rt, err := realtime.New(a.cfg.GetRealtimeBaseURL(), path, board.Apply,
		realtime.WithBackoff(a.cfg.GetReconnectStep(), a.cfg.GetReconnectMax()),
		realtime.WithMetrics(realtime.NewMetrics(a.registry)),
		realtime.WithRetryNotify(func(attempt int, delay time.Duration) {
			log.Info().Int("attempt", attempt).Dur("delay", delay).Msg("Realtime reconnecting")
		}),
	)
	if err != nil {
		return err
	}

	unbind, err := realtime.Bind(ctx, a.store, rt)
	if err != nil {
		return err
	}
	defer unbind()

	g, gctx := errgroup.WithContext(ctx)
	if a.metrics != "" {
		g.Go(func() error {
			return serveMetrics(gctx, a.metrics, a.registry)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		return nil
	})
	log.Info().Str("path", path).Msg("Watching orders, press Ctrl+C to stop")
	return g.Wait()
}

func (a *app) signedIn(ctx context.Context) (*users.User, error) {
	u, err := a.auth.Restore(ctx)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("not signed in, run: izikwen login <email> <password>")
	}
	return u, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid order id %q", s)
	}
	return id, nil
}

func printUser(u *users.User) {
	fmt.Printf("Signed in as %s <%s> (%s)\n", u.DisplayName(), u.Email, u.Role)
}

func printOrders(list []orders.Order) {
	if len(list) == 0 {
		fmt.Println("No orders.")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tAMOUNT\tASSET\tNETWORK\tWALLET\tCREATED")
	for _, o := range list {
		fmt.Fprintf(w, "%d\t%s\t%.2f %s\t%s\t%s\t%s\t%s\n",
			o.ID, o.Status, o.AmountFiat, o.FiatCurrency, o.AssetSymbol, o.Network, o.WalletAddress,
			o.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	_ = w.Flush()
}
