// Command paycli drives a configured gateway from the shell: open sessions,
// verify and inquire them, and mint operator API tokens.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"iranpay/internal/application"
	"iranpay/internal/config"
	"iranpay/internal/domain/model"
	"iranpay/internal/infra/dispatch"
	"iranpay/internal/infra/logging"
	"iranpay/internal/infra/web"

	_ "iranpay/internal/infra/adapters/payment"
)

const usage = `usage: paycli [global flags] <command> [flags]

commands:
  payment       open a payment session
  lazy-payment  open a lazy (server-to-server callback) session
  redirect      print the payment page URL for a reference
  verify        verify a reference
  inquiry       read the state of a reference
  reverse       reverse a paid, unsettled reference
  unverified    list paid sessions nobody verified
  token         mint an operator API token
`

func main() {
	global := flag.NewFlagSet("paycli", flag.ExitOnError)
	cfgPath := global.String("config", "config.yaml", "path to YAML config file")
	gwName := global.String("gateway", "", "gateway name (default: payment.default)")
	async := global.Bool("async", false, "run the call through the async API and await it")
	timeout := global.Duration("timeout", 60*time.Second, "overall deadline")
	verbose := global.Bool("v", false, "log HTTP exchanges at debug level")
	global.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		global.PrintDefaults()
	}
	_ = global.Parse(os.Args[1:])
	if global.NArg() == 0 {
		global.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*cfgPath, true)
	if err != nil {
		fail(err)
	}

	cmd, args := global.Arg(0), global.Args()[1:]
	if cmd == "token" {
		runToken(cfg, args)
		return
	}

	name, gcfg, ok := cfg.Gateway(*gwName)
	if !ok {
		fail(fmt.Errorf("gateway %q is not configured", name))
	}
	opts := []application.Option{application.WithPool(dispatch.NewPool(1))}
	if *verbose {
		cfg.Log.Level = "debug"
		opts = append(opts, application.WithLogger(logging.New(cfg.Log, true)))
	}
	p, err := application.Open(name, gcfg, opts...)
	if err != nil {
		fail(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	out, err := run(ctx, p, cmd, args, *async)
	if err != nil {
		fail(err)
	}
	printJSON(out)
}

func run(ctx context.Context, p *application.Payman, cmd string, args []string, async bool) (any, error) {
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	ref := fs.String("ref", "", "authority / track id")
	amount := fs.Int64("amount", 0, "amount in rials (or tomans with -currency IRT)")
	currency := fs.String("currency", "", "IRR or IRT")
	callback := fs.String("callback", "", "callback URL")
	desc := fs.String("description", "", "description shown to the payer")
	order := fs.String("order", "", "merchant order id")
	mobile := fs.String("mobile", "", "payer mobile (09XXXXXXXXX)")
	email := fs.String("email", "", "payer email")
	_ = fs.Parse(args)

	payReq := model.PaymentRequest{
		Amount:      *amount,
		Currency:    model.Currency(strings.ToUpper(*currency)),
		CallbackURL: *callback,
		Description: *desc,
		OrderID:     *order,
		Mobile:      *mobile,
		Email:       *email,
	}

	switch cmd {
	case "payment":
		if async {
			return p.PaymentAsync(ctx, payReq).Await(ctx)
		}
		return p.Payment(ctx, payReq)
	case "lazy-payment":
		if async {
			return p.LazyPaymentAsync(ctx, payReq).Await(ctx)
		}
		return p.LazyPayment(ctx, payReq)
	case "redirect":
		u, err := p.RedirectURL(*ref)
		return map[string]string{"redirect_url": u}, err
	case "verify":
		req := model.VerifyRequest{Reference: *ref, Amount: *amount}
		if async {
			return p.VerifyAsync(ctx, req).Await(ctx)
		}
		return p.Verify(ctx, req)
	case "inquiry":
		req := model.InquiryRequest{Reference: *ref}
		if async {
			return p.InquiryAsync(ctx, req).Await(ctx)
		}
		return p.Inquiry(ctx, req)
	case "reverse":
		return p.Reverse(ctx, model.ReverseRequest{Reference: *ref})
	case "unverified":
		return p.Unverified(ctx)
	default:
		return nil, fmt.Errorf("unknown command %q", cmd)
	}
}

func runToken(cfg *config.Config, args []string) {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	subject := fs.String("subject", "operator", "token subject")
	scope := fs.String("gateways", "", "comma separated gateways the token may use (default: all)")
	ttl := fs.Duration("ttl", 0, "lifetime (default: server.token_ttl)")
	_ = fs.Parse(args)

	if cfg.Server.APISecret == "" {
		fail(fmt.Errorf("server.api_secret is not set"))
	}
	if *ttl <= 0 {
		*ttl = cfg.Server.TokenTTL
	}
	var gateways []string
	if *scope != "" {
		gateways = strings.Split(*scope, ",")
	}
	tok, err := web.NewAuthManager(cfg.Server.APISecret, *ttl).Mint(*subject, gateways...)
	if err != nil {
		fail(err)
	}
	fmt.Println(tok)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "paycli:", err)
	os.Exit(1)
}
