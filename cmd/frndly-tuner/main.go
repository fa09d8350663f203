// Command frndly-tuner serves a Frndly TV account as an IPTV tuner:
// M3U playlist, XMLTV guide and stream redirects over HTTP.
//
//	run          Login, start the guide refresher and session keep-alive, serve HTTP. For systemd.
//	check-login  Verify credentials against the upstream and exit.
//	lineup       Print the channel lineup and exit (sanity check for filters).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/frndlytuner/frndly-tuner/internal/auth"
	"github.com/frndlytuner/frndly-tuner/internal/catalog"
	"github.com/frndlytuner/frndly-tuner/internal/config"
	"github.com/frndlytuner/frndly-tuner/internal/frndly"
	"github.com/frndlytuner/frndly-tuner/internal/guide"
	"github.com/frndlytuner/frndly-tuner/internal/httpclient"
	"github.com/frndlytuner/frndly-tuner/internal/resolver"
	"github.com/frndlytuner/frndly-tuner/internal/tuner"
)

func main() {
	_ = config.LoadEnvFile(".env")
	log.SetFlags(log.LstdFlags)
	log.SetPrefix("[frndly-tuner] ")

	runCmd := flag.NewFlagSet("run", flag.ExitOnError)
	runAddr := runCmd.String("addr", "", "Listen address (default: FRNDLY_TUNER_ADDR or :8183)")
	runBaseURL := runCmd.String("base-url", "", "Advertised base URL for playlist/EPG links (default: derived from request Host)")
	runDays := runCmd.Int("days", 0, "Default EPG horizon in days, 1-7 (default: FRNDLY_TUNER_GUIDE_DAYS or 3)")

	checkCmd := flag.NewFlagSet("check-login", flag.ExitOnError)
	lineupCmd := flag.NewFlagSet("lineup", flag.ExitOnError)

	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s <run|check-login|lineup> [flags]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  run          Serve playlist, EPG and stream redirects (for systemd)\n")
		fmt.Fprintf(os.Stderr, "  check-login  Verify credentials and exit\n")
		fmt.Fprintf(os.Stderr, "  lineup       Print the channel lineup and exit\n")
		os.Exit(1)
	}

	cfg := config.Load()

	switch os.Args[1] {
	case "run":
		_ = runCmd.Parse(os.Args[2:])
		if *runAddr != "" {
			cfg.Addr = *runAddr
		}
		if *runBaseURL != "" {
			cfg.BaseURL = *runBaseURL
		}
		if *runDays > 0 {
			cfg.GuideDays = config.ClampDays(*runDays)
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := run(ctx, cfg); err != nil {
			log.Printf("Run failed: %v", err)
			os.Exit(1)
		}

	case "check-login":
		_ = checkCmd.Parse(os.Args[2:])
		mgr, _ := buildClients(cfg)
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		if _, err := mgr.Token(ctx); err != nil {
			log.Printf("Login failed: %v", err)
			os.Exit(1)
		}
		_, expiresAt, _ := mgr.Status()
		log.Printf("Login OK (session valid until %s)", expiresAt.Format(time.RFC3339))

	case "lineup":
		_ = lineupCmd.Parse(os.Args[2:])
		mgr, wire := buildClients(cfg)
		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()
		channels, err := catalog.NewClient(mgr, wire).Lineup(ctx)
		if err != nil {
			log.Printf("Lineup failed: %v", err)
			os.Exit(1)
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "CHNO\tID\tNAME\tSLUG\tGRACENOTE")
		for _, ch := range channels {
			fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", ch.Number, ch.ID, ch.Name, ch.Slug, ch.Gracenote)
		}
		tw.Flush()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command %q\n", os.Args[1])
		os.Exit(1)
	}
}

func buildClients(cfg *config.Config) (*auth.Manager, *frndly.Client) {
	httpclient.GlobalHostLimiter.SetRate(cfg.UpstreamRate)
	wire := frndly.New(cfg.APIURL, cfg.GuideAPIURL, cfg.LiveMapURL, cfg.UpstreamTimeout)
	mgr := auth.New(wire, auth.Credentials{Username: cfg.Username, Password: cfg.Password}, cfg.SessionCacheFile)
	return mgr, wire
}

func run(ctx context.Context, cfg *config.Config) error {
	if cfg.Username == "" || cfg.Password == "" {
		return fmt.Errorf("credentials missing: set FRNDLY_TUNER_USERNAME/FRNDLY_TUNER_PASSWORD or FRNDLY_TUNER_CREDENTIALS_FILE")
	}

	mgr, wire := buildClients(cfg)
	cat := catalog.NewClient(mgr, wire)
	cache := guide.NewCache(cat, cfg.GuideDays, cfg.GuideGrace)
	res := resolver.New(cat, cache, cfg.LeaseTTL)

	// Fail fast on bad credentials before starting the loops; a transient
	// upstream failure is fine, the refresher will keep retrying.
	loginCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	_, err := mgr.Token(loginCtx)
	cancel()
	if err != nil {
		var ae *auth.Error
		if errors.As(err, &ae) && ae.Kind == auth.InvalidCredentials {
			return err
		}
		log.Printf("Initial login failed (will retry in background): %v", err)
	}

	go cache.Run(ctx, cfg.RefreshInterval)
	go mgr.KeepAlive(ctx, cfg.KeepAliveInterval)

	srv := &tuner.Server{
		Addr:        cfg.Addr,
		BaseURL:     cfg.BaseURL,
		DefaultDays: cfg.GuideDays,
		Guide:       cache,
		Resolver:    res,
		Session:     mgr,
	}
	return srv.Run(ctx)
}
