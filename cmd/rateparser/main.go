package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/valutatrade/parser-service/internal/application/service"
	"github.com/valutatrade/parser-service/internal/config"
	"github.com/valutatrade/parser-service/internal/domain/entity"
	"github.com/valutatrade/parser-service/internal/domain/repository"
	"github.com/valutatrade/parser-service/internal/infrastructure/api"
	"github.com/valutatrade/parser-service/internal/infrastructure/cache"
	"github.com/valutatrade/parser-service/internal/infrastructure/db"
	"github.com/valutatrade/parser-service/internal/infrastructure/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "rateparser",
		Short:         "Currency rate cache management tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to configuration file")

	root.AddCommand(
		newUpdateCmd(&configPath),
		newGetRateCmd(&configPath),
		newShowRatesCmd(&configPath),
		newStatusCmd(&configPath),
		newHistoryCmd(&configPath),
	)
	return root
}

// env holds everything a command needs, with a cleanup to release Badger.
type env struct {
	cfg      *config.Config
	svc      *service.RateCacheService
	registry *entity.Registry
	cleanup  func()
}

func buildEnv(ctx context.Context, configPath string, withHistory bool) (*env, error) {
	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log := logger.NewNopLogger()

	registry, err := entity.BuildRegistry(cfg.FiatCurrencies, cfg.CryptoCurrencies)
	if err != nil {
		return nil, err
	}

	store, err := db.NewFileSnapshotStore(cfg.RatesFile, log)
	if err != nil {
		return nil, err
	}

	cleanup := func() {}
	var history repository.RateHistoryRepository
	if withHistory {
		if err := os.MkdirAll(cfg.HistoryDir, 0o755); err != nil {
			return nil, err
		}
		badgerOpts := badger.DefaultOptions(cfg.HistoryDir)
		badgerOpts.Logger = nil
		badgerDB, err := badger.Open(badgerOpts)
		if err != nil {
			return nil, fmt.Errorf("open history database: %w", err)
		}
		cleanup = func() { _ = badgerDB.Close() }
		history = db.NewBadgerHistoryRepository(badgerDB, cfg.HistoryRetention)
	}

	base, err := entity.ParseCurrencyCode(cfg.BaseCurrency)
	if err != nil {
		cleanup()
		return nil, err
	}
	idMap := make(map[entity.CurrencyCode]string, len(cfg.CryptoIDMap))
	for code, id := range cfg.CryptoIDMap {
		parsed, err := entity.ParseCurrencyCode(code)
		if err != nil {
			cleanup()
			return nil, err
		}
		idMap[parsed] = id
	}
	fiat := make([]entity.CurrencyCode, 0, len(cfg.FiatCurrencies))
	for _, code := range cfg.FiatCurrencies {
		parsed, err := entity.ParseCurrencyCode(code)
		if err != nil {
			cleanup()
			return nil, err
		}
		fiat = append(fiat, parsed)
	}

	quoteCache := cache.NewQuoteCache(cfg.QuoteCacheTTL)
	fetcher := api.NewMultiSourceFetcher([]api.SourceClient{
		api.NewCoinGeckoClient(api.CoinGeckoConfig{
			BaseURL: cfg.CoinGeckoURL,
			Base:    base,
			IDMap:   idMap,
			Cache:   quoteCache,
			Logger:  log,
		}),
		api.NewExchangeRateAPIClient(api.ExchangeRateAPIConfig{
			BaseURL: cfg.ExchangeRateAPIURL,
			APIKey:  cfg.ExchangeRateAPIKey,
			Base:    base,
			Fiat:    fiat,
			Cache:   quoteCache,
			Logger:  log,
		}),
	}, log, nil)

	svc := service.NewRateCacheService(ctx, store, fetcher, history, registry, service.Options{
		FetchTimeout:       cfg.FetchTimeout,
		RatesTTL:           cfg.RatesTTL,
		StalenessThreshold: cfg.StalenessThreshold,
	}, log, nil)

	return &env{cfg: cfg, svc: svc, registry: registry, cleanup: cleanup}, nil
}

func newUpdateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "update-rates",
		Short: "Fetch rates from all sources and refresh the cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEnv(cmd.Context(), *configPath, true)
			if err != nil {
				return err
			}
			defer e.cleanup()

			report, err := e.svc.Update(cmd.Context())
			if err != nil {
				return err
			}
			if report.Degraded {
				fmt.Fprintf(cmd.OutOrStdout(), "Update degraded: %s\n", report.Warning)
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"Fetched %d pairs, merged %d, evicted %d (version %d, took %s)\n",
				report.Fetched, report.Merged, report.Evicted, report.Version,
				report.Duration.Round(time.Millisecond))
			return nil
		},
	}
}

func newGetRateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "get-rate <from> <to>",
		Short: "Resolve the exchange rate between two currencies",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEnv(cmd.Context(), *configPath, false)
			if err != nil {
				return err
			}
			defer e.cleanup()

			quote, err := e.svc.GetRate(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, code := range []entity.CurrencyCode{quote.Base, quote.Quote} {
				if c, err := e.registry.Resolve(string(code)); err == nil {
					fmt.Fprintln(out, c.DisplayInfo())
				}
			}
			fmt.Fprintf(out, "%s -> %s: %s\n", quote.Base, quote.Quote, quote.Rate.String())
			fmt.Fprintf(out, "%s -> %s: %s\n", quote.Quote, quote.Base, quote.InverseRate.String())
			if !quote.Direct {
				path := make([]string, len(quote.Path))
				for i, c := range quote.Path {
					path[i] = string(c)
				}
				fmt.Fprintf(out, "via %s\n", strings.Join(path, " -> "))
			}
			fmt.Fprintf(out, "source: %s, observed: %s, fresh: %t\n",
				quote.Source, quote.ObservedAt.Format(time.RFC3339), quote.Fresh)
			return nil
		},
	}
}

func newShowRatesCmd(configPath *string) *cobra.Command {
	var currency string
	var top int

	cmd := &cobra.Command{
		Use:   "show-rates",
		Short: "List cached rate pairs sorted by rate",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEnv(cmd.Context(), *configPath, false)
			if err != nil {
				return err
			}
			defer e.cleanup()

			pairs, err := e.svc.ListRates(cmd.Context(), service.ListFilter{
				Currency: currency,
				TopN:     top,
			})
			if err != nil {
				return err
			}
			if len(pairs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No rates cached. Run 'rateparser update-rates' first.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PAIR\tRATE\tSOURCE\tOBSERVED")
			for _, p := range pairs {
				fmt.Fprintf(w, "%s/%s\t%s\t%s\t%s\n",
					p.Base, p.Quote, p.Rate.String(), p.Source,
					p.ObservedAt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&currency, "currency", "", "only pairs involving this currency")
	cmd.Flags().IntVar(&top, "top", 0, "limit output to the N largest rates")
	return cmd
}

func newStatusCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show cache status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEnv(cmd.Context(), *configPath, false)
			if err != nil {
				return err
			}
			defer e.cleanup()

			st := e.svc.Status(cmd.Context())
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Pairs cached:  %d\n", st.PairCount)
			fmt.Fprintf(out, "Version:       %d\n", st.Version)
			if st.LastUpdate.IsZero() {
				fmt.Fprintln(out, "Last update:   never")
			} else {
				fmt.Fprintf(out, "Last update:   %s (%s ago)\n",
					st.LastUpdate.Format(time.RFC3339), st.Age.Round(time.Second))
			}
			fmt.Fprintf(out, "Fresh:         %t\n", st.Fresh)
			fmt.Fprintf(out, "Degraded:      %t\n", st.Degraded)
			if len(st.Sources) > 0 {
				fmt.Fprintf(out, "Sources:       %s\n", strings.Join(st.Sources, ", "))
			}
			return nil
		},
	}
}

func newHistoryCmd(configPath *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history <from> <to>",
		Short: "Show recorded rate history for a pair",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEnv(cmd.Context(), *configPath, true)
			if err != nil {
				return err
			}
			defer e.cleanup()

			if limit <= 0 {
				limit = e.cfg.HistoryLimit
			}
			entries, err := e.svc.History(cmd.Context(), args[0], args[1], limit)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No history recorded for this pair.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RECORDED\tRATE\tSOURCE")
			for _, h := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\n",
					h.RecordedAt.Format(time.RFC3339), h.Rate.String(), h.Source)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of entries (default from config)")
	return cmd
}
