package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/time/rate"

	"github.com/TtheBC01/vector/forwarding"
	"github.com/TtheBC01/vector/node"
	"github.com/TtheBC01/vector/observability/logging"
	telemetry "github.com/TtheBC01/vector/observability/otel"
	"github.com/TtheBC01/vector/rates"
	"github.com/TtheBC01/vector/retry"
	"github.com/TtheBC01/vector/services/routerd/config"
	"github.com/TtheBC01/vector/services/routerd/server"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/routerd/config.yaml", "path to routerd configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("VECTOR_ENV"))
	logger := logging.Setup("routerd", env)

	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	otlpHeaders := telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "routerd",
		Environment: env,
		Endpoint:    otlpEndpoint,
		Insecure:    insecure,
		Headers:     otlpHeaders,
		Metrics:     true,
		Traces:      true,
	})
	if err != nil {
		log.Fatalf("init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("routerd: load config: %v", err)
	}

	store, err := retry.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("routerd: open retry store: %v", err)
	}
	defer store.Close()

	svc, err := node.NewClient(nil, cfg.NodeURL)
	if err != nil {
		log.Fatalf("routerd: build node client: %v", err)
	}

	oracle, err := buildOracle(cfg.Oracle)
	if err != nil {
		log.Fatalf("routerd: build swap oracle: %v", err)
	}
	profiles, err := buildProfiles(cfg.Rebalance)
	if err != nil {
		log.Fatalf("routerd: build rebalance profiles: %v", err)
	}

	engine, err := forwarding.NewEngine(cfg.Router.Identifier, cfg.Router.SignerAddress(), svc,
		forwarding.WithSwapOracle(oracle),
		forwarding.WithProfileSource(profiles),
		forwarding.WithQueue(store),
		forwarding.WithLogger(logger),
	)
	if err != nil {
		log.Fatalf("routerd: build forwarding engine: %v", err)
	}

	replayerOpts := []retry.ReplayerOption{retry.WithLogger(logger)}
	if cfg.Retry.MaxAttempts > 0 {
		replayerOpts = append(replayerOpts, retry.WithMaxAttempts(cfg.Retry.MaxAttempts))
	}
	if cfg.Retry.ReplaysPerSecond > 0 {
		replayerOpts = append(replayerOpts, retry.WithRateLimit(rate.NewLimiter(rate.Limit(cfg.Retry.ReplaysPerSecond), 1)))
	}
	replayer, err := retry.NewReplayer(store, engine, replayerOpts...)
	if err != nil {
		log.Fatalf("routerd: build replayer: %v", err)
	}

	srv, err := server.New(server.Config{ListenAddress: cfg.ListenAddress}, engine, replayer, logger)
	if err != nil {
		log.Fatalf("routerd: build server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("routerd listening", "address", cfg.ListenAddress)
	if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("routerd: server: %v", err)
	}
}

func buildOracle(cfg config.OracleConfig) (rates.SwapOracle, error) {
	if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
		client := &http.Client{}
		if cfg.Timeout.Duration > 0 {
			client.Timeout = cfg.Timeout.Duration
		}
		return rates.NewHTTPOracle(client, endpoint), nil
	}
	oracle := rates.NewStaticOracle()
	for _, entry := range cfg.Rates {
		if err := oracle.SetRate(
			common.HexToAddress(entry.FromAsset), entry.FromChain,
			common.HexToAddress(entry.ToAsset), entry.ToChain,
			entry.Rate,
		); err != nil {
			return nil, err
		}
	}
	return oracle, nil
}

func buildProfiles(cfg config.RebalanceConfig) (rates.ProfileSource, error) {
	profiles := rates.NewConfigProfiles()
	for _, entry := range cfg.Profiles {
		target, ok := new(big.Int).SetString(strings.TrimSpace(entry.Target), 10)
		if !ok {
			return nil, fmt.Errorf("invalid rebalance target %q", entry.Target)
		}
		asset := common.HexToAddress(entry.Asset)
		if channelAddr := strings.TrimSpace(entry.Channel); channelAddr != "" {
			if err := profiles.SetChannel(common.HexToAddress(channelAddr), asset, target); err != nil {
				return nil, err
			}
			continue
		}
		if err := profiles.SetDefault(asset, target); err != nil {
			return nil, err
		}
	}
	return profiles, nil
}
