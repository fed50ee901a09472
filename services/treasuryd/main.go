package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"embervault/native/treasury"
	"embervault/observability"
	"embervault/observability/logging"
	telemetry "embervault/observability/otel"
	"embervault/services/treasuryd/adapters"
	"embervault/services/treasuryd/config"
	"embervault/services/treasuryd/keeper"
	"embervault/services/treasuryd/server"
	"embervault/services/treasuryd/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "services/treasuryd/config.yaml", "path to treasuryd configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("EMBERVAULT_ENV"))
	logging.Setup("treasuryd", env)
	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	otlpHeaders := telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "treasuryd",
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
		log.Fatalf("treasuryd: load config: %v", err)
	}

	store, err := storage.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("treasuryd: open storage: %v", err)
	}
	defer store.Close()

	httpClient := &http.Client{Timeout: cfg.Adapters.Timeout.Duration}
	staking := adapters.NewStakingClient(httpClient, cfg.Adapters.StakingEndpoint, cfg.Adapters.Timeout.Duration)
	router := adapters.NewRouterClient(httpClient, cfg.Adapters.RouterEndpoint, cfg.Adapters.Timeout.Duration)
	custody := adapters.NewCustodyClient(httpClient, cfg.Adapters.CustodyEndpoint, cfg.Adapters.Timeout.Duration)

	engineCfg, err := cfg.EngineConfig()
	if err != nil {
		log.Fatalf("treasuryd: engine config: %v", err)
	}
	engine, err := treasury.NewEngine(engineCfg, staking, router, custody, store)
	if err != nil {
		log.Fatalf("treasuryd: engine: %v", err)
	}
	if strings.TrimSpace(cfg.Adapters.OracleEndpoint) != "" {
		engine.SetMarketOracle(adapters.NewOracleClient(httpClient, cfg.Adapters.OracleEndpoint, cfg.Adapters.Timeout.Duration))
	}

	controller, err := cfg.ControllerAddress()
	if err != nil {
		log.Fatalf("treasuryd: controller address: %v", err)
	}
	if err := applyGuardConfig(engine, controller, cfg); err != nil {
		log.Fatalf("treasuryd: apply guard config: %v", err)
	}

	authenticator, err := server.NewAuthenticator(cfg.AdminToken)
	if err != nil {
		log.Fatalf("treasuryd: configure admin auth: %v", err)
	}

	srv, err := server.New(server.Config{
		ListenAddress: cfg.ListenAddress,
		Controller:    controller,
		RateLimit: server.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
	}, engine, store, authenticator, slog.Default())
	if err != nil {
		log.Fatalf("treasuryd: server: %v", err)
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Keeper.Enabled {
		runner := keeper.New(engine, cfg.Keeper.Interval.Duration, cfg.Tokens.Decimals, slog.Default(),
			keeper.WithMetrics(observability.Treasury()),
			keeper.WithRecorder(store),
		)
		go func() {
			if err := runner.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("treasuryd: keeper exited: %v", err)
				stop()
			}
		}()
	}

	if err := srv.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("treasuryd: http server error: %v", err)
		os.Exit(1)
	}
}

func applyGuardConfig(engine *treasury.Engine, controller [20]byte, cfg config.Config) error {
	minYield, err := cfg.MinYieldAmount()
	if err != nil {
		return err
	}
	if minYield.Sign() > 0 {
		if err := engine.SetMinYieldAmount(controller, minYield); err != nil {
			return err
		}
	}
	maxExecution, err := cfg.MaxExecutionAmount()
	if err != nil {
		return err
	}
	if maxExecution.Sign() > 0 {
		if err := engine.SetMaxExecutionAmount(controller, maxExecution); err != nil {
			return err
		}
	}
	if cfg.Guard.MinExecutionInterval.Duration > 0 {
		if err := engine.SetMinExecutionInterval(controller, cfg.Guard.MinExecutionInterval.Duration); err != nil {
			return err
		}
	}
	if cfg.Guard.SlippageToleranceBps > 0 {
		if err := engine.SetSlippageTolerance(controller, cfg.Guard.SlippageToleranceBps); err != nil {
			return err
		}
	}
	strategy, err := treasury.ParseStrategy(cfg.Strategy)
	if err != nil {
		return err
	}
	if err := engine.SetStrategy(controller, strategy); err != nil {
		return err
	}
	if cfg.MCThresholdBps >= treasury.BpsDenominator {
		if err := engine.SetMCThresholdMultiplier(controller, cfg.MCThresholdBps); err != nil {
			return err
		}
	}
	return nil
}
