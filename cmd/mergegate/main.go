package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	zaplogfmt "github.com/sykesm/zap-logfmt"
	"github.com/thecodeteam/goodbye"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/simplesurance/mergegate/internal/cfg"
	"github.com/simplesurance/mergegate/internal/gate"
	"github.com/simplesurance/mergegate/internal/githubclt"
	"github.com/simplesurance/mergegate/internal/kv"
	"github.com/simplesurance/mergegate/internal/logfields"
	"github.com/simplesurance/mergegate/internal/merge"
	"github.com/simplesurance/mergegate/internal/permission"
	"github.com/simplesurance/mergegate/internal/protect"
	"github.com/simplesurance/mergegate/internal/provider"
	"github.com/simplesurance/mergegate/internal/provider/github"
	"github.com/simplesurance/mergegate/internal/reconcile"
	"github.com/simplesurance/mergegate/internal/store"
	"github.com/simplesurance/mergegate/internal/vcs"
	"github.com/simplesurance/mergegate/internal/workflow"
)

const appName = "mergegate"

var logger *zap.Logger

// Version is set via a ldflag on compilation
var Version = "unknown"

const apiEndpoint = "/api/v1/"

func exitOnErr(msg string, err error) {
	if err == nil {
		return
	}

	fmt.Fprintln(os.Stderr, "ERROR:", msg+", error:", err.Error())
	os.Exit(1)
}

func panicHandler() {
	if r := recover(); r != nil {
		logger.Info(
			"panic caught, terminating gracefully",
			zap.String("panic", fmt.Sprintf("%v", r)),
			zap.StackSkip("stacktrace", 1),
		)

		ctx, cancelFn := context.WithTimeout(context.Background(), time.Minute)
		defer cancelFn()

		goodbye.Exit(ctx, 1)
	}
}

func startHTTPSServer(listenAddr string, certFile, keyFile string, mux *http.ServeMux) {
	httpsServer := http.Server{
		Addr:    listenAddr,
		Handler: mux,
	}

	goodbye.Register(func(context.Context, os.Signal) {
		const shutdownTimeout = 30 * time.Second
		ctx, cancelFn := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelFn()

		logger.Debug(
			"terminating https server",
			logfields.Event("https_server_terminating"),
			zap.Duration("shutdown_timeout", shutdownTimeout),
		)

		err := httpsServer.Shutdown(ctx)
		if err != nil {
			logger.Warn(
				"shutting down https server failed",
				logfields.Event("https_server_termination_failed"),
				zap.Error(err),
			)
		}
	})

	go func() {
		defer panicHandler()

		logger.Info(
			"https server started",
			logfields.Event("https_server_started"),
			zap.String("listenAddr", listenAddr),
		)

		err := httpsServer.ListenAndServeTLS(certFile, keyFile)
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info("https server terminated", logfields.Event("https_server_terminated"))
			return
		}

		logger.Fatal(
			"https server terminated unexpectedly",
			logfields.Event("https_server_terminated_unexpectedly"),
			zap.Error(err),
		)
	}()
}

func startHTTPServer(listenAddr string, mux *http.ServeMux) {
	httpServer := http.Server{
		Addr:    listenAddr,
		Handler: mux,
	}

	goodbye.Register(func(context.Context, os.Signal) {
		const shutdownTimeout = 30 * time.Second
		ctx, cancelFn := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancelFn()

		logger.Debug(
			"terminating http server",
			logfields.Event("http_server_terminating"),
			zap.Duration("shutdown_timeout", shutdownTimeout),
		)

		err := httpServer.Shutdown(ctx)
		if err != nil {
			logger.Warn(
				"shutting down http server failed",
				logfields.Event("http_server_termination_failed"),
				zap.Error(err),
			)
		}
	})

	go func() {
		defer panicHandler()

		logger.Info(
			"http server started",
			logfields.Event("http_server_started"),
			zap.String("listenAddr", listenAddr),
		)

		err := httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info("http server terminated", logfields.Event("http_server_terminated"))
			return
		}

		logger.Fatal(
			"http server terminated unexpectedly",
			logfields.Event("http_server_terminated_unexpectedly"),
			zap.Error(err),
		)
	}()
}

type arguments struct {
	Verbose     *bool
	ConfigFile  *string
	ShowVersion *bool
}

var args arguments

const defConfigFile = "/etc/mergegate/config.toml"

func mustParseCommandlineParams() {
	args = arguments{
		Verbose: pflag.BoolP(
			"verbose",
			"v",
			false,
			"enable verbose logging",
		),
		ConfigFile: pflag.StringP(
			"cfg-file",
			"c",
			defConfigFile,
			"path to the mergegate configuration file",
		),
		ShowVersion: pflag.Bool(
			"version",
			false,
			"print the version and exit",
		),
	}

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s [OPTION]\nGuard protected branches and gate pull request merges.\n", appName)
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		pflag.PrintDefaults()
	}

	pflag.Parse()
}

func mustParseCfg() *cfg.Config {
	// we use exitOnErr in this function instead of logger.Fatal() because
	// the logger is not initialized yet

	file, err := os.Open(*args.ConfigFile)
	exitOnErr("could not open configuration file", err)
	defer file.Close()

	config, err := cfg.Load(file)
	if err != nil {
		exitOnErr(fmt.Sprintf("could not load configuration file: %s", *args.ConfigFile), err)
	}

	if config.LogFormat == "" {
		config.LogFormat = "logfmt"
	}

	if config.LogLevel == "" {
		config.LogLevel = "info"
	}

	return config
}

func initLogFmtLogger(config *cfg.Config, logLevel zapcore.Level) *zap.Logger {
	cfg := zapEncoderConfig(config)

	logger := zap.New(zapcore.NewCore(
		zaplogfmt.NewEncoder(cfg),
		os.Stdout,
		logLevel),
	)

	return logger
}

func zapEncoderConfig(config *cfg.Config) zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()

	cfg.LevelKey = "loglevel"
	cfg.TimeKey = config.LogTimeKey
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeDuration = zapcore.StringDurationEncoder

	return cfg
}

func mustInitZapFormatLogger(config *cfg.Config, logLevel zapcore.Level) *zap.Logger {
	cfg := zap.NewProductionConfig()
	cfg.Sampling = nil
	cfg.EncoderConfig = zapEncoderConfig(config)
	cfg.OutputPaths = []string{"stdout"}
	cfg.Encoding = config.LogFormat
	cfg.Level = zap.NewAtomicLevelAt(logLevel)

	logger, err := cfg.Build()
	exitOnErr("could not initialize logger", err)

	return logger
}

func mustInitLogger(config *cfg.Config) {
	var logLevel zapcore.Level
	if *args.Verbose {
		logLevel = zapcore.DebugLevel
	} else {
		if err := (&logLevel).Set(config.LogLevel); err != nil {
			fmt.Fprintf(os.Stderr, "can not set log level to %q: %s\n", config.LogLevel, err)
			os.Exit(2)
		}
	}

	switch config.LogFormat {
	case "logfmt":
		logger = initLogFmtLogger(config, logLevel)
	case "console", "json":
		logger = mustInitZapFormatLogger(config, logLevel)
	default:
		fmt.Fprintf(os.Stderr, "unsupported log-format argument: %q\n", config.LogFormat)
		os.Exit(2)
	}

	logger = logger.Named("main")
	zap.ReplaceGlobals(logger)

	goodbye.Register(func(context.Context, os.Signal) {
		if err := logger.Sync(); err != nil {
			fmt.Fprintf(os.Stderr, "flushing logs failed: %s\n", err)
		}
	})
}

func mustInitKVStore(config *cfg.Config) kv.Store {
	switch config.Storage.Driver {
	case "", "memory":
		logger.Info("using in-memory storage", logfields.Event("storage_initialized"))
		return kv.NewMemoryStore()

	case "postgres":
		ctx, cancelFn := context.WithTimeout(context.Background(), time.Minute)
		defer cancelFn()

		kvStore, err := kv.NewPostgresStore(ctx, config.Storage.PostgresDSN)
		if err != nil {
			logger.Fatal(
				"connecting to postgres failed",
				logfields.Event("storage_initialization_failed"),
				zap.Error(err),
			)
		}

		logger.Info("using postgres storage", logfields.Event("storage_initialized"))

		goodbye.Register(func(context.Context, os.Signal) {
			kvStore.Close()
		})

		return kvStore

	default:
		logger.Fatal(
			"unsupported storage driver",
			zap.String("storage_driver", config.Storage.Driver),
		)

		return nil
	}
}

func mustInitProtectionSettings(config *cfg.Config) *protect.StaticSettings {
	settings := protect.NewStaticSettings()

	for _, protected := range config.ProtectedBranches {
		repo, err := vcs.NewRepository(protected.ProjectKey, protected.Repository)
		exitOnErr("invalid protected_branch entry in configuration file", err)

		settings.Protect(repo, protect.BranchProtection{
			Branch:         protected.Branch,
			PathExceptions: protected.PathExceptions,
		})

		logger.Info(
			"branch protection enabled",
			append(repo.LogFields(),
				logfields.Event("branch_protection_enabled"),
				logfields.Branch(protected.Branch),
			)...,
		)
	}

	return settings
}

func initAuthorizer(config *cfg.Config) *permission.StaticAuthorizer {
	authorizer := permission.NewStaticAuthorizer()

	for _, subject := range config.EmergencyMergers {
		authorizer.Grant(subject, permission.ActionEmergencyMerge)
	}

	for _, subject := range config.ConfigurationWriters {
		authorizer.Grant(subject, permission.ActionConfigurationWrite)
	}

	return authorizer
}

// mustSeedWorkflowConfiguration writes the workflow section of the
// configuration file to the configuration store.
func mustSeedWorkflowConfiguration(config *cfg.Config, configurator *workflow.Configurator, configs *workflow.ConfigStore) {
	globalCfg := workflow.GlobalConfiguration{
		EngineConfiguration: workflow.EngineConfiguration{
			Enabled: config.Workflow.Enabled,
		},
		DisableRepositoryConfiguration: config.Workflow.DisableRepositoryConfiguration,
	}

	for _, rule := range config.Workflow.Rules {
		globalCfg.Rules = append(globalCfg.Rules, workflow.AppliedRule{
			RuleName:      rule.Name,
			Configuration: []byte(rule.Configuration),
		})
	}

	if err := configurator.Validate(&globalCfg.EngineConfiguration); err != nil {
		logger.Fatal(
			"workflow configuration in configuration file is invalid",
			logfields.Event("cfg_invalid"),
			zap.Error(err),
		)
	}

	ctx, cancelFn := context.WithTimeout(context.Background(), time.Minute)
	defer cancelFn()

	if err := configs.SetGlobal(ctx, &globalCfg); err != nil {
		logger.Fatal(
			"storing global workflow configuration failed",
			logfields.Event("cfg_store_failed"),
			zap.Error(err),
		)
	}

	logger.Info(
		"global workflow configuration stored",
		logfields.Event("workflow_configuration_seeded"),
		zap.Bool("enabled", globalCfg.Enabled),
		zap.Int("rule_count", len(globalCfg.Rules)),
	)
}

func hide(in string) string {
	if in == "" {
		return in
	}

	return "**hidden**"
}

func main() {
	defer panicHandler()

	defer goodbye.Exit(context.Background(), 1)
	goodbye.Notify(context.Background())

	mustParseCommandlineParams()

	if *args.ShowVersion {
		fmt.Printf("%s %s\n", appName, Version)
		os.Exit(0) // nolint:gocritic // defer functions won't run
	}

	config := mustParseCfg()

	mustInitLogger(config)

	logger.Info(
		"loaded cfg file",
		logfields.Event("cfg_loaded"),
		zap.String("cfg_file", *args.ConfigFile),
		zap.String("http_server_listen_addr", config.HTTPListenAddr),
		zap.String("https_server_listen_addr", config.HTTPSListenAddr),
		zap.String("github_webhook_endpoint", config.HTTPGithubWebhookEndpoint),
		zap.String("github_webhook_secret", hide(config.GithubWebHookSecret)),
		zap.String("github_api_token", hide(config.GithubAPIToken)),
		zap.String("log_format", config.LogFormat),
		zap.String("log_level", config.LogLevel),
		zap.String("log_time_key", config.LogTimeKey),
		zap.String("storage_driver", config.Storage.Driver),
	)

	goodbye.Register(func(_ context.Context, sig os.Signal) {
		logger.Info(fmt.Sprintf("terminating, received signal %s", sig.String()))
	})

	if config.HTTPListenAddr == "" && config.HTTPSListenAddr == "" {
		fmt.Fprintf(os.Stderr, "https_server_listen_addr or http_server_listen_addr must be defined in the config file, both are unset")
		os.Exit(1)
	}

	githubClient := githubclt.New(config.GithubAPIToken)

	kvStore := mustInitKVStore(config)

	prs := store.NewPullRequestStore(kvStore)
	configs := workflow.NewConfigStore(kvStore)

	registry := workflow.NewDefaultRegistry(githubClient)
	configurator := workflow.NewConfigurator(registry, configs)
	engine := workflow.NewEngine(configurator)

	mustSeedWorkflowConfiguration(config, configurator, configs)

	guard := protect.NewGuard(mustInitProtectionSettings(config))
	authorizer := initAuthorizer(config)
	notifier := reconcile.NewLogNotifier()

	reconciler := reconcile.New(prs, githubClient, githubClient, notifier)

	orchestrator := merge.NewOrchestrator(
		prs, githubClient, authorizer, notifier,
		merge.NewWorkflowObstacles(engine),
		merge.NewSelfMergeGuard(),
	)

	mergeGate := gate.New(prs, configs, configurator, engine, orchestrator, guard, reconciler, authorizer)

	evLoop := gate.NewEventLoop(
		reconciler,
		gate.WithRoutineDeferFunc(panicHandler),
	)

	go evLoop.Start()

	goodbye.Register(func(context.Context, os.Signal) {
		logger.Debug(
			"stopping event loop",
			logfields.Event("event_loop_stopping"),
		)

		evLoop.Stop()
	})

	mux := http.NewServeMux()

	gh := github.New(
		[]chan<- *provider.Event{evLoop.C()},
		github.WithPayloadSecret(config.GithubWebHookSecret),
	)

	mux.HandleFunc(config.HTTPGithubWebhookEndpoint, gh.HTTPHandler)
	logger.Info(
		"registered github webhook event http endpoint",
		logfields.Event("github_http_handler_registered"),
		zap.String("endpoint", config.HTTPGithubWebhookEndpoint),
	)

	gate.NewHTTPService(mergeGate).RegisterHandlers(mux, apiEndpoint)
	logger.Info(
		"registered api http endpoint",
		logfields.Event("api_http_handler_registered"),
		zap.String("endpoint", apiEndpoint),
	)

	mux.Handle("/metrics", promhttp.Handler())

	if config.HTTPListenAddr != "" {
		startHTTPServer(config.HTTPListenAddr, mux)
	}

	if config.HTTPSListenAddr != "" {
		startHTTPSServer(
			config.HTTPSListenAddr,
			config.HTTPSCertFile,
			config.HTTPSKeyFile,
			mux,
		)
	}

	select {} // TODO: refactor this, allow clean shutdown
}
