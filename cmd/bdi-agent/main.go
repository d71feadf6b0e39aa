// Command bdi-agent runs the autonomous BDI incident-response agent as a
// single headless process: it wires the fact registry, stream
// multiplexer, rule engine, planner, executor, escalation channel and
// event log into one BDI loop, and serves the webhook, query/command and
// metrics HTTP surfaces alongside it (spec §5, §6).
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/kubernaut-bdi/agent/internal/config"
	"github.com/kubernaut-bdi/agent/pkg/bdiagent"
	"github.com/kubernaut-bdi/agent/pkg/escalation"
	"github.com/kubernaut-bdi/agent/pkg/eventlog"
	"github.com/kubernaut-bdi/agent/pkg/eventlog/postgres"
	"github.com/kubernaut-bdi/agent/pkg/eventlog/sqlite"
	"github.com/kubernaut-bdi/agent/pkg/executor/k8stools"
	"github.com/kubernaut-bdi/agent/pkg/factregistry"
	"github.com/kubernaut-bdi/agent/pkg/factregistry/adapters"
	"github.com/kubernaut-bdi/agent/pkg/llm"
	"github.com/kubernaut-bdi/agent/pkg/metrics"
	"github.com/kubernaut-bdi/agent/pkg/queryapi"
	"github.com/kubernaut-bdi/agent/pkg/ruleengine"
	"github.com/kubernaut-bdi/agent/pkg/ruleengine/policy"
	"github.com/kubernaut-bdi/agent/pkg/shared/logging"
	"github.com/kubernaut-bdi/agent/pkg/streammux"
	"github.com/kubernaut-bdi/agent/pkg/telemetry"
	"github.com/kubernaut-bdi/agent/pkg/types"
	"github.com/kubernaut-bdi/agent/pkg/webhook"
)

var version = "dev"

// Exit codes per spec §6.
const (
	exitOK             = 0
	exitStartupFailure = 1
	exitDBOpenFailure  = 2
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := os.Getenv("BDI_AGENT_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bdi-agent: load config: %v\n", err)
		return exitStartupFailure
	}

	zapLogger, err := logging.New(cfg.Logging.Format, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bdi-agent: build logger: %v\n", err)
		return exitStartupFailure
	}
	defer zapLogger.Sync()
	log := logging.AsLogr(zapLogger)

	store, err := openEventLog(cfg.EventLog)
	if err != nil {
		log.Error(err, "failed to open event log")
		return exitDBOpenFailure
	}
	defer store.Close()

	shutdownTracing, err := telemetry.InitTraceProvider(context.Background(), os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"), version)
	if err != nil {
		log.Error(err, "failed to init tracing")
		return exitStartupFailure
	}

	k8sClient, err := buildK8sClient()
	if err != nil {
		log.Error(err, "failed to build kubernetes client")
		return exitStartupFailure
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	m := metrics.New()
	hub := queryapi.NewPushHub(log)
	facts := make(chan types.Fact, 256)

	factRegistry := factregistry.New(log)
	rules := ruleengine.New(log)
	escalationChannel := buildEscalationChannel(cfg.Escalation, log)

	tools := k8stools.New(k8sClient, log)

	provider, err := buildLLMProvider(cfg.LLM)
	if err != nil {
		log.Error(err, "failed to build llm provider, continuing with the llm path disabled")
	}

	agent := bdiagent.New(
		bdiagent.Config{MaxReplanAttempts: cfg.Actions.MaxReplanAttempts, PlanExecutionTimeout: 10 * time.Minute},
		rules, factRegistry, tools, tools, store, m, hub, escalationChannel, provider, log,
	)

	adapterRegistry := adapters.NewRegistry(
		adapters.NewGenericAdapter(),
		adapters.NewAlertmanagerAdapter(),
		adapters.NewDatadogAdapter(),
		adapters.NewPagerDutyAdapter(),
	)
	webhookServer := webhook.New(factRegistry, adapterRegistry, cfg.Webhook.Auth, log, facts)
	queryServer := queryapi.New(store, factRegistry, escalationChannel, agent, hub, log, facts)

	mux := streammux.New(streammux.DefaultConfig(), log)
	evaluator, err := policy.New(context.Background())
	if err != nil {
		log.Error(err, "failed to compile alert filter policy, continuing with filters disabled")
	} else {
		mux.WithAdmissionFilter(evaluator, toPolicyFilters(cfg.Filters))
	}

	configWatcher, err := config.NewWatcher(configPath, func(reloaded *config.Config, loadErr error) {
		if loadErr != nil {
			log.Error(loadErr, "config reload failed, keeping previous filters")
			return
		}
		mux.UpdateFilters(toPolicyFilters(reloaded.Filters))
		log.Info("filters reloaded from config", "count", len(reloaded.Filters))
	})
	if err != nil {
		log.Error(err, "failed to start config watcher, filters will not hot-reload")
	}

	// Each stage gets its own cancellation so shutdown can be staged in
	// the order spec §5 requires: the BDI task is cancelled first (it
	// drains its in-flight step or logs an interrupted ActionResult),
	// then the fact-source pollers (streammux), then the webhook and
	// query HTTP servers; the event log is flushed last via the
	// deferred store.Close above.
	agentCtx, cancelAgent := context.WithCancel(context.Background())
	muxCtx, cancelMux := context.WithCancel(context.Background())
	httpCtx, cancelHTTP := context.WithCancel(context.Background())

	var g errgroup.Group
	webhookHTTP := &http.Server{Addr: ":" + cfg.Server.WebhookPort, Handler: withQueryRoutes(webhookServer, queryServer)}
	metricsHTTP := &http.Server{Addr: ":" + cfg.Server.MetricsPort, Handler: m.Handler()}

	agentDone := make(chan struct{})
	muxDone := make(chan struct{})

	g.Go(func() error { return serveUntilShutdown(httpCtx, webhookHTTP, log, "webhook+query") })
	g.Go(func() error { return serveUntilShutdown(httpCtx, metricsHTTP, log, "metrics") })
	g.Go(func() error { hub.Run(httpCtx.Done()); return nil })
	if configWatcher != nil {
		g.Go(func() error { configWatcher.Run(httpCtx.Done()); return nil })
	}
	g.Go(func() error {
		defer close(muxDone)
		mux.Run(muxCtx, streammux.Source{Name: "ingest", Ch: webhookServer.Facts()})
		return nil
	})
	g.Go(func() error {
		defer close(agentDone)
		agent.Run(agentCtx, mux.Out())
		return nil
	})

	log.Info("bdi-agent started", "version", version, "webhook_port", cfg.Server.WebhookPort, "metrics_port", cfg.Server.MetricsPort)

	<-ctx.Done()
	log.Info("shutdown signal received, draining in stages")

	cancelAgent()
	<-agentDone
	cancelMux()
	<-muxDone
	cancelHTTP()

	if err := g.Wait(); err != nil {
		log.Error(err, "server exited with error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error(err, "failed to flush trace provider")
	}

	log.Info("bdi-agent stopped")
	return exitOK
}

// withQueryRoutes mounts the webhook and query-API routers under their
// spec §6 path prefixes on one listener, mirroring the teacher's
// single-port multi-router composition.
func withQueryRoutes(webhookServer http.Handler, queryServer http.Handler) http.Handler {
	root := http.NewServeMux()
	root.Handle("/webhook/", webhookServer)
	root.Handle("/api/", queryServer)
	root.Handle("/ws", queryServer)
	root.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	return root
}

func serveUntilShutdown(ctx context.Context, srv *http.Server, log logr.Logger, name string) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("%s server: %w", name, err)
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error(err, "graceful shutdown failed", "server", name)
		}
		<-errCh
		return nil
	case err := <-errCh:
		return err
	}
}

func openEventLog(cfg config.EventLogConfig) (eventlog.Store, error) {
	switch cfg.Driver {
	case "postgres":
		return postgres.Open(cfg.DSN, postgres.DriverPGX)
	default:
		return sqlite.Open(cfg.DSN)
	}
}

func buildEscalationChannel(cfg config.EscalationConfig, log logr.Logger) *escalation.Channel {
	sinks := []escalation.Sink{escalation.NewStderrSink(os.Stderr)}
	if cfg.SlackWebhook != "" {
		sinks = append(sinks, escalation.NewSlackSink(cfg.SlackWebhook, cfg.SlackChannel))
	}
	return escalation.New(cfg.QueueCapacity, log, sinks...)
}

func toPolicyFilters(filters []config.FilterConfig) []policy.Filter {
	out := make([]policy.Filter, 0, len(filters))
	for _, f := range filters {
		out = append(out, policy.Filter{
			Name:       f.Name,
			Namespaces: f.Conditions.Namespace,
			Severities: f.Conditions.Severity,
		})
	}
	return out
}

func buildLLMProvider(cfg config.LLMConfig) (llm.Provider, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	return llm.NewProvider(llm.Config{
		Provider:    cfg.Provider,
		Model:       cfg.Model,
		Temperature: float64(cfg.Temperature),
		APIKey:      cfg.APIKey(),
		BaseURL:     cfg.BaseURL,
		Timeout:     cfg.CallTimeout,
	})
}

// buildK8sClient prefers in-cluster credentials (the process runs as a
// Deployment in the cluster it remediates) and falls back to the local
// kubeconfig for development, the same precedence as every controller-
// runtime manager in the teacher's pack.
func buildK8sClient() (kubernetes.Interface, error) {
	restCfg, err := rest.InClusterConfig()
	if err != nil {
		loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
		restCfg, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, nil).ClientConfig()
		if err != nil {
			return nil, fmt.Errorf("load kubeconfig: %w", err)
		}
	}
	return kubernetes.NewForConfig(restCfg)
}
