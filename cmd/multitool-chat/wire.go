package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/openai/openai-go/option"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	googleoption "google.golang.org/api/option"

	"github.com/dshills/multitool-chat/assistant"
	"github.com/dshills/multitool-chat/config"
	"github.com/dshills/multitool-chat/graph"
	"github.com/dshills/multitool-chat/graph/emit"
	"github.com/dshills/multitool-chat/graph/model"
	anthropicmodel "github.com/dshills/multitool-chat/graph/model/anthropic"
	googlemodel "github.com/dshills/multitool-chat/graph/model/google"
	openaimodel "github.com/dshills/multitool-chat/graph/model/openai"
	"github.com/dshills/multitool-chat/graph/store"
	"github.com/dshills/multitool-chat/graph/tool"
	"github.com/dshills/multitool-chat/server"
)

// loadConfig resolves the configuration from .env, the config file and the
// environment. It does not validate.
func loadConfig(path string, debug bool) (config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return config.Config{}, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	cfg.ApplyEnv(os.Getenv)
	if debug {
		cfg.Debug = true
	}
	return cfg, nil
}

func newChatModel(cfg config.Config) (model.ChatModel, error) {
	switch cfg.Provider {
	case config.ProviderGroq, config.ProviderOpenAI:
		var opts []option.RequestOption
		if cfg.BaseURL != "" {
			opts = append(opts, option.WithBaseURL(cfg.BaseURL))
		}
		return openaimodel.NewChatModel(cfg.APIKey, cfg.Model, opts...), nil

	case config.ProviderAnthropic:
		return anthropicmodel.NewChatModel(cfg.APIKey, cfg.Model), nil

	case config.ProviderGoogle:
		var opts []googleoption.ClientOption
		if cfg.BaseURL != "" {
			opts = append(opts, googleoption.WithEndpoint(cfg.BaseURL))
		}
		return googlemodel.NewChatModel(cfg.APIKey, cfg.Model, opts...), nil

	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

func newTools(cfg config.Config) []tool.Tool {
	limits := func(l config.Limits) tool.Limits {
		return tool.Limits{TopK: l.TopK, MaxChars: l.MaxChars}
	}
	return []tool.Tool{
		tool.NewArxiv(limits(cfg.Tools.Arxiv)),
		tool.NewWikipedia(limits(cfg.Tools.Wikipedia)),
		tool.NewTavily(cfg.TavilyAPIKey, limits(cfg.Tools.Tavily)),
	}
}

// journal is the run store plus its release func.
type journal struct {
	store store.Store[assistant.TurnState]
	close func() error
}

func newJournal(cfg config.StoreConfig) (journal, error) {
	switch cfg.Backend {
	case config.StoreMemory, "":
		return journal{store: store.NewMemStore[assistant.TurnState](), close: func() error { return nil }}, nil

	case config.StoreSQLite:
		st, err := store.NewSQLiteStore[assistant.TurnState](cfg.DSN)
		if err != nil {
			return journal{}, err
		}
		return journal{store: st, close: st.Close}, nil

	case config.StoreMySQL:
		st, err := store.NewMySQLStore[assistant.TurnState](cfg.DSN)
		if err != nil {
			return journal{}, err
		}
		return journal{store: st, close: st.Close}, nil

	default:
		return journal{}, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

// app holds everything one invocation builds from the configuration.
type app struct {
	cfg          config.Config
	logger       *zap.Logger
	registry     *prometheus.Registry
	metrics      *graph.PrometheusMetrics
	events       *emit.BufferedEmitter
	orchestrator *assistant.Orchestrator
	journal      journal
	tracer       *sdktrace.TracerProvider
	server       *server.Server
}

func newApp(cfg config.Config, chatModel model.ChatModel, logger *zap.Logger) (*app, error) {
	a := &app{
		cfg:      cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		events:   emit.NewBufferedEmitter(),
	}
	a.metrics = graph.NewPrometheusMetrics(a.registry)

	j, err := newJournal(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open run store: %w", err)
	}
	a.journal = j

	emitters := []emit.Emitter{emit.NewLogEmitter(logger.Named("engine")), a.events}
	if cfg.Tracing {
		a.tracer = sdktrace.NewTracerProvider(sdktrace.WithBatcher(&logExporter{logger: logger.Named("trace")}))
		otel.SetTracerProvider(a.tracer)
		emitters = append(emitters, emit.NewOTelEmitter(a.tracer.Tracer("multitool-chat")))
	}

	opts := []assistant.Option{
		assistant.WithMaxToolRounds(cfg.MaxToolRounds),
		assistant.WithStore(j.store),
		assistant.WithEmitter(emit.NewMultiEmitter(emitters...)),
		assistant.WithMetrics(a.metrics),
		assistant.WithLogger(logger.Named("assistant")),
	}
	if cfg.SystemPrompt != "" {
		opts = append(opts, assistant.WithSystemPrompt(cfg.SystemPrompt))
	}

	a.orchestrator, err = assistant.New(chatModel, newTools(cfg), opts...)
	if err != nil {
		_ = j.close()
		return nil, err
	}

	if cfg.MetricsAddr != "" {
		a.server = server.New(server.Config{ListenAddr: cfg.MetricsAddr}, a.registry, a.orchestrator, logger.Named("server"))
		go func() {
			if err := a.server.Run(); err != nil {
				logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}

	return a, nil
}

// Close stops the server, flushes spans and releases the run store.
func (a *app) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var errs []error
	if a.server != nil {
		errs = append(errs, a.server.Shutdown(ctx))
	}
	if a.tracer != nil {
		errs = append(errs, a.tracer.Shutdown(ctx))
	}
	errs = append(errs, a.journal.close())
	return errors.Join(errs...)
}

// logExporter writes finished spans to the log.
type logExporter struct {
	logger *zap.Logger
}

func (e *logExporter) ExportSpans(_ context.Context, spans []sdktrace.ReadOnlySpan) error {
	for _, s := range spans {
		fields := []zap.Field{
			zap.String("trace_id", s.SpanContext().TraceID().String()),
			zap.String("span_id", s.SpanContext().SpanID().String()),
		}
		for _, kv := range s.Attributes() {
			fields = append(fields, zap.String(string(kv.Key), kv.Value.Emit()))
		}
		e.logger.Debug(s.Name(), fields...)
	}
	return nil
}

func (e *logExporter) Shutdown(context.Context) error {
	return nil
}
