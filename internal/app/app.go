// Package app wires the assistant together: catalog, classifier, session
// manager, durable log, gateway, and the resolution engine, plus the
// rendering of decisions into user-facing text.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"aida/common/redact"
	"aida/common/trace"
	"aida/internal/classify"
	"aida/internal/config"
	"aida/internal/gateway"
	"aida/internal/observability"
	"aida/internal/registry"
	"aida/internal/resolve"
	"aida/internal/session"
	"aida/internal/store"
)

// App is a fully wired assistant instance. Construct with New, release with
// Close.
type App struct {
	cfg      config.Config
	registry *registry.Registry
	manager  *session.Manager
	engine   *resolve.Engine
	log      *store.Store
}

// New builds an App from configuration. The embedding backend is primed
// eagerly; if it is unreachable the classifier starts in keyword fallback
// mode (or construction fails when fallback is disabled).
func New(ctx context.Context, cfg config.Config) (*App, error) {
	slog.Debug("app: effective configuration", "settings", redact.Map(map[string]any{
		"gateway":           cfg.Gateway,
		"gateway_driver":    cfg.GatewayDriver,
		"embedding_api_key": cfg.EmbeddingAPIKey,
		"embedding_model":   cfg.EmbeddingModel,
		"history_file":      cfg.HistoryFile,
		"database_path":     cfg.DatabasePath,
	}))

	reg, err := loadRegistry(cfg)
	if err != nil {
		return nil, err
	}

	classifier, err := buildClassifier(ctx, cfg, reg)
	if err != nil {
		return nil, err
	}

	var log *store.Store
	if cfg.DatabasePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
			return nil, fmt.Errorf("app: create database directory: %w", err)
		}
		log, err = store.New(cfg.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("app: open conversation log: %w", err)
		}
	}

	manager := session.NewManager(session.ManagerConfig{
		HistoryFile:     cfg.HistoryFile,
		Persist:         cfg.SaveHistory,
		MaxContextTurns: cfg.MaxContextTurns,
		Timeout:         cfg.SessionTimeout,
		Log:             log,
	})

	gw, err := buildGateway(cfg)
	if err != nil {
		if log != nil {
			log.Close()
		}
		return nil, err
	}

	engine := resolve.NewEngine(reg, classifier, manager, gw, resolve.Options{
		ConfidenceThreshold: cfg.ConfidenceThreshold,
		MaxSuggestions:      cfg.MaxSuggestions,
		ExecutionTimeout:    cfg.ExecutionTimeout,
	})

	return &App{
		cfg:      cfg,
		registry: reg,
		manager:  manager,
		engine:   engine,
		log:      log,
	}, nil
}

// Close releases the durable log.
func (a *App) Close() error {
	if a.log != nil {
		return a.log.Close()
	}
	return nil
}

// Registry exposes the capability catalog, for listings.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// HandleUtterance resolves one utterance against the persisted session and
// returns the rendered decision. The session is loaded, updated, and flushed
// around the request so concurrent invocations serialize on the history lock.
func (a *App) HandleUtterance(ctx context.Context, utterance string) (string, error) {
	ctx = trace.WithTraceID(ctx, trace.GenerateID())
	log := observability.WithTrace(ctx)

	sess, err := a.manager.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("app: load session: %w", err)
	}
	log.Debug("app: session loaded", "session_id", sess.ID, "turns", len(sess.Turns))

	dec, err := a.engine.Resolve(ctx, utterance, sess)
	if flushErr := a.manager.Flush(ctx, sess); flushErr != nil {
		log.Warn("app: flush session", "err", flushErr)
	}
	if err != nil {
		return "", err
	}
	log.Debug("app: utterance resolved",
		"kind", string(dec.Kind),
		"capability", dec.Capability,
		"confidence", dec.Confidence,
	)
	return Render(dec), nil
}

// Render turns a decision into the structured text shown to the user.
func Render(dec resolve.Decision) string {
	var b strings.Builder
	switch dec.Kind {
	case resolve.KindExecuted:
		fmt.Fprintf(&b, "[%s] (confidence %.2f", dec.Capability, dec.Confidence)
		if dec.FollowUp {
			b.WriteString(", follow-up")
		}
		b.WriteString(")\n")
		b.WriteString(dec.Output)

	case resolve.KindClarifying:
		fmt.Fprintf(&b, "[%s] (confidence %.2f)\n", dec.Capability, dec.Confidence)
		b.WriteString(dec.Prompt)

	case resolve.KindRejected:
		b.WriteString("I'm not sure what you meant.")
		if len(dec.Suggestions) > 0 {
			b.WriteString(" Did you mean:\n")
			for i, s := range dec.Suggestions {
				fmt.Fprintf(&b, "  %d. %s (%.2f, %s)", i+1, s.Name, s.Confidence, s.Tier)
				if s.Description != "" {
					fmt.Fprintf(&b, " - %s", s.Description)
				}
				if i < len(dec.Suggestions)-1 {
					b.WriteString("\n")
				}
			}
		}

	case resolve.KindFailed:
		if dec.Timeout {
			fmt.Fprintf(&b, "[%s] timed out: %s", dec.Capability, dec.Reason)
		} else {
			fmt.Fprintf(&b, "[%s] failed: %s", dec.Capability, dec.Reason)
		}
	}

	if dec.FallbackMode {
		b.WriteString("\n(keyword matching only; similarity model unavailable)")
	}
	return b.String()
}

// loadRegistry loads the configured catalog file, or the built-in catalog.
func loadRegistry(cfg config.Config) (*registry.Registry, error) {
	if cfg.CatalogFile != "" {
		reg, err := registry.LoadFile(cfg.CatalogFile)
		if err != nil {
			return nil, fmt.Errorf("app: load catalog: %w", err)
		}
		return reg, nil
	}
	reg, err := registry.LoadBuiltin()
	if err != nil {
		return nil, fmt.Errorf("app: load builtin catalog: %w", err)
	}
	return reg, nil
}

// buildClassifier constructs the classifier, priming the similarity index
// when an embedding API key is configured. Priming failures degrade to
// keyword mode rather than failing construction, unless fallback is
// disabled.
func buildClassifier(ctx context.Context, cfg config.Config, reg *registry.Registry) (*classify.Classifier, error) {
	var index *classify.SimilarityIndex
	if cfg.EmbeddingAPIKey != "" {
		embedder := classify.NewOpenAIEmbedder(classify.OpenAIEmbedderConfig{
			APIKey:  cfg.EmbeddingAPIKey,
			BaseURL: cfg.EmbeddingBaseURL,
			Model:   cfg.EmbeddingModel,
		})
		idx := classify.NewSimilarityIndex(embedder)
		if err := idx.Prime(ctx, reg); err != nil {
			if !cfg.EnableFallback {
				return nil, fmt.Errorf("app: prime similarity index: %w", err)
			}
			slog.Warn("app: similarity index unavailable, starting in keyword fallback mode", "err", err)
		} else {
			index = idx
		}
	}
	return classify.New(reg, index, cfg.EnableFallback), nil
}

// buildGateway selects the invocation backend from configuration.
func buildGateway(cfg config.Config) (gateway.Gateway, error) {
	switch cfg.Gateway {
	case "docker":
		gw, err := gateway.NewDockerGateway(cfg.GatewayDriver)
		if err != nil {
			return nil, fmt.Errorf("app: docker gateway: %w", err)
		}
		return gw, nil
	default:
		return gateway.NewExecGateway(cfg.GatewayDriver), nil
	}
}
