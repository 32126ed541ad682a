package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem/llm/gemini"
	"github.com/m-mizutani/gollem/llm/openai"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/service/embedding"
	"github.com/secmon-lab/recall/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Embedding holds configuration for the embedding provider
type Embedding struct {
	provider       string
	openAIAPIKey   string `masq:"secret"`
	openAIModel    string
	geminiProject  string
	geminiLocation string
	dimension      int64
}

func (e *Embedding) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "embedding-provider",
			Usage:       "Embedding provider (openai or gemini)",
			Value:       ProviderOpenAI,
			Category:    "Embedding",
			Sources:     cli.EnvVars("RECALL_EMBEDDING_PROVIDER"),
			Destination: &e.provider,
		},
		&cli.StringFlag{
			Name:        "openai-api-key",
			Usage:       "OpenAI API key",
			Category:    "Embedding",
			Sources:     cli.EnvVars("RECALL_OPENAI_API_KEY", "OPENAI_API_KEY"),
			Destination: &e.openAIAPIKey,
		},
		&cli.StringFlag{
			Name:        "openai-embedding-model",
			Usage:       "OpenAI embedding model",
			Value:       "text-embedding-3-large",
			Category:    "Embedding",
			Sources:     cli.EnvVars("RECALL_OPENAI_EMBEDDING_MODEL"),
			Destination: &e.openAIModel,
		},
		&cli.StringFlag{
			Name:        "gemini-project-id",
			Usage:       "Google Cloud project ID for Gemini API",
			Category:    "Embedding",
			Sources:     cli.EnvVars("RECALL_GEMINI_PROJECT_ID"),
			Destination: &e.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini API",
			Value:       "us-central1",
			Category:    "Embedding",
			Sources:     cli.EnvVars("RECALL_GEMINI_LOCATION"),
			Destination: &e.geminiLocation,
		},
		&cli.Int64Flag{
			Name:        "embedding-dimension",
			Usage:       "Vector length requested from the provider; must match the store schema",
			Value:       model.DefaultEmbeddingDimension,
			Category:    "Embedding",
			Sources:     cli.EnvVars("RECALL_EMBEDDING_DIMENSION"),
			Destination: &e.dimension,
		},
	}
}

// LogAttrs returns log attributes for the embedding configuration
func (e *Embedding) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("provider", e.provider),
		slog.Bool("openai_api_key_set", e.openAIAPIKey != ""),
		slog.String("openai_model", e.openAIModel),
		slog.String("gemini_project_id", e.geminiProject),
		slog.String("gemini_location", e.geminiLocation),
		slog.Int64("dimension", e.dimension),
	}
}

// Configure creates the embedding service. Without provider credentials
// the service runs disabled and the error is nil.
func (e *Embedding) Configure(ctx context.Context) (*embedding.Service, error) {
	if e.dimension <= 0 {
		return nil, goerr.Wrap(ErrInvalidConfig, "embedding-dimension must be positive",
			goerr.V(ValueKey, e.dimension))
	}
	opts := []embedding.Option{embedding.WithDimension(int(e.dimension))}

	client, err := e.newClient(ctx)
	if err != nil {
		return nil, err
	}
	if client == nil {
		logging.Default().Warn("Embedding provider not configured, queries return no memories and upserts are rejected",
			"provider", e.provider)
		return embedding.New(nil, opts...), nil
	}

	logging.Default().Info("Embedding provider configured", "provider", e.provider, "dimension", e.dimension)
	return embedding.New(client, opts...), nil
}

func (e *Embedding) newClient(ctx context.Context) (embedding.Client, error) {
	switch e.provider {
	case ProviderOpenAI:
		if e.openAIAPIKey == "" {
			return nil, nil
		}
		client, err := openai.New(ctx, e.openAIAPIKey, openai.WithEmbeddingModel(e.openAIModel))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create OpenAI client")
		}
		return client, nil

	case ProviderGemini:
		if e.geminiProject == "" {
			return nil, nil
		}
		client, err := gemini.New(ctx, e.geminiProject, e.geminiLocation)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create Gemini client")
		}
		return client, nil

	default:
		return nil, goerr.Wrap(ErrInvalidConfig, "invalid embedding provider", goerr.V(ValueKey, e.provider))
	}
}
