package fantasybridge

import (
	"fmt"
	"net/http"
	"strings"

	"charm.land/fantasy"
	"charm.land/fantasy/providers/anthropic"
	"charm.land/fantasy/providers/azure"
	"charm.land/fantasy/providers/bedrock"
	fgoogle "charm.land/fantasy/providers/google"
	fopenai "charm.land/fantasy/providers/openai"
	fopenaicompat "charm.land/fantasy/providers/openaicompat"
	"charm.land/fantasy/providers/openrouter"
	"charm.land/fantasy/providers/vercel"

	"github.com/dotcommander/newsagent/internal/proto"
)

// Known API names. Any other name is served by the OpenAI-compatible
// provider.
const (
	APIAnthropic  = "anthropic"
	APIGoogle     = "google"
	APIOpenAI     = "openai"
	APIAzure      = "azure"
	APIAzureAD    = "azure-ad"
	APIOpenRouter = "openrouter"
	APIVercel     = "vercel"
	APIBedrock    = "bedrock"
)

// Config represents provider configuration used by the bridge.
type Config struct {
	API            string
	BaseURL        string
	APIKey         string
	HTTPClient     *http.Client
	ThinkingBudget int
}

type providerFactory func(Config) (fantasy.Provider, error)

var providers = map[string]providerFactory{
	APIOpenAI: func(cfg Config) (fantasy.Provider, error) {
		opts := []fopenai.Option{fopenai.WithAPIKey(cfg.APIKey)}
		if cfg.BaseURL != "" {
			opts = append(opts, fopenai.WithBaseURL(cfg.BaseURL))
		}
		if cfg.HTTPClient != nil {
			opts = append(opts, fopenai.WithHTTPClient(cfg.HTTPClient))
		}
		return fopenai.New(opts...)
	},
	APIAnthropic: func(cfg Config) (fantasy.Provider, error) {
		opts := []anthropic.Option{anthropic.WithAPIKey(cfg.APIKey)}
		if cfg.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(strings.TrimSuffix(cfg.BaseURL, "/v1")))
		}
		if cfg.HTTPClient != nil {
			opts = append(opts, anthropic.WithHTTPClient(cfg.HTTPClient))
		}
		return anthropic.New(opts...)
	},
	APIGoogle: func(cfg Config) (fantasy.Provider, error) {
		opts := []fgoogle.Option{fgoogle.WithGeminiAPIKey(cfg.APIKey)}
		if cfg.BaseURL != "" {
			opts = append(opts, fgoogle.WithBaseURL(cfg.BaseURL))
		}
		if cfg.HTTPClient != nil {
			opts = append(opts, fgoogle.WithHTTPClient(cfg.HTTPClient))
		}
		return fgoogle.New(opts...)
	},
	APIAzure:   newAzure,
	APIAzureAD: newAzure,
	APIOpenRouter: func(cfg Config) (fantasy.Provider, error) {
		opts := []openrouter.Option{openrouter.WithAPIKey(cfg.APIKey)}
		if cfg.HTTPClient != nil {
			opts = append(opts, openrouter.WithHTTPClient(cfg.HTTPClient))
		}
		return openrouter.New(opts...)
	},
	APIVercel: func(cfg Config) (fantasy.Provider, error) {
		opts := []vercel.Option{vercel.WithAPIKey(cfg.APIKey)}
		if cfg.BaseURL != "" {
			opts = append(opts, vercel.WithBaseURL(cfg.BaseURL))
		}
		if cfg.HTTPClient != nil {
			opts = append(opts, vercel.WithHTTPClient(cfg.HTTPClient))
		}
		return vercel.New(opts...)
	},
	APIBedrock: func(cfg Config) (fantasy.Provider, error) {
		var opts []bedrock.Option
		if cfg.APIKey != "" {
			opts = append(opts, bedrock.WithAPIKey(cfg.APIKey))
		}
		if cfg.HTTPClient != nil {
			opts = append(opts, bedrock.WithHTTPClient(cfg.HTTPClient))
		}
		return bedrock.New(opts...)
	},
}

func newAzure(cfg Config) (fantasy.Provider, error) {
	opts := []azure.Option{azure.WithAPIKey(cfg.APIKey), azure.WithBaseURL(cfg.BaseURL)}
	if cfg.HTTPClient != nil {
		opts = append(opts, azure.WithHTTPClient(cfg.HTTPClient))
	}
	return azure.New(opts...)
}

func newCompat(cfg Config) (fantasy.Provider, error) {
	opts := []fopenaicompat.Option{fopenaicompat.WithName(cfg.API)}
	if cfg.APIKey != "" {
		opts = append(opts, fopenaicompat.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, fopenaicompat.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, fopenaicompat.WithHTTPClient(cfg.HTTPClient))
	}
	return fopenaicompat.New(opts...)
}

func newProvider(cfg Config) (fantasy.Provider, error) {
	factory, ok := providers[cfg.API]
	if !ok {
		factory = newCompat
	}
	provider, err := factory(cfg)
	if err != nil {
		return nil, fmt.Errorf("new %s provider: %w", cfg.API, err)
	}
	return provider, nil
}

func usesOpenAIOptions(api string) bool {
	return api == APIOpenAI || api == APIAzure || api == APIAzureAD
}

func usesCompatOptions(api string) bool {
	_, known := providers[api]
	return !known
}

// applyProviderOptions attaches the provider specific settings of req.
func applyProviderOptions(call *fantasy.Call, cfg Config, req proto.Request) {
	if usesOpenAIOptions(cfg.API) {
		opts := &fopenai.ProviderOptions{MaxCompletionTokens: req.MaxCompletionTokens}
		if req.User != "" {
			user := req.User
			opts.User = &user
		}
		if opts.User != nil || opts.MaxCompletionTokens != nil {
			call.ProviderOptions[fopenai.Name] = opts
		}
	}

	if usesCompatOptions(cfg.API) && req.User != "" {
		user := req.User
		call.ProviderOptions[fopenaicompat.Name] = &fopenaicompat.ProviderOptions{User: &user}
	}

	if cfg.API == APIGoogle && cfg.ThinkingBudget > 0 {
		call.ProviderOptions[fgoogle.Name] = &fgoogle.ProviderOptions{
			ThinkingConfig: &fgoogle.ThinkingConfig{
				ThinkingBudget: fantasy.Opt(int64(cfg.ThinkingBudget)),
			},
		}
	}
}
