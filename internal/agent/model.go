package agent

import (
	"context"
	"fmt"
	"maps"
	"net"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/dotcommander/newsagent/internal/config"
	"github.com/dotcommander/newsagent/internal/credential"
	"github.com/dotcommander/newsagent/internal/errs"
	"github.com/dotcommander/newsagent/internal/fantasybridge"
	"github.com/dotcommander/newsagent/internal/stream"
)

// ResolveModel finds a model by name or alias. When apiName is empty every
// API is searched in settings order.
func ResolveModel(apis config.APIs, apiName, model string) (config.API, config.Model, error) {
	for _, api := range apis {
		if apiName != "" && api.Name != apiName {
			continue
		}
		name := model
		for candidate, mod := range api.Models {
			if candidate == model || slices.Contains(mod.Aliases, model) {
				name = candidate
				break
			}
		}
		if mod, ok := api.Models[name]; ok {
			mod.Name = name
			mod.API = api.Name
			return api, mod, nil
		}
		if apiName != "" {
			available := slices.Sorted(maps.Keys(api.Models))
			return config.API{}, config.Model{}, errs.Error{
				Err:    errs.UserErrorf("Available models are: %s", strings.Join(available, ", ")),
				Reason: fmt.Sprintf("The API endpoint %s does not contain the model %s", apiName, model),
			}
		}
	}

	if apiName != "" {
		return config.API{}, config.Model{}, errs.Error{
			Reason: fmt.Sprintf("API %s is not in the settings file.", apiName),
			Err:    errs.UserErrorf("Please add it to the settings: newsagent config"),
		}
	}
	return config.API{}, config.Model{}, errs.Error{
		Reason: fmt.Sprintf("Model %s is not in the settings file.", model),
		Err:    errs.UserErrorf("Please specify an API endpoint with --api or configure the model in the settings: newsagent config"),
	}
}

type providerKey struct {
	env      string
	docs     string
	name     string
	optional bool
	baseURL  string
}

var providerKeys = map[string]providerKey{
	fantasybridge.APIOpenRouter: {env: "OPENROUTER_API_KEY", docs: "https://openrouter.ai/keys", name: "OpenRouter"},
	fantasybridge.APIVercel:     {env: "VERCEL_API_KEY", docs: "https://vercel.com/dashboard/tokens", name: "Vercel AI Gateway"},
	fantasybridge.APIBedrock:    {name: "Bedrock", optional: true},
	fantasybridge.APIAzure:      {env: "AZURE_OPENAI_KEY", docs: "https://aka.ms/oai/access", name: "Azure"},
	fantasybridge.APIAzureAD:    {env: "AZURE_OPENAI_KEY", docs: "https://aka.ms/oai/access", name: "Azure"},
	fantasybridge.APIAnthropic:  {env: "ANTHROPIC_API_KEY", docs: "https://console.anthropic.com/settings/keys", name: "Anthropic"},
	fantasybridge.APIGoogle:     {env: "GOOGLE_API_KEY", docs: "https://aistudio.google.com/app/apikey", name: "Google"},
	fantasybridge.APIOpenAI:     {env: "OPENAI_API_KEY", docs: "https://platform.openai.com/account/api-keys", name: "OpenAI"},
	"cohere":                    {env: "COHERE_API_KEY", docs: "https://dashboard.cohere.com/api-keys", name: "Cohere"},
	"ollama":                    {name: "Ollama", optional: true, baseURL: "http://localhost:11434/v1"},
}

// ProviderConfig resolves the API key and endpoint of the model's provider.
// The key comes from api-key, api-key-env, api-key-cmd and then the
// provider's usual environment variable. APIs not known by name are treated
// as OpenAI compatible endpoints.
func ProviderConfig(ctx context.Context, api config.API, mod config.Model) (fantasybridge.Config, error) {
	pk, ok := providerKeys[mod.API]
	if !ok {
		pk = providerKeys[fantasybridge.APIOpenAI]
		pk.name = mod.API
	}

	key, err := credential.Resolve(ctx, credential.Source{
		Value: api.APIKey,
		Env:   []string{api.APIKeyEnv},
		Cmd:   api.APIKeyCmd,
	})
	if err != nil {
		return fantasybridge.Config{}, errs.Wrap(err, "Cannot exec api-key-cmd")
	}
	if key == "" && pk.env != "" {
		key, _ = credential.Resolve(ctx, credential.Source{Env: []string{pk.env}})
	}
	if key == "" && !pk.optional {
		missing := errs.MissingCredential(pk.env, pk.docs)
		return fantasybridge.Config{}, errs.Error{
			Err:    missing,
			Reason: pk.name + " authentication failed. " + missing.Reason,
		}
	}

	cfg := fantasybridge.Config{
		API:            mod.API,
		APIKey:         key,
		BaseURL:        api.BaseURL,
		ThinkingBudget: mod.ThinkingBudget,
	}
	if cfg.API == fantasybridge.APIAzureAD {
		cfg.API = fantasybridge.APIAzure
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = pk.baseURL
	}
	return cfg, nil
}

// ApplyProxyConfig gives the provider an instrumented HTTP client, routed
// through httpProxy when one is set.
func ApplyProxyConfig(httpProxy string, providerCfg *fantasybridge.Config) error {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return errs.Error{Err: fmt.Errorf("default transport is not *http.Transport"), Reason: "Could not configure proxy."}
	}
	tr := base.Clone()
	if httpProxy != "" {
		proxyURL, err := url.Parse(httpProxy)
		if err != nil {
			return errs.Error{Err: err, Reason: "There was an error parsing your proxy URL."}
		}
		tr.Proxy = http.ProxyURL(proxyURL)
	}
	tr.DialContext = (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext
	tr.TLSHandshakeTimeout = 10 * time.Second
	tr.ResponseHeaderTimeout = 60 * time.Second
	tr.IdleConnTimeout = 90 * time.Second
	tr.ExpectContinueTimeout = 1 * time.Second
	providerCfg.HTTPClient = &http.Client{Transport: otelhttp.NewTransport(tr)}
	return nil
}

// ClientFactory creates the streaming client of a provider.
type ClientFactory func(fantasybridge.Config) (stream.Client, error)

// NewFantasyClient creates the fantasy bridge client.
func NewFantasyClient(cfg fantasybridge.Config) (stream.Client, error) {
	if cfg.API == "" {
		return nil, errs.Error{Reason: "missing provider configuration"}
	}
	client, err := fantasybridge.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("new fantasy bridge client: %w", err)
	}
	return client, nil
}
