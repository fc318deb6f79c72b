package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"text/template"
	"time"

	_ "embed"

	"github.com/caarlos0/env/v9"
	"gopkg.in/yaml.v3"

	"github.com/dotcommander/newsagent/internal/errs"
)

//go:embed config_template.yml
var configTemplate string

// Agent modes.
const (
	ModeSingle   = "single"
	ModePipeline = "pipeline"
)

// Toolset transports.
const (
	TransportStdio   = "stdio"
	TransportSSE     = "sse"
	TransportHTTP    = "http"
	TransportBuiltin = "builtin"
)

// Model represents the LLM model used in the API call.
type Model struct {
	Name           string
	API            string
	MaxChars       int64    `yaml:"max-input-chars"`
	Aliases        []string `yaml:"aliases"`
	Fallback       string   `yaml:"fallback"`
	ThinkingBudget int      `yaml:"thinking-budget,omitempty"`
}

// API represents an API endpoint and its models.
type API struct {
	Name      string
	APIKey    string           `yaml:"api-key"`
	APIKeyEnv string           `yaml:"api-key-env"`
	APIKeyCmd string           `yaml:"api-key-cmd"`
	BaseURL   string           `yaml:"base-url"`
	Models    map[string]Model `yaml:"models"`
	User      string           `yaml:"user"`
}

// APIs keeps the order in which APIs appear in the settings file.
type APIs []API

// UnmarshalYAML implements ordered API YAML decoding.
func (apis *APIs) UnmarshalYAML(node *yaml.Node) error {
	for i := 0; i+1 < len(node.Content); i += 2 {
		var api API
		if err := node.Content[i+1].Decode(&api); err != nil {
			return fmt.Errorf("error decoding YAML file: %w", err)
		}
		api.Name = node.Content[i].Value
		*apis = append(*apis, api)
	}
	return nil
}

// Find returns the API with the given name.
func (apis APIs) Find(name string) (API, bool) {
	for _, api := range apis {
		if api.Name == name {
			return api, true
		}
	}
	return API{}, false
}

// AgentSettings describes the news agent that runs on every search.
type AgentSettings struct {
	Name         string   `yaml:"name" env:"NAME"`
	Description  string   `yaml:"description" env:"DESCRIPTION"`
	Mode         string   `yaml:"mode" env:"MODE"`
	Articles     int      `yaml:"articles" env:"ARTICLES"`
	SummaryLines string   `yaml:"summary-lines" env:"SUMMARY_LINES"`
	Toolsets     []string `yaml:"toolsets" env:"TOOLSETS"`
}

// MCPServerConfig is the launch descriptor of a toolset.
type MCPServerConfig struct {
	Type          string   `yaml:"type"`
	Command       string   `yaml:"command"`
	Env           []string `yaml:"env"`
	Args          []string `yaml:"args"`
	URL           string   `yaml:"url"`
	CredentialEnv string   `yaml:"credential-env"`
	CredentialCmd string   `yaml:"credential-cmd"`
	Builtin       string   `yaml:"builtin"`
	Description   string   `yaml:"description"`
}

// Transport returns the effective transport, stdio when unset.
func (c MCPServerConfig) Transport() string {
	if c.Type == "" {
		return TransportStdio
	}
	return c.Type
}

// Settings holds persisted configuration loaded from the YAML settings file
// and environment variables.
type Settings struct {
	API           string            `yaml:"default-api" env:"API"`
	Model         string            `yaml:"default-model" env:"MODEL"`
	Raw           bool              `yaml:"raw" env:"RAW"`
	Quiet         bool              `yaml:"quiet" env:"QUIET"`
	FormatAs      string            `yaml:"format-as" env:"FORMAT_AS"`
	MaxTokens     int64             `yaml:"max-tokens" env:"MAX_TOKENS"`
	Temperature   float64           `yaml:"temp" env:"TEMP"`
	TopP          float64           `yaml:"topp" env:"TOPP"`
	TopK          int64             `yaml:"topk" env:"TOPK"`
	MaxRetries    int               `yaml:"max-retries" env:"MAX_RETRIES"`
	MaxSteps      int               `yaml:"max-steps" env:"MAX_STEPS"`
	CachePath     string            `yaml:"cache-path" env:"CACHE_PATH"`
	NoCache       bool              `yaml:"no-cache" env:"NO_CACHE"`
	WordWrap      int               `yaml:"word-wrap" env:"WORD_WRAP"`
	HTTPProxy     string            `yaml:"http-proxy" env:"HTTP_PROXY"`
	Theme         string            `yaml:"theme" env:"THEME"`
	User          string            `yaml:"user" env:"USER_ID"`
	Debug         bool              `yaml:"debug" env:"DEBUG"`
	TraceEndpoint string            `yaml:"trace-endpoint" env:"TRACE_ENDPOINT"`
	APIs          APIs              `yaml:"apis"`
	Agent         AgentSettings     `yaml:"agent" envPrefix:"AGENT_"`
	Instructions  map[string]string `yaml:"instructions"`

	MCPServers      map[string]MCPServerConfig `yaml:"mcp-servers"`
	MCPDisable      []string                   `yaml:"mcp-disable" env:"MCP_DISABLE"`
	MCPTimeout      time.Duration              `yaml:"mcp-timeout" env:"MCP_TIMEOUT"`
	MCPNoInheritEnv bool                       `yaml:"mcp-no-inherit-env" env:"MCP_NO_INHERIT_ENV"`
}

// Runtime holds CLI/runtime-only options that should not be loaded from the
// settings file.
type Runtime struct {
	AskModel     bool
	OpenEditor   bool
	SettingsPath string
	Topic        string
	Connect      bool
}

// Config is the application configuration (settings + runtime-only options).
//
// Settings fields are promoted for ergonomic access, but runtime fields are
// explicitly excluded from YAML/env parsing.
type Config struct {
	Settings `yaml:",inline"`
	Runtime  `yaml:"-" env:"-"`
}

// LogPath is where the debug log is written.
func (c Config) LogPath() string {
	return filepath.Join(c.CachePath, "logs", "newsagent.log")
}

// Ensure loads settings from disk and environment and applies defaults.
//
// It also creates the default settings file if it does not exist.
func Ensure() (Config, error) {
	var c Config
	home, err := os.UserHomeDir()
	if err != nil {
		return c, errs.Error{Err: err, Reason: "Could not determine home directory."}
	}
	return EnsureAt(filepath.Join(home, ".config", "newsagent", "newsagent.yml"))
}

// EnsureAt is Ensure with an explicit settings path.
func EnsureAt(sp string) (Config, error) {
	var c Config
	c.SettingsPath = sp

	if err := os.MkdirAll(filepath.Dir(sp), 0o700); err != nil {
		return c, errs.Error{Err: err, Reason: "Could not create config directory."}
	}
	if err := WriteConfigFile(sp); err != nil {
		return c, err
	}
	content, err := os.ReadFile(sp)
	if err != nil {
		return c, errs.Error{Err: err, Reason: "Could not read settings file."}
	}
	if err := yaml.Unmarshal(content, &c); err != nil {
		return c, errs.Error{Err: err, Reason: "Could not parse settings file."}
	}

	if err := env.ParseWithOptions(&c, env.Options{Prefix: "NEWSAGENT_"}); err != nil {
		return c, errs.Error{Err: err, Reason: "Could not parse environment into settings file."}
	}

	if err := MergeInstructionsFromDir(&c); err != nil {
		return c, errs.Error{Err: err, Reason: "Could not load instructions from the instructions directory."}
	}

	if c.CachePath == "" {
		c.CachePath = filepath.Join(filepath.Dir(sp), "history")
	}
	for _, dir := range []string{"reports", "logs"} {
		if err := os.MkdirAll(filepath.Join(c.CachePath, dir), 0o700); err != nil {
			return c, errs.Error{Err: err, Reason: "Could not create cache directory."}
		}
	}

	c.applyDefaults()
	return c, nil
}

func (c *Config) applyDefaults() {
	def := Default()
	if c.WordWrap == 0 {
		c.WordWrap = def.WordWrap
	}
	if c.FormatAs == "" {
		c.FormatAs = def.FormatAs
	}
	if c.MCPTimeout == 0 {
		c.MCPTimeout = def.MCPTimeout
	}
	if c.MaxSteps == 0 {
		c.MaxSteps = def.MaxSteps
	}
	if c.Agent.Mode == "" {
		c.Agent.Mode = def.Agent.Mode
	}
	if c.Agent.Articles == 0 {
		c.Agent.Articles = def.Agent.Articles
	}
	if c.Agent.SummaryLines == "" {
		c.Agent.SummaryLines = def.Agent.SummaryLines
	}
	if len(c.Agent.Toolsets) == 0 {
		c.Agent.Toolsets = def.Agent.Toolsets
	}
	if c.MCPServers == nil {
		c.MCPServers = def.MCPServers
	}
}

// Validate checks the parts of the configuration the agent needs before it
// launches anything. Credentials are resolved later, by the toolset layer.
func Validate(c Config) error {
	var problems []string
	switch c.Agent.Mode {
	case ModeSingle, ModePipeline:
	default:
		problems = append(problems, fmt.Sprintf("unknown agent mode %q (want %q or %q)", c.Agent.Mode, ModeSingle, ModePipeline))
	}
	if c.Agent.Articles <= 0 {
		problems = append(problems, fmt.Sprintf("articles must be positive, got %d", c.Agent.Articles))
	}
	if c.MaxSteps <= 0 {
		problems = append(problems, fmt.Sprintf("max-steps must be positive, got %d", c.MaxSteps))
	}
	for name, srv := range c.MCPServers {
		if strings.Contains(name, "_") {
			problems = append(problems, fmt.Sprintf("toolset name %q must not contain '_'", name))
		}
		switch srv.Transport() {
		case TransportStdio:
			if srv.Command == "" {
				problems = append(problems, fmt.Sprintf("toolset %q: command is required", name))
			}
		case TransportSSE, TransportHTTP:
			if srv.URL == "" {
				problems = append(problems, fmt.Sprintf("toolset %q: url is required", name))
			}
		case TransportBuiltin:
			if srv.Builtin == "" {
				problems = append(problems, fmt.Sprintf("toolset %q: builtin is required", name))
			}
		default:
			problems = append(problems, fmt.Sprintf("toolset %q: unsupported type %q", name, srv.Type))
		}
	}
	for _, name := range c.Agent.Toolsets {
		if _, ok := c.MCPServers[name]; !ok {
			problems = append(problems, fmt.Sprintf("agent toolset %q is not configured under mcp-servers", name))
			continue
		}
		if slices.Contains(c.MCPDisable, name) || slices.Contains(c.MCPDisable, "*") {
			problems = append(problems, fmt.Sprintf("agent toolset %q is disabled", name))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	slices.Sort(problems)
	return errs.Error{
		Reason: "Invalid configuration.",
		Err:    errors.New(strings.Join(problems, "\n")),
	}
}

// MergeInstructionsFromDir loads instruction overrides from the
// instructions directory next to the settings file. Each file is named after
// the agent it configures; settings file entries take precedence.
func MergeInstructionsFromDir(cfg *Config) error {
	dir := filepath.Join(filepath.Dir(cfg.SettingsPath), "instructions")
	found, err := readInstructionsDir(dir)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return nil
	}
	if cfg.Instructions == nil {
		cfg.Instructions = map[string]string{}
	}
	for name, ref := range found {
		if _, exists := cfg.Instructions[name]; exists {
			continue
		}
		cfg.Instructions[name] = ref
	}
	return nil
}

func readInstructionsDir(dir string) (map[string]string, error) {
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("read instructions directory %q: %w", dir, err)
	}

	found := map[string]string{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".md" && ext != ".txt" {
			return nil
		}
		name := strings.TrimSuffix(d.Name(), filepath.Ext(path))
		if name == "" {
			return nil
		}
		found[name] = "file://" + path
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read instructions directory %q: %w", dir, err)
	}
	return found, nil
}

// WriteConfigFile creates the config file at path if it does not exist.
func WriteConfigFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return createConfigFile(path)
	} else if err != nil {
		return errs.Error{Err: err, Reason: "Could not stat path."}
	}
	return nil
}

func createConfigFile(path string) error {
	tmpl := template.Must(template.New("config").Parse(configTemplate))

	f, err := os.Create(path)
	if err != nil {
		return errs.Error{Err: err, Reason: "Could not create configuration file."}
	}
	defer func() { _ = f.Close() }()

	m := struct{ Config Config }{Config: Default()}
	if err := tmpl.Execute(f, m); err != nil {
		return errs.Error{Err: err, Reason: "Could not render template."}
	}
	return nil
}

// Default returns the default configuration values.
func Default() Config {
	return Config{
		Settings: Settings{
			API:        "google",
			Model:      "gemini-2.0-flash",
			FormatAs:   "markdown",
			MaxRetries: 5,
			MaxSteps:   10,
			WordWrap:   80,
			Theme:      "charm",
			Agent: AgentSettings{
				Name:         "NewsSearch_assistant",
				Description:  "Searches the news on a topic and summarizes the articles it finds.",
				Mode:         ModeSingle,
				Articles:     15,
				SummaryLines: "50-60",
				Toolsets:     []string{"tavily"},
			},
			MCPServers: map[string]MCPServerConfig{
				"tavily": {
					Type:          TransportStdio,
					Command:       "npx",
					Args:          []string{"-y", "tavily-mcp@0.1.3"},
					CredentialEnv: "TAVILY_API_KEY",
					Description:   "Tavily search and extract",
				},
			},
			MCPTimeout: 15 * time.Second,
		},
	}
}
