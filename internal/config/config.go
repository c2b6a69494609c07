package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Salesforce SalesforceConfig `mapstructure:"salesforce"`
	DocuSign   DocuSignConfig   `mapstructure:"docusign"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Closing    ClosingConfig    `mapstructure:"closing"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`
	Storage    StorageConfig    `mapstructure:"storage"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type SalesforceConfig struct {
	InstanceURL   string `mapstructure:"instance_url"`
	ClientID      string `mapstructure:"client_id"`
	ClientSecret  string `mapstructure:"client_secret"`
	Username      string `mapstructure:"username"`
	Password      string `mapstructure:"password"`
	SecurityToken string `mapstructure:"security_token"`
	APIVersion    string `mapstructure:"api_version"`
}

type DocuSignConfig struct {
	BaseURI     string `mapstructure:"base_uri"`
	AccountID   string `mapstructure:"account_id"`
	AccessToken string `mapstructure:"access_token"`
	TemplateID  string `mapstructure:"template_id"`
	SignerRole  string `mapstructure:"signer_role"`
}

type LLMConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Model   string `mapstructure:"model"`
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url"`
}

type ClosingConfig struct {
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	DealTimeout   time.Duration `mapstructure:"deal_timeout"`
}

type LedgerConfig struct {
	Path string `mapstructure:"path"`
}

type StorageConfig struct {
	Type      string `mapstructure:"type"` // local, s3, r2
	LocalDir  string `mapstructure:"local_dir"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("salesforce.api_version", "v59.0")
	v.SetDefault("docusign.base_uri", "https://demo.docusign.net/restapi")
	v.SetDefault("docusign.signer_role", "Signer")
	v.SetDefault("llm.enabled", true)
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("closing.max_concurrent", 5)
	v.SetDefault("closing.deal_timeout", 5*time.Minute)
	v.SetDefault("ledger.path", "./data/deal_history.json")
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_dir", "./data/contracts")
	v.SetDefault("storage.bucket", "contracts")
	v.SetDefault("storage.use_ssl", true)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("salesforce.instance_url", "SALESFORCE_INSTANCE_URL")
	v.BindEnv("salesforce.client_id", "SALESFORCE_CLIENT_ID")
	v.BindEnv("salesforce.client_secret", "SALESFORCE_CLIENT_SECRET")
	v.BindEnv("salesforce.username", "SALESFORCE_USERNAME")
	v.BindEnv("salesforce.password", "SALESFORCE_PASSWORD")
	v.BindEnv("salesforce.security_token", "SALESFORCE_SECURITY_TOKEN")
	v.BindEnv("docusign.base_uri", "DOCUSIGN_BASE_URI")
	v.BindEnv("docusign.account_id", "DOCUSIGN_ACCOUNT_ID")
	v.BindEnv("docusign.access_token", "DOCUSIGN_ACCESS_TOKEN")
	v.BindEnv("docusign.template_id", "DOCUSIGN_TEMPLATE_ID")
	v.BindEnv("llm.api_key", "OPENAI_API_KEY")
	v.BindEnv("llm.base_url", "OPENAI_BASE_URL")
	v.BindEnv("llm.model", "LLM_MODEL")
	v.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks the credentials the process cannot run without. A
// half-configured process must not start; collaborator outages at runtime
// are handled per-deal instead.
func (c *Config) Validate() error {
	var missing []string

	if c.Salesforce.InstanceURL == "" {
		missing = append(missing, "salesforce.instance_url")
	}
	if c.Salesforce.Username == "" {
		missing = append(missing, "salesforce.username")
	}
	if c.Salesforce.Password == "" {
		missing = append(missing, "salesforce.password")
	}
	if c.DocuSign.AccountID == "" {
		missing = append(missing, "docusign.account_id")
	}
	if c.DocuSign.AccessToken == "" {
		missing = append(missing, "docusign.access_token")
	}
	if c.DocuSign.TemplateID == "" {
		missing = append(missing, "docusign.template_id")
	}
	if c.LLM.Enabled && c.LLM.APIKey == "" {
		missing = append(missing, "llm.api_key")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}
