package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ecociel/taskmanager/gate"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const tenantPlaceholder = "{tenant}"

// Config is read once from the environment at process start.
type Config struct {
	DbConnectionUri string `required:"true" split_words:"true"`
	HttpAddr        string `default:":8080" split_words:"true"`
	EnsureSchema    bool   `default:"true" split_words:"true"`

	AuthTenantId        string        `split_words:"true"`
	AuthIssuer          string        `default:"https://login.microsoftonline.com/{tenant}/v2.0" split_words:"true"`
	AuthAudience        string        `required:"true" split_words:"true"`
	AuthDiscoveryUrl    string        `default:"https://login.microsoftonline.com/{tenant}/v2.0/.well-known/openid-configuration" split_words:"true"`
	AuthFetchTimeout    time.Duration `default:"5s" split_words:"true"`
	AuthRefreshInterval time.Duration `default:"1h" split_words:"true"`
	AuthMinRefreshGap   time.Duration `default:"1m" split_words:"true"`
	AuthLeeway          time.Duration `default:"0s" split_words:"true"`

	EventsHostPorts []string `split_words:"true"`
	EventsTopic     string   `default:"tasks.events" split_words:"true"`

	ShutdownTimeout time.Duration `default:"10s" split_words:"true"`
}

// ConsumerConfig configures the task event consumer.
type ConsumerConfig struct {
	EventsHostPorts []string `required:"true" split_words:"true"`
	EventsTopic     string   `default:"tasks.events" split_words:"true"`
	EventsGroup     string   `default:"task-event-log" split_words:"true"`
}

// Load reads an optional .env file and then the environment.
func Load(envFiles ...string) (Config, error) {
	if err := loadEnvFiles(envFiles); err != nil {
		return Config{}, err
	}

	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func LoadConsumer(envFiles ...string) (ConsumerConfig, error) {
	if err := loadEnvFiles(envFiles); err != nil {
		return ConsumerConfig{}, err
	}
	var c ConsumerConfig
	if err := envconfig.Process("", &c); err != nil {
		return ConsumerConfig{}, err
	}
	if len(c.EventsHostPorts) == 0 {
		return ConsumerConfig{}, errors.New("EVENTS_HOST_PORTS must be set")
	}
	return c, nil
}

func loadEnvFiles(files []string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func (c Config) Validate() error {
	if c.DbConnectionUri == "" {
		return errors.New("DB_CONNECTION_URI must be set")
	}
	if c.AuthAudience == "" {
		return errors.New("AUTH_AUDIENCE must be set")
	}
	for name, v := range map[string]string{
		"AUTH_ISSUER":        c.Gate().Issuer,
		"AUTH_DISCOVERY_URL": c.Gate().DiscoveryURL,
	} {
		if strings.Contains(v, tenantPlaceholder) {
			return fmt.Errorf("%s uses %s but AUTH_TENANT_ID is not set", name, tenantPlaceholder)
		}
	}
	if c.AuthFetchTimeout <= 0 {
		return errors.New("AUTH_FETCH_TIMEOUT must be positive")
	}
	if c.AuthRefreshInterval <= 0 {
		return errors.New("AUTH_REFRESH_INTERVAL must be positive")
	}
	return nil
}

func (c Config) Gate() gate.Config {
	return gate.Config{
		Issuer:        c.expand(c.AuthIssuer),
		Audience:      c.AuthAudience,
		DiscoveryURL:  c.expand(c.AuthDiscoveryUrl),
		FetchTimeout:  c.AuthFetchTimeout,
		MinRefreshGap: c.AuthMinRefreshGap,
		Leeway:        c.AuthLeeway,
	}
}

func (c Config) EventsEnabled() bool {
	return len(c.EventsHostPorts) > 0
}

func (c Config) expand(s string) string {
	if c.AuthTenantId == "" {
		return s
	}
	return strings.ReplaceAll(s, tenantPlaceholder, c.AuthTenantId)
}
