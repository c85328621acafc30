package conf

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/lagrangedao/go-compute-market/constants"
)

var config *MarketNode

// MarketNode is a market node config
type MarketNode struct {
	API    API
	LOG    LOG
	LEDGER LEDGER
	EVENTS EVENTS
	MCS    MCS
}

type API struct {
	Port             int
	Domain           string
	NodeName         string
	RequireSignature bool
	SignatureTTL     Duration
}

type LOG struct {
	CrtFile string
	KeyFile string
}

type LEDGER struct {
	Backend       string
	DataPath      string
	RedisUrl      string
	RedisPassword string
	KeyPrefix     string
	AuditInterval Duration
}

type EVENTS struct {
	Enabled       bool
	RedisUrl      string
	RedisPassword string
	Workers       int
}

type MCS struct {
	ApiKey      string
	AccessToken string
	BucketName  string
	Network     string
}

// Duration reads values such as "90s" or "5m" from the config file.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

func InitConfig(repoPath string) error {
	c, err := LoadConfig(filepath.Join(repoPath, "config.toml"))
	if err != nil {
		return err
	}
	if c.LEDGER.DataPath == "" {
		c.LEDGER.DataPath = filepath.Join(repoPath, constants.LEDGER_DIR)
	}
	config = c
	return nil
}

func LoadConfig(configFile string) (*MarketNode, error) {
	var c MarketNode
	metaData, err := toml.DecodeFile(configFile, &c)
	if err != nil {
		return nil, fmt.Errorf("failed load config file, path: %s, error: %w", configFile, err)
	}
	if err := requiredFieldsAreGiven(metaData); err != nil {
		return nil, err
	}
	setDefaults(&c)
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func GetConfig() *MarketNode {
	return config
}

// SetConfig replaces the loaded config, for tests and embedded use.
func SetConfig(c *MarketNode) {
	config = c
}

func setDefaults(c *MarketNode) {
	if c.API.SignatureTTL.Duration == 0 {
		c.API.SignatureTTL.Duration = 5 * time.Minute
	}
	if c.LEDGER.Backend == "" {
		c.LEDGER.Backend = constants.BackendLevelDB
	}
	if c.LEDGER.KeyPrefix == "" {
		c.LEDGER.KeyPrefix = "MARKET:"
	}
	if c.LEDGER.AuditInterval.Duration == 0 {
		c.LEDGER.AuditInterval.Duration = time.Minute
	}
	if c.EVENTS.Workers == 0 {
		c.EVENTS.Workers = 2
	}
	if c.EVENTS.RedisUrl == "" {
		c.EVENTS.RedisUrl = c.LEDGER.RedisUrl
		c.EVENTS.RedisPassword = c.LEDGER.RedisPassword
	}
}

func (c *MarketNode) validate() error {
	if c.API.SignatureTTL.Duration <= 0 {
		return fmt.Errorf("API.SignatureTTL must be positive, got %s", c.API.SignatureTTL.Duration)
	}
	if c.LEDGER.AuditInterval.Duration <= 0 {
		return fmt.Errorf("LEDGER.AuditInterval must be positive, got %s", c.LEDGER.AuditInterval.Duration)
	}
	if c.EVENTS.Workers <= 0 {
		return fmt.Errorf("EVENTS.Workers must be positive, got %d", c.EVENTS.Workers)
	}
	switch c.LEDGER.Backend {
	case constants.BackendMemory, constants.BackendLevelDB:
	case constants.BackendRedis:
		if c.LEDGER.RedisUrl == "" {
			return fmt.Errorf("LEDGER.RedisUrl is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown ledger backend: %s", c.LEDGER.Backend)
	}
	if c.EVENTS.Enabled && c.EVENTS.RedisUrl == "" {
		return fmt.Errorf("EVENTS.RedisUrl is required when events are enabled")
	}
	if (c.LOG.CrtFile == "") != (c.LOG.KeyFile == "") {
		return fmt.Errorf("LOG.CrtFile and LOG.KeyFile must be given together")
	}
	return nil
}

func requiredFieldsAreGiven(metaData toml.MetaData) error {
	requiredFields := [][]string{
		{"API"},
		{"LEDGER"},

		{"API", "Port"},
	}

	for _, v := range requiredFields {
		if !metaData.IsDefined(v...) {
			return fmt.Errorf("required field not given: %v", v)
		}
	}

	return nil
}
