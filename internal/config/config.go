package config

import (
	"log"
	"sync"
	"time"

	"github.com/MagicHoovy/Steve/utility"
	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	IsDebug  *bool  `yaml:"is_debug"`
	TimeZone string `yaml:"time_zone" env:"TIME_ZONE" env-default:"UTC"`
	Steve    struct {
		Url      string        `yaml:"url" env:"STEVE_URL" env-default:"http://localhost:8080/steve"`
		Username string        `yaml:"username" env:"STEVE_USERNAME"`
		Password string        `yaml:"password" env:"STEVE_PASSWORD"`
		ApiKey   string        `yaml:"api_key" env:"STEVE_API_KEY"`
		Timeout  time.Duration `yaml:"timeout" env:"STEVE_TIMEOUT" env-default:"10s"`
	} `yaml:"steve"`
	Mongo struct {
		Uri      string        `yaml:"uri" env:"MONGO_URI"`
		Host     string        `yaml:"host" env:"MONGO_HOST" env-default:"localhost"`
		Port     string        `yaml:"port" env:"MONGO_PORT" env-default:"27017"`
		User     string        `yaml:"user" env:"MONGO_USER"`
		Password string        `yaml:"password" env:"MONGO_PASSWORD"`
		Database string        `yaml:"database" env:"MONGO_DATABASE" env-default:"steve_ocpp"`
		Timeout  time.Duration `yaml:"timeout" env:"MONGO_TIMEOUT" env-default:"10s"`
	} `yaml:"mongo"`
	Chargers  []string `yaml:"chargers" env:"CHARGERS" env-separator:","`
	Snapshots Pipeline `yaml:"snapshots" env-prefix:"SNAPSHOTS_"`
	// transaction mirror is off unless configured
	Transactions Pipeline `yaml:"transactions" env-prefix:"TRANSACTIONS_"`
	Backoff      struct {
		Threshold int           `yaml:"threshold" env:"BACKOFF_THRESHOLD" env-default:"3"`
		CoolDown  time.Duration `yaml:"cool_down" env:"BACKOFF_COOL_DOWN" env-default:"30s"`
	} `yaml:"backoff"`
	Log struct {
		File       string `yaml:"file" env:"LOG_FILE" env-default:"charger_data.log"`
		MaxSize    int    `yaml:"max_size_mb" env-default:"5"`
		MaxBackups int    `yaml:"max_backups" env-default:"5"`
		Console    bool   `yaml:"console" env-default:"true"`
		ToDatabase bool   `yaml:"to_database" env-default:"false"`
	} `yaml:"log"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" env-default:"false"`
		BindIP  string `yaml:"bind_ip" env-default:"0.0.0.0"`
		Port    string `yaml:"port" env-default:"9100"`
	} `yaml:"metrics"`
	Telegram struct {
		Enabled bool    `yaml:"enabled" env-default:"false"`
		ApiKey  string  `yaml:"api_key" env:"TELEGRAM_API_KEY"`
		ChatIDs []int64 `yaml:"chat_ids" env:"TELEGRAM_CHAT_IDS" env-separator:","`
	} `yaml:"telegram"`
	Kafka struct {
		Enabled bool     `yaml:"enabled" env-default:"false"`
		Brokers []string `yaml:"brokers" env:"KAFKA_BROKERS" env-separator:","`
		Topic   string   `yaml:"topic" env:"KAFKA_TOPIC" env-default:"charger-observations"`
	} `yaml:"kafka"`
}

type Pipeline struct {
	Enabled    bool          `yaml:"enabled" env:"ENABLED"`
	Collection string        `yaml:"collection" env:"COLLECTION"`
	Interval   time.Duration `yaml:"interval" env:"INTERVAL"`
}

const (
	defaultSnapshotInterval    = 10 * time.Second
	defaultTransactionInterval = 60 * time.Second
)

var instance *Config
var once sync.Once

func GetConfig(path string) (*Config, error) {
	var err error
	once.Do(func() {
		log.Println("reading config", path)
		instance, err = Load(path)
		if err != nil {
			desc, _ := cleanenv.GetDescription(&Config{}, nil)
			log.Println(desc)
			instance = nil
		}
	})
	if instance == nil && err == nil {
		err = utility.Err("configuration is not loaded")
	}
	return instance, err
}

// Load reads the yaml file and applies environment overrides on top of it
func Load(path string) (*Config, error) {
	conf := &Config{}
	if err := cleanenv.ReadConfig(path, conf); err != nil {
		return nil, err
	}
	conf.applyDefaults()
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (c *Config) applyDefaults() {
	c.Chargers = utility.Unique(c.Chargers)
	if c.Snapshots.Interval <= 0 {
		c.Snapshots.Interval = defaultSnapshotInterval
	}
	if c.Transactions.Interval <= 0 {
		c.Transactions.Interval = defaultTransactionInterval
	}
	if c.Snapshots.Collection == "" {
		c.Snapshots.Collection = "charger"
	}
	if c.Transactions.Collection == "" {
		c.Transactions.Collection = "transactions"
	}
}

func (c *Config) Validate() error {
	if c.Steve.Url == "" {
		return utility.Err("missed url parameter in steve configuration")
	}
	if len(c.Chargers) == 0 {
		return utility.Err("missed chargers parameter: at least one charger id is required")
	}
	if !c.Snapshots.Enabled && !c.Transactions.Enabled {
		return utility.Err("nothing to do: both snapshots and transactions are disabled")
	}
	if c.Mongo.Uri == "" && c.Mongo.Host == "" {
		return utility.Err("missed host parameter in mongo configuration")
	}
	if c.Mongo.Database == "" {
		return utility.Err("missed database parameter in mongo configuration")
	}
	if c.Backoff.Threshold < 1 {
		return utility.Errf("backoff threshold must be positive, got %d", c.Backoff.Threshold)
	}
	if c.Telegram.Enabled && c.Telegram.ApiKey == "" {
		return utility.Err("missed api_key parameter in telegram configuration")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return utility.Err("missed brokers parameter in kafka configuration")
	}
	return nil
}

func (c *Config) Debug() bool {
	return c.IsDebug != nil && *c.IsDebug
}
