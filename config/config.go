package config

import (
	"errors"
	"log/slog"
	"os"
	"path"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Env             string          `mapstructure:"env"`
	LogLevel        string          `mapstructure:"log_level"`
	LogType         string          `mapstructure:"log_type"`
	LogFile         string          `mapstructure:"log_file"`
	ServiceName     string          `mapstructure:"service_name"`
	Port            string          `mapstructure:"port"`
	Version         string          `mapstructure:"version"`
	Username        string          `mapstructure:"username"`
	Password        string          `mapstructure:"password"`
	Meta            *MetaConfig     `mapstructure:"meta"`
	PortalSettings  *PortalConfig   `mapstructure:"portal"`
	FormSettings    *FormConfig     `mapstructure:"form"`
	BrowserSettings *BrowserConfig  `mapstructure:"browser"`
	CaptchaSettings *CaptchaConfig  `mapstructure:"captcha"`
	LlmSettings     *LlmConfig      `mapstructure:"llm"`
	WorkerSettings  *WorkerConfig   `mapstructure:"worker"`
	CacheSettings   *CacheConfig    `mapstructure:"cache"`
	DbSettings      *DatabaseConfig `mapstructure:"database"`
	KafkaSettings   *KafkaConfig    `mapstructure:"kafka"`
	S3Settings      *S3Config       `mapstructure:"s3"`
	StatusSettings  *StatusConfig   `mapstructure:"status"`
}

// MetaConfig describes a single name check run.
type MetaConfig struct {
	URL         string `mapstructure:"url"`
	CompanyName string `mapstructure:"company_name"`
	NicCode     string `mapstructure:"nic_code"`
	ProfilePath string `mapstructure:"profile_path"`
	CheckType   string `mapstructure:"check_type"`
}

// Codes splits NicCode by comma and drops empty entries.
func (m *MetaConfig) Codes() []string {
	var codes []string
	for _, c := range strings.Split(m.NicCode, ",") {
		if c = strings.TrimSpace(c); c != "" {
			codes = append(codes, c)
		}
	}
	return codes
}

type PortalConfig struct {
	LoginURL              string `mapstructure:"login_url"`
	HomeURL               string `mapstructure:"home_url"`
	ApplicationHistoryURL string `mapstructure:"application_history_url"`
}

type FormConfig struct {
	CompanyType        string `mapstructure:"company_type"`
	CompanyClass       string `mapstructure:"company_class"`
	CompanyCategory    string `mapstructure:"company_category"`
	CompanySubCategory string `mapstructure:"company_sub_category"`
	NameSuffix         string `mapstructure:"name_suffix"`
	PageSizePolicy     string `mapstructure:"page_size_policy"`
	PageSizes          []int  `mapstructure:"page_sizes"`
}

type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless"`
	WindowWidth       int           `mapstructure:"window_width"`
	WindowHeight      int           `mapstructure:"window_height"`
	UserAgent         string        `mapstructure:"user_agent"`
	ElementTimeout    time.Duration `mapstructure:"element_timeout"`
	StepTimeout       time.Duration `mapstructure:"step_timeout"`
	CaptchaTimeout    time.Duration `mapstructure:"captcha_timeout"`
	FailureWait       time.Duration `mapstructure:"failure_wait"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	SettleDelay       time.Duration `mapstructure:"settle_delay"`
	ScrollSettle      time.Duration `mapstructure:"scroll_settle"`
	StaleBackoff      time.Duration `mapstructure:"stale_backoff"`
	Retries           int           `mapstructure:"retries"`
	CaptchaAttempts   int           `mapstructure:"captcha_attempts"`
	ScreenshotDir     string        `mapstructure:"screenshot_dir"`
	ScreenshotTimeout time.Duration `mapstructure:"screenshot_timeout"`
	CaptchaRejectWait time.Duration `mapstructure:"captcha_reject_wait"`
}

type CaptchaConfig struct {
	URL            string        `mapstructure:"url"`
	UserID         string        `mapstructure:"user_id"`
	ApiKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Retries        int           `mapstructure:"retries"`
}

type LlmConfig struct {
	Provider    string        `mapstructure:"provider"`
	ApiKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	FastModel   string        `mapstructure:"fast_model"`
	SmartModel  string        `mapstructure:"smart_model"`
	MaxRetries  int           `mapstructure:"max_retries"`
	RetryWait   time.Duration `mapstructure:"retry_wait"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float32       `mapstructure:"temperature"`
}

type WorkerConfig struct {
	MaxWorkers  int           `mapstructure:"max_workers"`
	TaskTimeout time.Duration `mapstructure:"task_timeout"`
	QueueSize   int           `mapstructure:"queue_size"`
}

type CacheConfig struct {
	Backend  string        `mapstructure:"backend"`
	Servers  string        `mapstructure:"servers"`
	RedisURL string        `mapstructure:"redis_url"`
	Ttl      time.Duration `mapstructure:"ttl"`
}

type DatabaseConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
}

type KafkaConfig struct {
	Enabled  bool            `mapstructure:"enabled"`
	Producer *ProducerConfig `mapstructure:"producer"`
	Consumer *ConsumerConfig `mapstructure:"consumer"`
}

type ProducerConfig struct {
	Addr           string        `mapstructure:"addr"`
	WriteTopicName string        `mapstructure:"write_topic_name"`
	MaxAttempts    int           `mapstructure:"max_attempts"`
	BatchSize      int           `mapstructure:"batch_size"`
	BatchTimeout   time.Duration `mapstructure:"batch_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequiredAsks   int           `mapstructure:"required_acks"`
	Async          bool          `mapstructure:"async"`
}

type ConsumerConfig struct {
	ReadTopicName    string        `mapstructure:"read_topic_name"`
	Brokers          string        `mapstructure:"brokers"`
	GroupID          string        `mapstructure:"group_id"`
	MaxWait          time.Duration `mapstructure:"max_wait"`
	ReadBatchTimeout time.Duration `mapstructure:"read_batch_timeout"`
}

type S3Config struct {
	Enabled         bool   `mapstructure:"enabled"`
	AwsAccessKey    string `mapstructure:"aws_access_key"`
	AwsSecretKey    string `mapstructure:"aws_secret_key"`
	AwsBaseEndpoint string `mapstructure:"aws_base_endpoint"`
	Region          string `mapstructure:"region"`
	BucketName      string `mapstructure:"bucket_name"`
	KeyPrefix       string `mapstructure:"key_prefix"`
}

type StatusConfig struct {
	URL            string        `mapstructure:"url"`
	ContentID      string        `mapstructure:"content_id"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	Ttl            time.Duration `mapstructure:"ttl"`
}

// ErrMissingCredentials is returned when the portal username or password is empty.
var ErrMissingCredentials = errors.New("missing portal credentials")

// MissingCredentials lists which of username and password are empty.
func (c *Config) MissingCredentials() []string {
	var missing []string
	if strings.TrimSpace(c.Username) == "" {
		missing = append(missing, "username")
	}
	if strings.TrimSpace(c.Password) == "" {
		missing = append(missing, "password")
	}
	return missing
}

// ForRequest returns a copy of the config that carries the given company name, codes and check type.
// The receiver is never modified, so concurrent requests cannot observe each other's values.
func (c *Config) ForRequest(companyName, nicCode, checkType string) *Config {
	cp := *c
	meta := MetaConfig{}
	if c.Meta != nil {
		meta = *c.Meta
	}
	meta.CompanyName = companyName
	if nicCode != "" {
		meta.NicCode = nicCode
	}
	if checkType != "" {
		meta.CheckType = checkType
	}
	cp.Meta = &meta
	if c.FormSettings != nil {
		form := *c.FormSettings
		form.PageSizes = append([]int(nil), c.FormSettings.PageSizes...)
		cp.FormSettings = &form
	}
	return &cp
}

// MustLoad loads the config from the working directory. When required is set a missing config.yaml is fatal.
func MustLoad(required bool) *Config {
	load := Load
	if required {
		load = LoadFile
	}
	cfg, err := load(".")
	if err != nil {
		slog.Error("can't initialize config file.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	return cfg
}

// Load reads config.yaml from dir, then applies .env and environment overrides.
// A missing config.yaml leaves the defaults in place.
func Load(dir string) (*Config, error) {
	return load(dir, false)
}

// LoadFile is Load, except that config.yaml must exist.
func LoadFile(dir string) (*Config, error) {
	return load(dir, true)
}

func load(dir string, required bool) (*Config, error) {
	// .env is optional
	_ = godotenv.Load(path.Join(dir, ".env"))

	v := viper.New()
	v.AddConfigPath(path.Join(dir))
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || required {
			return nil, err
		}
		slog.Warn("config file not found. Using defaults and environment.")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "local")
	v.SetDefault("log_level", "debug")
	v.SetDefault("log_type", "text")
	v.SetDefault("service_name", "name-check-worker")
	v.SetDefault("port", "8000")
	v.SetDefault("version", "dev")

	v.SetDefault("meta.url", "https://www.mca.gov.in/content/mca/global/en/mca/e-filing/incorporation-change-services/spice.html")
	v.SetDefault("meta.check_type", "name")
	v.SetDefault("portal.login_url", "https://www.mca.gov.in/content/mca/global/en/foportal/fologin.html")
	v.SetDefault("portal.home_url", "https://www.mca.gov.in/content/mca/global/en/home.html")
	v.SetDefault("portal.application_history_url", "https://www.mca.gov.in/content/mca/global/en/application-history.html")

	v.SetDefault("form.company_type", "New Company (Others)")
	v.SetDefault("form.company_class", "Private")
	v.SetDefault("form.company_category", "Company limited by shares")
	v.SetDefault("form.company_sub_category", "Non-government company")
	v.SetDefault("form.name_suffix", "PRIVATE LIMITED")
	v.SetDefault("form.page_size_policy", "positional")
	v.SetDefault("form.page_sizes", []int{10, 100})

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.window_width", 1920)
	v.SetDefault("browser.window_height", 1080)
	v.SetDefault("browser.element_timeout", 15*time.Second)
	v.SetDefault("browser.step_timeout", 30*time.Second)
	v.SetDefault("browser.captcha_timeout", 5*time.Second)
	v.SetDefault("browser.failure_wait", 2*time.Second)
	v.SetDefault("browser.poll_interval", 250*time.Millisecond)
	v.SetDefault("browser.settle_delay", time.Second)
	v.SetDefault("browser.scroll_settle", 500*time.Millisecond)
	v.SetDefault("browser.stale_backoff", time.Second)
	v.SetDefault("browser.retries", 3)
	v.SetDefault("browser.captcha_attempts", 3)
	v.SetDefault("browser.screenshot_dir", "Error Screenshots")
	v.SetDefault("browser.screenshot_timeout", 10*time.Second)
	v.SetDefault("browser.captcha_reject_wait", 3*time.Second)

	v.SetDefault("captcha.url", "https://api.apitruecaptcha.org/one/gettext")
	v.SetDefault("captcha.request_timeout", 30*time.Second)
	v.SetDefault("captcha.retries", 2)

	v.SetDefault("llm.provider", "openai")
	v.SetDefault("llm.fast_model", "gpt-4o-mini")
	v.SetDefault("llm.smart_model", "gpt-4o")
	v.SetDefault("llm.max_retries", 2)
	v.SetDefault("llm.retry_wait", time.Second)
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.temperature", 0.7)

	v.SetDefault("worker.max_workers", 1)
	v.SetDefault("worker.task_timeout", 10*time.Minute)
	v.SetDefault("worker.queue_size", 100)

	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl", 7*24*time.Hour)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.port", "3306")
	v.SetDefault("database.conn_max_lifetime", 3*time.Minute)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 10)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.producer.write_topic_name", "name-check-results")
	v.SetDefault("kafka.producer.max_attempts", 3)
	v.SetDefault("kafka.producer.batch_size", 10)
	v.SetDefault("kafka.producer.batch_timeout", time.Second)
	v.SetDefault("kafka.producer.read_timeout", 10*time.Second)
	v.SetDefault("kafka.producer.write_timeout", 10*time.Second)
	v.SetDefault("kafka.producer.required_acks", 1)
	v.SetDefault("kafka.consumer.read_topic_name", "name-check-tasks")
	v.SetDefault("kafka.consumer.group_id", "name-check-worker")
	v.SetDefault("kafka.consumer.max_wait", time.Second)
	v.SetDefault("kafka.consumer.read_batch_timeout", 10*time.Second)

	v.SetDefault("s3.enabled", false)
	v.SetDefault("s3.key_prefix", "name-checks")

	v.SetDefault("status.url", "https://www.mca.gov.in/content/mca/global/en/mca/e-filing/incorporation-change-services/spice.html")
	v.SetDefault("status.content_id", "guideContainer")
	v.SetDefault("status.request_timeout", 10*time.Second)
	v.SetDefault("status.ttl", time.Minute)
}
