package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"Nowcast/pkg/util"
)

type Config struct {
	Environment string        `yaml:"environment" default:"dev"`
	Run         RunConfig     `yaml:"run"`
	Calendar    struct {
		Windows []WindowConfig `yaml:"windows" validate:"required,min=1,dive"`
	} `yaml:"calendar"`
	Indicators []IndicatorConfig `yaml:"indicators" validate:"required,min=1,dive"`
	Branches   []BranchConfig    `yaml:"branches" validate:"required,min=1,dive"`
	Search     struct {
		Monthly   GridConfig `yaml:"monthly"`
		Quarterly GridConfig `yaml:"quarterly"`
	} `yaml:"search"`
	Pooling struct {
		Strategies []string `yaml:"strategies" default:"[\"average\",\"median\",\"msfe\"]" validate:"dive,oneof=average median msfe"`
		Window     int      `yaml:"window" default:"8" validate:"gte=1"`
		Epsilon    float64  `yaml:"epsilon" default:"1e-8" validate:"gt=0"`
		MinHistory int      `yaml:"min_history" default:"2" validate:"gte=1"`
	} `yaml:"pooling"`
	Assembler struct {
		StrictLagRelease bool `yaml:"strict_lag_release"`
		Stationarity     struct {
			Enabled      bool    `yaml:"enabled"`
			Lags         int     `yaml:"lags" default:"1" validate:"gte=0"`
			Significance float64 `yaml:"significance" default:"0.05"`
			MinRows      int     `yaml:"min_rows" default:"12" validate:"gte=4"`
		} `yaml:"stationarity"`
	} `yaml:"assembler"`
	Cache struct {
		Backend string `yaml:"backend" default:"file" validate:"oneof=file memory redis"`
		Dir     string `yaml:"dir" default:"./cache"`
		Redis   struct {
			Host     string `yaml:"host" default:"localhost"`
			Port     int    `yaml:"port" default:"6379"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix" default:"nowcast"`
			PoolSize int    `yaml:"pool_size" default:"10" validate:"gte=1"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	Inputs struct {
		Source       string `yaml:"source" default:"csv" validate:"oneof=csv clickhouse"`
		PanelCSV     string `yaml:"panel_csv"`
		ReleasesCSV  string `yaml:"releases_csv"`
		PanelTable   string `yaml:"panel_table" default:"nowcast_panel"`
		ReleaseTable string `yaml:"release_table" default:"nowcast_releases"`
	} `yaml:"inputs"`
	ClickHouse struct {
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"default"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"10s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"60s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"60s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
	Kafka struct {
		Enabled       bool     `yaml:"enabled"`
		Brokers       []string `yaml:"brokers"`
		Topic         string   `yaml:"topic" default:"nowcast.results"`
		WarningsTopic string   `yaml:"warnings_topic" default:"nowcast.warnings"`
		RequiredAcks  int      `yaml:"required_acks" default:"-1"`
		Compression   string   `yaml:"compression" default:"snappy" validate:"oneof=none gzip snappy lz4 zstd"`
		Producer      struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"5"`
			BatchSize    int           `yaml:"batch_size" default:"500"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			Linger       time.Duration `yaml:"linger" default:"20ms"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
		} `yaml:"producer"`
	} `yaml:"kafka"`
	HTTP struct {
		Enabled         bool          `yaml:"enabled"`
		Host            string        `yaml:"host" default:"0.0.0.0"`
		Port            int           `yaml:"port" default:"9102" validate:"gte=1,lte=65535"`
		MetricsPath     string        `yaml:"metrics_path" default:"/metrics"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"5s"`
		// Hold keeps the server up after the run until SIGINT/SIGTERM.
		Hold bool `yaml:"hold"`
	} `yaml:"http"`
	Logging struct {
		Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
		Format string `yaml:"format" default:"console" validate:"oneof=console json"`
		Output string `yaml:"output" default:"stderr"`
	} `yaml:"logging"`
}

type RunConfig struct {
	Target          string   `yaml:"target" validate:"required"`
	LagDepth        int      `yaml:"lag_depth" default:"4" validate:"gte=1"`
	BacktestStart   string   `yaml:"backtest_start" validate:"required"`
	EvaluationStart string   `yaml:"evaluation_start" validate:"required"`
	End             string   `yaml:"end"` // empty = last quarter of the panel
	Criteria        []string `yaml:"criteria" default:"[\"bic\",\"aic\",\"adjr2\"]" validate:"min=1,dive,oneof=bic aic adjr2"`
	BenchmarkLags   int      `yaml:"benchmark_lags" default:"2" validate:"gte=1"`
}

// WindowConfig is one checkpoint window. Start and End are "M-D" where M counts
// months from the quarter's first month (1..12, 4 = first month after the quarter).
type WindowConfig struct {
	Label string `yaml:"label" validate:"required"`
	Start string `yaml:"start" validate:"required"`
	End   string `yaml:"end" validate:"required"`
}

type IndicatorConfig struct {
	Name      string `yaml:"name" validate:"required"`
	Frequency string `yaml:"frequency" validate:"required,oneof=daily monthly quarterly"`
	Transform string `yaml:"transform" default:"none"`
}

type BranchConfig struct {
	Name   string          `yaml:"name" validate:"required"`
	Kind   string          `yaml:"kind" validate:"required,oneof=elastic_net_cv elastic_net_fixed adaptive_lasso hard_threshold"`
	Params SelectionParams `yaml:"params"`
}

// SelectionParams carries the knobs of every selection kind; each kind reads its own.
type SelectionParams struct {
	Alpha             float64 `yaml:"alpha"`
	L1Ratio           float64 `yaml:"l1_ratio" default:"0.5" validate:"gt=0,lte=1"`
	NAlphas           int     `yaml:"n_alphas" default:"50" validate:"gte=2"`
	AlphaMinRatio     float64 `yaml:"alpha_min_ratio" default:"0.001" validate:"gt=0,lt=1"`
	CVSplits          int     `yaml:"cv_splits" default:"5" validate:"gte=2"`
	MaxIter           int     `yaml:"max_iter" default:"1000" validate:"gte=1"`
	Tol               float64 `yaml:"tol" default:"0.0001" validate:"gt=0"`
	Rule              string  `yaml:"rule" default:"nonzero" validate:"oneof=nonzero soft_threshold"`
	ThresholdDivisor  float64 `yaml:"threshold_divisor" default:"10" validate:"gt=0"`
	Gamma             float64 `yaml:"gamma" default:"1" validate:"gt=0"`
	RidgeAlpha        float64 `yaml:"ridge_alpha" default:"1" validate:"gt=0"`
	TopK              int     `yaml:"top_k" validate:"gte=0"`
	SignificanceLevel float64 `yaml:"significance_level" default:"0.95" validate:"gt=0,lt=1"`
	TargetLagControls int     `yaml:"target_lag_controls" default:"1" validate:"gte=0"`
}

type GridConfig struct {
	MaxTargetLags    int  `yaml:"max_target_lags" default:"2" validate:"gte=0"`
	MinIndicatorLags int  `yaml:"min_indicator_lags" default:"1" validate:"gte=1"`
	MaxIndicatorLags int  `yaml:"max_indicator_lags" default:"4" validate:"gtefield=MinIndicatorLags"`
	AllowGaps        bool `yaml:"allow_gaps"`
}

var validate = validator.New()

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(b)
}

// Parse decodes YAML, applies defaults and validates the result.
func Parse(b []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("config defaults: %w", err)
	}
	for i := range c.Indicators {
		if err := defaults.Set(&c.Indicators[i]); err != nil {
			return nil, fmt.Errorf("config defaults: indicators[%d]: %w", i, err)
		}
	}
	for i := range c.Branches {
		if err := defaults.Set(&c.Branches[i].Params); err != nil {
			return nil, fmt.Errorf("config defaults: branches[%d]: %w", i, err)
		}
	}

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	c.applyEnv(os.Getenv)
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return c, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("NOWCAST_TARGET"); v != "" {
		c.Run.Target = v
	}
	if v := getenv("NOWCAST_CACHE_BACKEND"); v != "" {
		c.Cache.Backend = v
	}
	if v := getenv("NOWCAST_CACHE_DIR"); v != "" {
		c.Cache.Dir = v
	}
	if v := getenv("NOWCAST_REDIS_HOST"); v != "" {
		c.Cache.Redis.Host = v
	}
	if v := getenv("NOWCAST_REDIS_PORT"); v != "" {
		c.Cache.Redis.Port = util.ParseIntDefault(v, c.Cache.Redis.Port)
	}
	if v := getenv("NOWCAST_REDIS_PASSWORD"); v != "" {
		c.Cache.Redis.Password = v
	}
	if v := getenv("NOWCAST_CLICKHOUSE_HOST"); v != "" {
		c.ClickHouse.Host = v
	}
	if v := getenv("NOWCAST_CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}
	if v := getenv("NOWCAST_KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
		c.Kafka.Enabled = true
	}
	if v := getenv("NOWCAST_HTTP_PORT"); v != "" {
		c.HTTP.Port = util.ParseIntDefault(v, c.HTTP.Port)
	}
	if v := getenv("NOWCAST_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	for _, f := range []struct{ name, value string }{
		{"run.backtest_start", c.Run.BacktestStart},
		{"run.evaluation_start", c.Run.EvaluationStart},
	} {
		if _, ok := util.ParseTime(f.value); !ok {
			return fmt.Errorf("%s: cannot parse %q", f.name, f.value)
		}
	}
	if c.Run.End != "" {
		if _, ok := util.ParseTime(c.Run.End); !ok {
			return fmt.Errorf("run.end: cannot parse %q", c.Run.End)
		}
	}

	switch c.Assembler.Stationarity.Significance {
	case 0.01, 0.05, 0.1:
	default:
		return fmt.Errorf("assembler.stationarity.significance must be 0.01, 0.05 or 0.1")
	}

	seen := make(map[string]bool, len(c.Indicators))
	for _, ind := range c.Indicators {
		if seen[ind.Name] {
			return fmt.Errorf("indicators: duplicate %q", ind.Name)
		}
		if ind.Name == c.Run.Target {
			return fmt.Errorf("indicators: %q is the target", ind.Name)
		}
		seen[ind.Name] = true
	}

	branches := make(map[string]bool, len(c.Branches))
	for _, b := range c.Branches {
		if branches[b.Name] {
			return fmt.Errorf("branches: duplicate %q", b.Name)
		}
		branches[b.Name] = true
		if b.Kind == "elastic_net_fixed" && b.Params.Alpha <= 0 {
			return fmt.Errorf("branches.%s: elastic_net_fixed needs params.alpha > 0", b.Name)
		}
	}

	if c.Search.Monthly.AllowGaps || c.Search.Quarterly.AllowGaps {
		return fmt.Errorf("search: allow_gaps is not supported, lag blocks must start at zero without holes")
	}

	switch c.Inputs.Source {
	case "csv":
		if c.Inputs.PanelCSV == "" || c.Inputs.ReleasesCSV == "" {
			return fmt.Errorf("inputs: csv source needs panel_csv and releases_csv")
		}
	case "clickhouse":
		if c.ClickHouse.Host == "" {
			return fmt.Errorf("clickhouse.host is required for the clickhouse source")
		}
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty when kafka is enabled")
	}
	return nil
}
