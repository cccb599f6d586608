package di

import (
	"context"
	"fmt"
	"os"
	"time"

	"Nowcast/internal/domain/models"
	"Nowcast/internal/domain/repository"
	internalrepo "Nowcast/internal/repository"
	"Nowcast/internal/services/calendar"
	"Nowcast/internal/services/folds"
	"Nowcast/internal/services/pooling"
	"Nowcast/internal/services/raggededge"
	"Nowcast/internal/services/selection"
	"Nowcast/internal/services/specsearch"
	"Nowcast/internal/usecase"
	"Nowcast/pkg/cache"
	pkgch "Nowcast/pkg/clickhouse"
	"Nowcast/pkg/config"
	pkgkafka "Nowcast/pkg/kafka"
	applogger "Nowcast/pkg/logger"
	"Nowcast/pkg/metrics"
	"Nowcast/pkg/server"
	"Nowcast/pkg/util"
)

// ProvideLogger creates the application logger with a warning digest attached.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	l.AddCollector(&applogger.CollectionConfig{})
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() *metrics.Recorder {
	return metrics.New()
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when the panel comes from CSV.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, func(), error) {
	if cfg.Inputs.Source != "clickhouse" {
		return nil, func() {}, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(4, 2),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("clickhouse client: %w", err)
	}
	return client, func() { _ = client.Close() }, nil
}

// ProvidePanelSource picks the CSV or ClickHouse input.
func ProvidePanelSource(cfg *config.Config, ch *pkgch.Client, l *applogger.Logger) (repository.PanelSource, error) {
	if cfg.Inputs.Source != "clickhouse" {
		return internalrepo.NewCSVPanelSource(cfg.Inputs.PanelCSV, cfg.Inputs.ReleasesCSV, l), nil
	}
	src, err := internalrepo.NewCHPanelSource(ch, cfg.Inputs.PanelTable, cfg.Inputs.ReleaseTable)
	if err != nil {
		return nil, err
	}
	src.SetLogger(l)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ch.InitSchema(ctx, src.Schema()); err != nil {
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return src, nil
}

// ProvideCacheStore creates the model cache backend.
func ProvideCacheStore(cfg *config.Config, l *applogger.Logger) (repository.CacheStore, func(), error) {
	switch cfg.Cache.Backend {
	case "memory":
		c := cache.NewMemoryCache()
		return internalrepo.NewKVStore(c, l), func() { _ = c.Close() }, nil
	case "redis":
		c, err := cache.NewRedisCache(
			cache.WithRedisHost(cfg.Cache.Redis.Host),
			cache.WithRedisPort(cfg.Cache.Redis.Port),
			cache.WithRedisPassword(cfg.Cache.Redis.Password),
			cache.WithRedisDB(cfg.Cache.Redis.DB),
			cache.WithRedisPrefix(cfg.Cache.Redis.Prefix),
			cache.WithRedisPool(cfg.Cache.Redis.PoolSize, 2, 30*time.Second),
		)
		if err != nil {
			return nil, nil, fmt.Errorf("redis cache: %w", err)
		}
		return internalrepo.NewKVStore(c, l), func() { _ = c.Close() }, nil
	default:
		s, err := internalrepo.NewFileStore(cfg.Cache.Dir, l)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	}
}

// ProvideKafkaProducer creates a Kafka producer, or nil when publishing is disabled.
func ProvideKafkaProducer(cfg *config.Config, rec *metrics.Recorder) (*pkgkafka.Producer, error) {
	if !cfg.Kafka.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.WriteTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithRegisterer(rec.Registry()),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}
	return producer, nil
}

// ProvideResultPublisher wraps the producer and routes the warning digest to it.
func ProvideResultPublisher(producer *pkgkafka.Producer, cfg *config.Config, l *applogger.Logger) (repository.ResultPublisher, func()) {
	if producer == nil {
		return nil, func() {}
	}
	pub := internalrepo.NewKafkaResultPublisher(producer, cfg.Kafka.Topic, cfg.Kafka.WarningsTopic, l)
	l.AddCollector(&applogger.CollectionConfig{Topic: cfg.Kafka.WarningsTopic, Publisher: pub})
	return pub, func() { _ = pub.Close() }
}

// ProvideCalendar builds the checkpoint calendar from the configured windows.
func ProvideCalendar(cfg *config.Config) (*calendar.Calendar, error) {
	windows := make([]calendar.Window, 0, len(cfg.Calendar.Windows))
	for i, w := range cfg.Calendar.Windows {
		label, err := models.ParseCheckpoint(w.Label)
		if err != nil {
			return nil, fmt.Errorf("calendar.windows[%d]: %w", i, err)
		}
		start, err := calendar.ParseMonthDay(w.Start)
		if err != nil {
			return nil, fmt.Errorf("calendar.windows[%d].start: %w", i, err)
		}
		end, err := calendar.ParseMonthDay(w.End)
		if err != nil {
			return nil, fmt.Errorf("calendar.windows[%d].end: %w", i, err)
		}
		windows = append(windows, calendar.Window{Label: label, Start: start, End: end})
	}
	return calendar.New(windows)
}

// ProvideIndicators converts the configured indicator list.
func ProvideIndicators(cfg *config.Config) []calendar.IndicatorSpec {
	out := make([]calendar.IndicatorSpec, len(cfg.Indicators))
	for i, ind := range cfg.Indicators {
		out[i] = calendar.IndicatorSpec{Name: ind.Name, Frequency: models.Frequency(ind.Frequency), Transform: ind.Transform}
	}
	return out
}

// ProvideBranches instantiates one selection strategy per configured branch.
func ProvideBranches(cfg *config.Config, l *applogger.Logger) ([]usecase.Branch, error) {
	out := make([]usecase.Branch, 0, len(cfg.Branches))
	for _, b := range cfg.Branches {
		s, err := selection.New(selection.Kind(b.Kind), selectionParams(b.Params), l)
		if err != nil {
			return nil, fmt.Errorf("branch %s: %w", b.Name, err)
		}
		out = append(out, usecase.Branch{Name: b.Name, Strategy: s})
	}
	return out, nil
}

func selectionParams(p config.SelectionParams) selection.Params {
	return selection.Params{
		Alpha:             p.Alpha,
		L1Ratio:           p.L1Ratio,
		NAlphas:           p.NAlphas,
		AlphaMinRatio:     p.AlphaMinRatio,
		CVSplits:          p.CVSplits,
		MaxIter:           p.MaxIter,
		Tol:               p.Tol,
		Rule:              selection.Rule(p.Rule),
		ThresholdDivisor:  p.ThresholdDivisor,
		Gamma:             p.Gamma,
		RidgeAlpha:        p.RidgeAlpha,
		TopK:              p.TopK,
		SignificanceLevel: p.SignificanceLevel,
		TargetLagControls: p.TargetLagControls,
	}
}

func gridParams(g config.GridConfig) specsearch.GridParams {
	return specsearch.GridParams{
		MaxTargetLags:    g.MaxTargetLags,
		MinIndicatorLags: g.MinIndicatorLags,
		MaxIndicatorLags: g.MaxIndicatorLags,
		AllowGaps:        g.AllowGaps,
	}
}

// ProvideBacktestConfig maps the run, search, pooling and assembler sections.
func ProvideBacktestConfig(cfg *config.Config) (usecase.BacktestConfig, error) {
	var (
		b   folds.Bounds
		out usecase.BacktestConfig
	)
	b.BacktestStart, _ = util.ParseTime(cfg.Run.BacktestStart)
	b.EvaluationStart, _ = util.ParseTime(cfg.Run.EvaluationStart)
	if cfg.Run.End != "" {
		b.End, _ = util.ParseTime(cfg.Run.End)
	}

	for _, c := range cfg.Run.Criteria {
		crit := models.Criterion(c)
		if !crit.IsValid() {
			return out, models.NewConfigurationError("run.criteria", "unknown criterion %q", c)
		}
		out.Criteria = append(out.Criteria, crit)
	}
	for _, s := range cfg.Pooling.Strategies {
		out.Pools = append(out.Pools, models.PoolStrategy(s))
	}

	out.Target = cfg.Run.Target
	out.LagDepth = cfg.Run.LagDepth
	out.Bounds = b
	out.BenchmarkLags = cfg.Run.BenchmarkLags
	out.PoolOptions = pooling.Options{
		Window:     cfg.Pooling.Window,
		Epsilon:    cfg.Pooling.Epsilon,
		MinHistory: cfg.Pooling.MinHistory,
	}
	out.MonthlyGrid = gridParams(cfg.Search.Monthly)
	out.QuarterlyGrid = gridParams(cfg.Search.Quarterly)
	out.Assembler = raggededge.Options{StrictLagRelease: cfg.Assembler.StrictLagRelease}
	if st := cfg.Assembler.Stationarity; st.Enabled {
		out.Assembler.Stationarity = raggededge.ADF{Lags: st.Lags, Significance: st.Significance, MinRows: st.MinRows}
	}
	return out, nil
}

// ProvideBacktestRunner assembles the runner.
func ProvideBacktestRunner(
	bc usecase.BacktestConfig,
	source repository.PanelSource,
	cal *calendar.Calendar,
	indicators []calendar.IndicatorSpec,
	branches []usecase.Branch,
	store repository.CacheStore,
	publisher repository.ResultPublisher,
	rec *metrics.Recorder,
	progress *usecase.Progress,
	l *applogger.Logger,
) (*usecase.BacktestRunner, error) {
	r, err := usecase.NewBacktestRunner(bc, source, cal, indicators, branches, store, publisher, rec, l)
	if err != nil {
		return nil, err
	}
	r.SetProgress(progress)
	return r, nil
}

// ProvideApp creates the application.
func ProvideApp(
	cfg *config.Config,
	runner *usecase.BacktestRunner,
	progress *usecase.Progress,
	rec *metrics.Recorder,
	l *applogger.Logger,
) *server.App {
	app := server.New(cfg, runner, progress, rec, l)
	app.SetOutput(os.Stdout)
	return app
}
