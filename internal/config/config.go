package config

import (
	"errors"
	"fmt"
	"math"
	"runtime"
	"slices"
	"strings"

	"github.com/spf13/viper"
)

// Failure policies for the load phase.
const (
	FailureWaitAll  = "wait_all"
	FailureFailFast = "fail_fast"
)

// Backends lists every store.backend value the factory understands.
var Backends = []string{"memory", "aztable", "azblob", "s3", "local", "sqlite", "duckdb", "postgres", "redis"}

// Config holds all configuration for one benchmark run. It is built once by
// Load and never mutated afterwards.
type Config struct {
	Log        LogConfig
	Bench      BenchConfig
	Partitions []Partition
	Store      StoreConfig
	Report     ReportConfig
}

type LogConfig struct {
	Level  string
	Format string
}

type BenchConfig struct {
	TableName              string
	SampleSizePerPartition int // 0 means use SamplePercentage
	SamplePercentage       int
	UploadBatchSize        int
	QueryBatchSize         int
	QueryConcurrency       int
	LookupConcurrency      int
	Seed                   uint64 // 0 seeds from the clock
	FailurePolicy          string
	PopulationScale        float64
}

// Partition is one named partition and the number of entities to load into it.
type Partition struct {
	Name       string `mapstructure:"name"`
	Population int    `mapstructure:"population"`
}

type StoreConfig struct {
	Backend string

	LocalPath  string
	SQLitePath string
	DuckDBPath string

	PostgresDSN string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// S3/MinIO
	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string // or AWS_ACCESS_KEY_ID
	S3SecretKey string // or AWS_SECRET_ACCESS_KEY
	S3UseSSL    bool
	S3PathStyle bool

	// Azure Table and Blob Storage share credentials
	AzureConnectionString   string
	AzureAccountName        string
	AzureAccountKey         string
	AzureSASToken           string
	AzureContainer          string
	AzureEndpoint           string
	AzureUseManagedIdentity bool

	BlobWriteConcurrency int

	// Resilience, disabled while MaxRetries is 0
	MaxRetries         int
	RetryDelayMS       int
	BreakerMaxFailures int
}

type ReportConfig struct {
	PushgatewayURL string
	Job            string
	// ProgressIntervalMS is how often progress is sampled; 0 disables it.
	ProgressIntervalMS int
}

// Load reads configuration from defaults, an optional TOML file and
// TABLEBENCH_* environment variables. When path is empty the file is looked
// up as tablebench.toml in the usual places; a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("TABLEBENCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("tablebench")
		v.SetConfigType("toml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/tablebench/")
		v.AddConfigPath("$HOME/.tablebench/")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var partitions []Partition
	if err := v.UnmarshalKey("partitions", &partitions); err != nil {
		return nil, fmt.Errorf("invalid partitions: %w", err)
	}

	cfg := &Config{
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Bench: BenchConfig{
			TableName:              v.GetString("bench.table_name"),
			SampleSizePerPartition: v.GetInt("bench.sample_size_per_partition"),
			SamplePercentage:       v.GetInt("bench.sample_percentage"),
			UploadBatchSize:        v.GetInt("bench.upload_batch_size"),
			QueryBatchSize:         v.GetInt("bench.query_batch_size"),
			QueryConcurrency:       v.GetInt("bench.query_concurrency"),
			LookupConcurrency:      v.GetInt("bench.lookup_concurrency"),
			Seed:                   v.GetUint64("bench.seed"),
			FailurePolicy:          strings.ToLower(v.GetString("bench.failure_policy")),
			PopulationScale:        v.GetFloat64("bench.population_scale"),
		},
		Partitions: scalePartitions(partitions, v.GetFloat64("bench.population_scale")),
		Store: StoreConfig{
			Backend:                 strings.ToLower(v.GetString("store.backend")),
			LocalPath:               v.GetString("store.local_path"),
			SQLitePath:              v.GetString("store.sqlite_path"),
			DuckDBPath:              v.GetString("store.duckdb_path"),
			PostgresDSN:             v.GetString("store.postgres_dsn"),
			RedisAddr:               v.GetString("store.redis_addr"),
			RedisPassword:           v.GetString("store.redis_password"),
			RedisDB:                 v.GetInt("store.redis_db"),
			S3Bucket:                v.GetString("store.s3_bucket"),
			S3Region:                v.GetString("store.s3_region"),
			S3Endpoint:              v.GetString("store.s3_endpoint"),
			S3AccessKey:             v.GetString("store.s3_access_key"),
			S3SecretKey:             v.GetString("store.s3_secret_key"),
			S3UseSSL:                v.GetBool("store.s3_use_ssl"),
			S3PathStyle:             v.GetBool("store.s3_path_style"),
			AzureConnectionString:   v.GetString("store.azure_connection_string"),
			AzureAccountName:        v.GetString("store.azure_account_name"),
			AzureAccountKey:         v.GetString("store.azure_account_key"),
			AzureSASToken:           v.GetString("store.azure_sas_token"),
			AzureContainer:          v.GetString("store.azure_container"),
			AzureEndpoint:           v.GetString("store.azure_endpoint"),
			AzureUseManagedIdentity: v.GetBool("store.azure_use_managed_identity"),
			BlobWriteConcurrency:    v.GetInt("store.blob_write_concurrency"),
			MaxRetries:              v.GetInt("store.max_retries"),
			RetryDelayMS:            v.GetInt("store.retry_delay_ms"),
			BreakerMaxFailures:      v.GetInt("store.breaker_max_failures"),
		},
		Report: ReportConfig{
			PushgatewayURL:     v.GetString("report.pushgateway_url"),
			Job:                v.GetString("report.job"),
			ProgressIntervalMS: v.GetInt("report.progress_interval_ms"),
		},
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("bench.table_name", "ItaliansRegion")
	v.SetDefault("bench.sample_size_per_partition", 0)
	v.SetDefault("bench.sample_percentage", 1)
	v.SetDefault("bench.upload_batch_size", 100)
	v.SetDefault("bench.query_batch_size", 100)
	v.SetDefault("bench.query_concurrency", runtime.NumCPU())
	v.SetDefault("bench.lookup_concurrency", 1)
	v.SetDefault("bench.seed", 0)
	v.SetDefault("bench.failure_policy", FailureWaitAll)
	v.SetDefault("bench.population_scale", 1.0)

	v.SetDefault("partitions", defaultPartitions())

	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.local_path", "./data/tablebench")
	v.SetDefault("store.sqlite_path", "./data/tablebench.sqlite")
	v.SetDefault("store.duckdb_path", "./data/tablebench.duckdb")
	v.SetDefault("store.postgres_dsn", "postgres://localhost:5432/tablebench")
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.redis_password", "")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("store.s3_bucket", "")
	v.SetDefault("store.s3_region", "us-east-1")
	v.SetDefault("store.s3_endpoint", "")
	v.SetDefault("store.s3_access_key", "")
	v.SetDefault("store.s3_secret_key", "")
	v.SetDefault("store.s3_use_ssl", true)
	v.SetDefault("store.s3_path_style", false)
	v.SetDefault("store.azure_connection_string", "")
	v.SetDefault("store.azure_account_name", "")
	v.SetDefault("store.azure_account_key", "")
	v.SetDefault("store.azure_sas_token", "")
	v.SetDefault("store.azure_container", "tablebench")
	v.SetDefault("store.azure_endpoint", "")
	v.SetDefault("store.azure_use_managed_identity", false)
	v.SetDefault("store.blob_write_concurrency", 16)
	v.SetDefault("store.max_retries", 0)
	v.SetDefault("store.retry_delay_ms", 100)
	v.SetDefault("store.breaker_max_failures", 5)

	v.SetDefault("report.pushgateway_url", "")
	v.SetDefault("report.job", "tablebench")
	v.SetDefault("report.progress_interval_ms", 5000)
}

// defaultPartitions are the twenty Italian regions with their resident
// population (tuttitalia.it).
func defaultPartitions() []map[string]any {
	regions := []Partition{
		{"Lombardia", 10036258},
		{"Lazio", 5896693},
		{"Campania", 5826860},
		{"Sicilia", 5026989},
		{"Veneto", 4903722},
		{"Emilia Romagna", 4452629},
		{"Piemonte", 4375865},
		{"Puglia", 4048242},
		{"Toscana", 3736968},
		{"Calabria", 1956687},
		{"Sardegna", 1648176},
		{"Liguria", 1556981},
		{"Marche", 1531753},
		{"Abruzzo", 1315196},
		{"Friuli V. G.", 1216853},
		{"Trentino Alto Adige", 1067648},
		{"Umbria", 884640},
		{"Basilicata", 567118},
		{"Molise", 308493},
		{"V d'Aosta", 126202},
	}
	out := make([]map[string]any, len(regions))
	for i, r := range regions {
		out[i] = map[string]any{"name": r.Name, "population": r.Population}
	}
	return out
}

// scalePartitions multiplies every population by scale, rounding to the
// nearest integer. Non-positive scales are ignored.
func scalePartitions(parts []Partition, scale float64) []Partition {
	if scale <= 0 || scale == 1 {
		return parts
	}
	out := make([]Partition, len(parts))
	for i, p := range parts {
		out[i] = Partition{Name: p.Name, Population: int(math.Round(float64(p.Population) * scale))}
	}
	return out
}

// TotalPopulation is the sum of all partition populations.
func (c *Config) TotalPopulation() int64 {
	var total int64
	for _, p := range c.Partitions {
		total += int64(p.Population)
	}
	return total
}

// Validate rejects configurations the benchmark cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Bench.UploadBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("bench.upload_batch_size must be positive, got %d", c.Bench.UploadBatchSize))
	}
	if c.Store.Backend == "aztable" && c.Bench.UploadBatchSize > 100 {
		errs = append(errs, fmt.Errorf("bench.upload_batch_size must be at most 100 for aztable, got %d", c.Bench.UploadBatchSize))
	}
	if c.Bench.QueryBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("bench.query_batch_size must be positive, got %d", c.Bench.QueryBatchSize))
	}
	if c.Bench.QueryConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("bench.query_concurrency must be positive, got %d", c.Bench.QueryConcurrency))
	}
	if c.Bench.LookupConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("bench.lookup_concurrency must be positive, got %d", c.Bench.LookupConcurrency))
	}
	if c.Bench.SampleSizePerPartition < 0 {
		errs = append(errs, fmt.Errorf("bench.sample_size_per_partition cannot be negative"))
	}
	if c.Bench.SamplePercentage < 0 || c.Bench.SamplePercentage > 100 {
		errs = append(errs, fmt.Errorf("bench.sample_percentage must be within [0, 100], got %d", c.Bench.SamplePercentage))
	}
	if c.Bench.FailurePolicy != FailureWaitAll && c.Bench.FailurePolicy != FailureFailFast {
		errs = append(errs, fmt.Errorf("bench.failure_policy must be %q or %q, got %q", FailureWaitAll, FailureFailFast, c.Bench.FailurePolicy))
	}
	if c.Bench.TableName == "" {
		errs = append(errs, errors.New("bench.table_name is required"))
	}

	if !slices.Contains(Backends, c.Store.Backend) {
		errs = append(errs, fmt.Errorf("unknown store.backend %q (supported: %s)", c.Store.Backend, strings.Join(Backends, ", ")))
	}
	if c.Store.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("store.max_retries cannot be negative"))
	}
	if c.Report.ProgressIntervalMS < 0 {
		errs = append(errs, fmt.Errorf("report.progress_interval_ms cannot be negative"))
	}

	if len(c.Partitions) == 0 {
		errs = append(errs, errors.New("at least one partition is required"))
	}
	seen := make(map[string]struct{}, len(c.Partitions))
	for i, p := range c.Partitions {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("partitions[%d]: name is required", i))
			continue
		}
		if _, dup := seen[p.Name]; dup {
			errs = append(errs, fmt.Errorf("partitions[%d]: duplicate name %q", i, p.Name))
		}
		seen[p.Name] = struct{}{}
		if p.Population < 0 {
			errs = append(errs, fmt.Errorf("partitions[%d]: population cannot be negative, got %d", i, p.Population))
		}
	}

	return errors.Join(errs...)
}
