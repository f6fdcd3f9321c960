package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/go-homedir"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/yuya-takeyama/goes-mirror/pkg/executor"
	"github.com/yuya-takeyama/goes-mirror/pkg/keyscheme"
	"github.com/yuya-takeyama/goes-mirror/pkg/planner"
	"github.com/yuya-takeyama/goes-mirror/pkg/s3client"
)

const EnvPrefix = "GOESMIRROR"

// Keys shared by flags, environment variables and the config file.
const (
	KeyRoot               = "root"
	KeyProducts           = "products"
	KeyPlatforms          = "platforms"
	KeyStart              = "start"
	KeyEnd                = "end"
	KeyIncludes           = "include"
	KeyExcludes           = "exclude"
	KeyOverwrite          = "overwrite"
	KeyDryRun             = "dryrun"
	KeyQuiet              = "quiet"
	KeyConcurrency        = "concurrency"
	KeyRegion             = "region"
	KeyMaxRetries         = "max-retries"
	KeyRetryBaseDelay     = "retry-base-delay"
	KeyRetryMaxDelay      = "retry-max-delay"
	KeyMultipartThreshold = "multipart-threshold"
	KeyLogLevel           = "log-level"
	KeyPlanJSONFile       = "plan-json-file"
	KeyResultJSONFile     = "result-json-file"
	KeyFrom               = "from"
)

// TimeLayouts are the accepted forms of start and end, most specific last.
var TimeLayouts = []string{"2006-01-02", "2006-01-02T15", time.RFC3339}

type MirrorConfig struct {
	Root      string
	Products  []string
	Platforms []string
	Start     time.Time
	End       time.Time
	Includes  []string
	Excludes  []string
	Overwrite bool
	DryRun    bool
	Quiet     bool

	Concurrency        int
	Region             string
	Retry              s3client.RetryPolicy
	MultipartThreshold int64
	LogLevel           logrus.Level

	PlanJSONFile   string
	ResultJSONFile string
}

type MigrateConfig struct {
	Root     string
	Source   string
	Excludes []string
	DryRun   bool
	Quiet    bool
	LogLevel logrus.Level

	ResultJSONFile string
}

// NewViper returns a viper instance reading GOESMIRROR_* variables, with
// every default set.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault(KeyConcurrency, executor.DefaultConcurrency)
	v.SetDefault(KeyRegion, s3client.DefaultRegion)
	v.SetDefault(KeyMaxRetries, s3client.DefaultMaxRetries)
	v.SetDefault(KeyRetryBaseDelay, s3client.DefaultBaseDelay)
	v.SetDefault(KeyRetryMaxDelay, s3client.DefaultMaxDelay)
	v.SetDefault(KeyMultipartThreshold, executor.DefaultMultipartThreshold)
	v.SetDefault(KeyLogLevel, "info")
	return v
}

// ReadFile merges a YAML (or any viper supported) config file into v.
// An empty path is a no-op.
func ReadFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("expand config path: %w", err)
	}
	v.SetConfigFile(expanded)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file %s: %w", expanded, err)
	}
	return nil
}

func LoadMirror(v *viper.Viper) (*MirrorConfig, error) {
	var result error
	cfg := &MirrorConfig{
		Products:  stringList(v, KeyProducts),
		Platforms: stringList(v, KeyPlatforms),
		Includes:  stringList(v, KeyIncludes),
		Excludes:  stringList(v, KeyExcludes),
		Overwrite: v.GetBool(KeyOverwrite),
		DryRun:    v.GetBool(KeyDryRun),
		Quiet:     v.GetBool(KeyQuiet),

		Concurrency: v.GetInt(KeyConcurrency),
		Region:      v.GetString(KeyRegion),
		Retry: s3client.RetryPolicy{
			MaxRetries: v.GetInt(KeyMaxRetries),
			BaseDelay:  v.GetDuration(KeyRetryBaseDelay),
			MaxDelay:   v.GetDuration(KeyRetryMaxDelay),
		},
		MultipartThreshold: v.GetInt64(KeyMultipartThreshold),
	}

	var err error
	if cfg.Root, err = expandPath(v.GetString(KeyRoot)); err != nil {
		result = multierror.Append(result, err)
	}
	if cfg.PlanJSONFile, err = expandPath(v.GetString(KeyPlanJSONFile)); err != nil {
		result = multierror.Append(result, err)
	}
	if cfg.ResultJSONFile, err = expandPath(v.GetString(KeyResultJSONFile)); err != nil {
		result = multierror.Append(result, err)
	}
	if cfg.LogLevel, err = logrus.ParseLevel(v.GetString(KeyLogLevel)); err != nil {
		result = multierror.Append(result, err)
	}

	if s := v.GetString(KeyStart); s == "" {
		result = multierror.Append(result, fmt.Errorf("%s is required", KeyStart))
	} else if cfg.Start, err = ParseTime(s); err != nil {
		result = multierror.Append(result, fmt.Errorf("%s: %w", KeyStart, err))
	}
	if s := v.GetString(KeyEnd); s == "" {
		if !cfg.Start.IsZero() {
			cfg.End = cfg.Start.AddDate(0, 0, 1)
		}
	} else if cfg.End, err = ParseTime(s); err != nil {
		result = multierror.Append(result, fmt.Errorf("%s: %w", KeyEnd, err))
	}

	if err := cfg.validate(); err != nil {
		result = multierror.Append(result, err)
	}
	if result != nil {
		return nil, result
	}
	return cfg, nil
}

func (c *MirrorConfig) validate() error {
	var result error
	if c.Root == "" {
		result = multierror.Append(result, fmt.Errorf("%s is required", KeyRoot))
	}
	if len(c.Products) == 0 {
		result = multierror.Append(result, fmt.Errorf("at least one product is required"))
	}
	for _, platform := range c.Platforms {
		if err := keyscheme.ValidatePlatform(platform); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if !c.Start.IsZero() && !c.End.IsZero() && !c.End.After(c.Start) {
		result = multierror.Append(result, fmt.Errorf("%s must be after %s", KeyEnd, KeyStart))
	}
	if c.Concurrency < 1 {
		result = multierror.Append(result, fmt.Errorf("%s must be at least 1, got %d", KeyConcurrency, c.Concurrency))
	}
	if c.Retry.MaxRetries < 0 {
		result = multierror.Append(result, fmt.Errorf("%s must not be negative", KeyMaxRetries))
	}
	if c.Retry.BaseDelay <= 0 || c.Retry.MaxDelay < c.Retry.BaseDelay {
		result = multierror.Append(result, fmt.Errorf("retry delays must satisfy 0 < %s <= %s", KeyRetryBaseDelay, KeyRetryMaxDelay))
	}
	if c.MultipartThreshold < 0 {
		result = multierror.Append(result, fmt.Errorf("%s must not be negative", KeyMultipartThreshold))
	}
	if _, err := planner.NewNameFilter(c.Includes, c.Excludes); err != nil {
		result = multierror.Append(result, err)
	}
	return result
}

// NameFilter compiles the include and exclude patterns.
func (c *MirrorConfig) NameFilter() (func(string) bool, error) {
	return planner.NewNameFilter(c.Includes, c.Excludes)
}

func LoadMigrate(v *viper.Viper) (*MigrateConfig, error) {
	var result error
	cfg := &MigrateConfig{
		Excludes: stringList(v, KeyExcludes),
		DryRun:   v.GetBool(KeyDryRun),
		Quiet:    v.GetBool(KeyQuiet),
	}

	var err error
	if cfg.Root, err = expandPath(v.GetString(KeyRoot)); err != nil {
		result = multierror.Append(result, err)
	}
	if cfg.Source, err = expandPath(v.GetString(KeyFrom)); err != nil {
		result = multierror.Append(result, err)
	}
	if cfg.ResultJSONFile, err = expandPath(v.GetString(KeyResultJSONFile)); err != nil {
		result = multierror.Append(result, err)
	}
	if cfg.LogLevel, err = logrus.ParseLevel(v.GetString(KeyLogLevel)); err != nil {
		result = multierror.Append(result, err)
	}
	if cfg.Root == "" {
		result = multierror.Append(result, fmt.Errorf("%s is required", KeyRoot))
	}

	if result != nil {
		return nil, result
	}
	return cfg, nil
}

// ParseTime parses s with the first matching layout of TimeLayouts. Values
// without a zone are UTC.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range TimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q, want one of %s", s, strings.Join(TimeLayouts, ", "))
}

// stringList reads a list that may come from a repeated flag, a YAML list or
// a comma separated environment variable.
func stringList(v *viper.Viper, key string) []string {
	var out []string
	for _, item := range v.GetStringSlice(key) {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func expandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("expand %s: %w", path, err)
	}
	return filepath.Abs(expanded)
}
