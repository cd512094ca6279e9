package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/LdDl/cell-tracker-go/celltrack"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable holding the config file path
const EnvConfigPath = "CELLTRACK_CONFIG"

const maxFileSize = 1 * 1024 * 1024

// Config is the tracking configuration. Every field is optional: nil means "use the default",
// so partial files are safe. Use the Get* methods to read values.
type Config struct {
	// Labeler
	MinSize      *int    `yaml:"min_size,omitempty"`
	MaxSize      *int    `yaml:"max_size,omitempty"`
	Connectivity *int    `yaml:"connectivity,omitempty"` // 4 or 8
	Ranking      *string `yaml:"ranking,omitempty"`      // "overlap" or "area"
	TieBreak     *string `yaml:"tie_break,omitempty"`    // "oldest" or "youngest"
	MaxID        *uint32 `yaml:"max_id,omitempty"`
	Motion       *bool   `yaml:"motion,omitempty"`

	// Runtime
	ProgressEvery *int     `yaml:"progress_every,omitempty"`
	Workers       *int     `yaml:"workers,omitempty"`
	LogLevel      *string  `yaml:"log_level,omitempty"`
	DBPath        *string  `yaml:"db_path,omitempty"`
	MinIoU        *float64 `yaml:"min_iou,omitempty"` // evaluation match threshold
}

func ptrInt(v int) *int             { return &v }
func ptrString(v string) *string    { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrUint32(v uint32) *uint32    { return &v }
func ptrFloat64(v float64) *float64 { return &v }

// Load reads configuration from an optional YAML file and then applies CELLTRACK_* environment overrides.
// Empty path falls back to CELLTRACK_CONFIG; no file at all yields defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	cfg := &Config{}
	if path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".yaml" && ext != ".yml" {
		return errors.Errorf("config file must have .yaml or .yml extension, got %q", ext)
	}
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return errors.Wrap(err, "Can't stat config file")
	}
	if fileInfo.Size() > maxFileSize {
		return errors.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return errors.Wrap(err, "Can't read config file")
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return errors.Wrap(err, "Can't parse config file")
	}
	return nil
}

// applyEnv overrides fields from environment variables
func (c *Config) applyEnv(getenv func(string) string) error {
	intVars := []struct {
		name string
		dst  **int
	}{
		{"CELLTRACK_MIN_SIZE", &c.MinSize},
		{"CELLTRACK_MAX_SIZE", &c.MaxSize},
		{"CELLTRACK_CONNECTIVITY", &c.Connectivity},
		{"CELLTRACK_PROGRESS_EVERY", &c.ProgressEvery},
		{"CELLTRACK_WORKERS", &c.Workers},
	}
	for _, v := range intVars {
		raw := getenv(v.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return errors.Wrapf(err, "invalid %s", v.name)
		}
		*v.dst = ptrInt(n)
	}
	if raw := getenv("CELLTRACK_MAX_ID"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			return errors.Wrap(err, "invalid CELLTRACK_MAX_ID")
		}
		c.MaxID = ptrUint32(uint32(n))
	}
	if raw := getenv("CELLTRACK_MOTION"); raw != "" {
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return errors.Wrap(err, "invalid CELLTRACK_MOTION")
		}
		c.Motion = ptrBool(b)
	}
	if raw := getenv("CELLTRACK_MIN_IOU"); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return errors.Wrap(err, "invalid CELLTRACK_MIN_IOU")
		}
		c.MinIoU = ptrFloat64(f)
	}
	if raw := getenv("CELLTRACK_RANKING"); raw != "" {
		c.Ranking = ptrString(raw)
	}
	if raw := getenv("CELLTRACK_TIE_BREAK"); raw != "" {
		c.TieBreak = ptrString(raw)
	}
	if raw := getenv("CELLTRACK_LOG_LEVEL"); raw != "" {
		c.LogLevel = ptrString(raw)
	}
	if raw := getenv("CELLTRACK_DB_PATH"); raw != "" {
		c.DBPath = ptrString(raw)
	}
	return nil
}

// Validate checks that the configuration values are valid.
func (c *Config) Validate() error {
	if c.MinSize != nil && *c.MinSize < 0 {
		return errors.Errorf("min_size must be non-negative, got %d", *c.MinSize)
	}
	if c.MaxSize != nil && *c.MaxSize < 0 {
		return errors.Errorf("max_size must be non-negative, got %d", *c.MaxSize)
	}
	if c.GetMaxSize() > 0 && c.GetMaxSize() < c.GetMinSize() {
		return errors.Errorf("max_size %d is below min_size %d", c.GetMaxSize(), c.GetMinSize())
	}
	if c.Connectivity != nil && *c.Connectivity != 4 && *c.Connectivity != 8 {
		return errors.Errorf("connectivity must be 4 or 8, got %d", *c.Connectivity)
	}
	if _, err := c.ranking(); err != nil {
		return err
	}
	if _, err := c.tieBreak(); err != nil {
		return err
	}
	if c.MaxID != nil && (*c.MaxID == 0 || *c.MaxID > 65535) {
		return errors.Errorf("max_id must be in [1, 65535], got %d", *c.MaxID)
	}
	if c.ProgressEvery != nil && *c.ProgressEvery <= 0 {
		return errors.Errorf("progress_every must be positive, got %d", *c.ProgressEvery)
	}
	if c.Workers != nil && *c.Workers <= 0 {
		return errors.Errorf("workers must be positive, got %d", *c.Workers)
	}
	if _, err := c.logLevel(); err != nil {
		return err
	}
	if c.MinIoU != nil && (*c.MinIoU <= 0 || *c.MinIoU > 1) {
		return errors.Errorf("min_iou must be in (0, 1], got %f", *c.MinIoU)
	}
	return nil
}

// GetMinSize returns the minimum blob size, defaulting to 0 (keep everything).
func (c *Config) GetMinSize() int {
	if c.MinSize == nil {
		return 0
	}
	return *c.MinSize
}

// GetMaxSize returns the maximum blob size, defaulting to 0 (unbounded).
func (c *Config) GetMaxSize() int {
	if c.MaxSize == nil {
		return 0
	}
	return *c.MaxSize
}

// GetConnectivity returns the labeler connectivity, defaulting to 8.
func (c *Config) GetConnectivity() celltrack.Connectivity {
	if c.Connectivity != nil && *c.Connectivity == 4 {
		return celltrack.Connectivity4
	}
	return celltrack.Connectivity8
}

// GetRanking returns the resolver ranking criterion, defaulting to overlap.
func (c *Config) GetRanking() celltrack.Ranking {
	r, _ := c.ranking()
	return r
}

func (c *Config) ranking() (celltrack.Ranking, error) {
	if c.Ranking == nil {
		return celltrack.RankOverlap, nil
	}
	switch strings.ToLower(*c.Ranking) {
	case "", "overlap":
		return celltrack.RankOverlap, nil
	case "area":
		return celltrack.RankArea, nil
	default:
		return celltrack.RankOverlap, errors.Errorf("ranking must be \"overlap\" or \"area\", got %q", *c.Ranking)
	}
}

// GetTieBreak returns the resolver tie-break rule, defaulting to oldest.
func (c *Config) GetTieBreak() celltrack.TieBreak {
	tb, _ := c.tieBreak()
	return tb
}

func (c *Config) tieBreak() (celltrack.TieBreak, error) {
	if c.TieBreak == nil {
		return celltrack.TieOldest, nil
	}
	switch strings.ToLower(*c.TieBreak) {
	case "", "oldest":
		return celltrack.TieOldest, nil
	case "youngest":
		return celltrack.TieYoungest, nil
	default:
		return celltrack.TieOldest, errors.Errorf("tie_break must be \"oldest\" or \"youngest\", got %q", *c.TieBreak)
	}
}

// GetMaxID returns the largest global ID, defaulting to 65535.
func (c *Config) GetMaxID() uint32 {
	if c.MaxID == nil {
		return 65535
	}
	return *c.MaxID
}

// GetMotion returns whether Kalman motion estimation is enabled, defaulting to false.
func (c *Config) GetMotion() bool {
	if c.Motion == nil {
		return false
	}
	return *c.Motion
}

// GetProgressEvery returns the progress reporting interval in frames, defaulting to 10.
func (c *Config) GetProgressEvery() int {
	if c.ProgressEvery == nil {
		return 10
	}
	return *c.ProgressEvery
}

// GetWorkers returns the number of FOVs processed in parallel, defaulting to 4.
func (c *Config) GetWorkers() int {
	if c.Workers == nil {
		return 4
	}
	return *c.Workers
}

// GetLogLevel returns the log level, defaulting to info.
func (c *Config) GetLogLevel() slog.Level {
	level, _ := c.logLevel()
	return level
}

func (c *Config) logLevel() (slog.Level, error) {
	if c.LogLevel == nil || *c.LogLevel == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(*c.LogLevel)); err != nil {
		return slog.LevelInfo, errors.Wrapf(err, "invalid log_level %q", *c.LogLevel)
	}
	return level, nil
}

// GetDBPath returns the SQLite database path, defaulting to "celltrack.db".
func (c *Config) GetDBPath() string {
	if c.DBPath == nil {
		return "celltrack.db"
	}
	return *c.DBPath
}

// GetMinIoU returns the evaluation match threshold, defaulting to 0.5.
func (c *Config) GetMinIoU() float64 {
	if c.MinIoU == nil {
		return 0.5
	}
	return *c.MinIoU
}

// TrackerConfig converts the configuration into the core tracker configuration
func (c *Config) TrackerConfig(logger *slog.Logger) celltrack.Config {
	return celltrack.Config{
		Label: celltrack.LabelOptions{
			Connectivity: c.GetConnectivity(),
			MinSize:      c.GetMinSize(),
			MaxSize:      c.GetMaxSize(),
		},
		Resolver: celltrack.ResolverConfig{
			Ranking:  c.GetRanking(),
			TieBreak: c.GetTieBreak(),
			MaxID:    c.GetMaxID(),
			Motion:   c.GetMotion(),
		},
		ProgressEvery: c.GetProgressEvery(),
		Logger:        logger,
	}
}
