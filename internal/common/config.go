package common

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/joseph-ayodele/docproc/internal/core/quality"
)

// Config holds all application configuration. It is built once and passed by
// value; nothing mutates it after LoadConfig returns.
type Config struct {
	Processing  ProcessingConfig   `toml:"processing" yaml:"processing" json:"processing"`
	Image       ImageConfig        `toml:"image" yaml:"image" json:"image"`
	PDF         PDFConfig          `toml:"pdf" yaml:"pdf" json:"pdf"`
	Spreadsheet SpreadsheetConfig  `toml:"spreadsheet" yaml:"spreadsheet" json:"spreadsheet"`
	OCR         OCRConfig          `toml:"ocr" yaml:"ocr" json:"ocr"`
	Quality     quality.Thresholds `toml:"quality" yaml:"quality" json:"quality"`
	Store       StoreConfig        `toml:"store" yaml:"store" json:"store"`
	Log         LogConfig          `toml:"log" yaml:"log" json:"log"`
	Metrics     MetricsConfig      `toml:"metrics" yaml:"metrics" json:"metrics"`
}

// ProcessingConfig holds the resource envelope of a run
type ProcessingConfig struct {
	TimeoutSeconds int    `toml:"timeout_seconds" yaml:"timeout_seconds" json:"timeout_seconds"`
	MemoryLimitMB  int    `toml:"memory_limit_mb" yaml:"memory_limit_mb" json:"memory_limit_mb"` // 0 = unlimited
	Workers        int    `toml:"workers" yaml:"workers" json:"workers"`
	TempDir        string `toml:"temp_dir" yaml:"temp_dir" json:"temp_dir"`
	KeepTemps      bool   `toml:"keep_temps" yaml:"keep_temps" json:"keep_temps"`
}

// ImageConfig holds image optimization settings
type ImageConfig struct {
	MaxDimension  int     `toml:"max_dimension" yaml:"max_dimension" json:"max_dimension"`
	MaxSizeMB     float64 `toml:"max_size_mb" yaml:"max_size_mb" json:"max_size_mb"`
	TargetSizeMB  float64 `toml:"target_size_mb" yaml:"target_size_mb" json:"target_size_mb"`
	Compression   bool    `toml:"compression" yaml:"compression" json:"compression"`
	HeicConverter string  `toml:"heic_converter" yaml:"heic_converter" json:"heic_converter"` // heif-convert | magick | sips
}

// PDFConfig holds page extraction and rendering settings
type PDFConfig struct {
	RenderScale    float64 `toml:"render_scale" yaml:"render_scale" json:"render_scale"`
	MinPageChars   int     `toml:"min_page_chars" yaml:"min_page_chars" json:"min_page_chars"`
	MaxRenderPages int     `toml:"max_render_pages" yaml:"max_render_pages" json:"max_render_pages"`
	Renderer       string  `toml:"renderer" yaml:"renderer" json:"renderer"` // binary name or absolute path of pdftoppm
}

// SpreadsheetConfig caps what is serialized per sheet
type SpreadsheetConfig struct {
	MaxRows int `toml:"max_rows" yaml:"max_rows" json:"max_rows"`
	MaxCols int `toml:"max_cols" yaml:"max_cols" json:"max_cols"`
}

// OCRConfig holds OCR-related configuration
type OCRConfig struct {
	Engine      string `toml:"engine" yaml:"engine" json:"engine"` // tesseract | none
	Binary      string `toml:"binary" yaml:"binary" json:"binary"`
	Language    string `toml:"language" yaml:"language" json:"language"`
	TessdataDir string `toml:"tessdata_dir" yaml:"tessdata_dir" json:"tessdata_dir"`
	PSM         int    `toml:"psm" yaml:"psm" json:"psm"`
	OEM         int    `toml:"oem" yaml:"oem" json:"oem"`
	PoolSize    int    `toml:"pool_size" yaml:"pool_size" json:"pool_size"`
	// TSVConfidence runs a second tesseract pass to read word confidences.
	TSVConfidence bool `toml:"tsv_confidence" yaml:"tsv_confidence" json:"tsv_confidence"`
}

// StoreConfig configures the result archive
type StoreConfig struct {
	Path string `toml:"path" yaml:"path" json:"path"` // empty disables the archive
}

// LogConfig configures the slog handler
type LogConfig struct {
	Level  string `toml:"level" yaml:"level" json:"level"`
	Format string `toml:"format" yaml:"format" json:"format"` // json | text
}

// MetricsConfig configures the Prometheus endpoint
type MetricsConfig struct {
	Addr string `toml:"addr" yaml:"addr" json:"addr"` // empty disables metrics
}

// Timeout is the whole-document deadline.
func (p ProcessingConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

// MemoryLimitBytes is the per-step memory ceiling, 0 when unlimited.
func (p ProcessingConfig) MemoryLimitBytes() uint64 {
	if p.MemoryLimitMB <= 0 {
		return 0
	}
	return uint64(p.MemoryLimitMB) << 20
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Processing: ProcessingConfig{
			TimeoutSeconds: 300,
			Workers:        runtime.NumCPU(),
			TempDir:        os.TempDir(),
		},
		Image: ImageConfig{
			MaxDimension:  1600,
			MaxSizeMB:     3,
			TargetSizeMB:  2,
			Compression:   true,
			HeicConverter: "magick",
		},
		PDF: PDFConfig{
			RenderScale:    1.5,
			MinPageChars:   50,
			MaxRenderPages: 4,
			Renderer:       "pdftoppm",
		},
		Spreadsheet: SpreadsheetConfig{
			MaxRows: 1000,
			MaxCols: 100,
		},
		OCR: OCRConfig{
			Engine:   "tesseract",
			Binary:   "tesseract",
			Language: "eng",
		},
		Quality: quality.DefaultThresholds(),
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// LoadConfig builds the configuration: defaults, then the optional file at
// path (TOML or YAML by extension, validated against the config schema), then
// DOCPROC_* environment variables.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return NewAppError("CONFIG_ERROR", "read config file", err)
	}

	var raw map[string]any
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".toml", "":
		err = toml.Unmarshal(data, &raw)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &raw)
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unsupported config format %q", ext), ErrInvalidInput)
	}
	if err != nil {
		return NewAppError("CONFIG_ERROR", "parse config file", err)
	}
	if err := validateAgainstSchema(raw); err != nil {
		return NewAppError("CONFIG_ERROR", "config file does not match schema", err)
	}

	switch ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = toml.Unmarshal(data, cfg)
	}
	if err != nil {
		return NewAppError("CONFIG_ERROR", "decode config file", err)
	}
	return nil
}

// validateAgainstSchema round-trips raw through JSON so numbers reach the
// validator as json.Number whatever the source format produced.
func validateAgainstSchema(raw map[string]any) error {
	if raw == nil {
		return nil
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return ValidateJSONAgainstSchema(configSchema, bytes.NewReader(b))
}

func applyEnv(cfg *Config) {
	p := &cfg.Processing
	p.TimeoutSeconds = getEnvAsInt("DOCPROC_TIMEOUT_SECONDS", p.TimeoutSeconds)
	p.MemoryLimitMB = getEnvAsInt("DOCPROC_MEMORY_LIMIT_MB", p.MemoryLimitMB)
	p.Workers = getEnvAsInt("DOCPROC_WORKERS", p.Workers)
	p.TempDir = getEnv("DOCPROC_TEMP_DIR", p.TempDir)
	p.KeepTemps = getEnvAsBool("DOCPROC_KEEP_TEMPS", p.KeepTemps)

	cfg.Image.MaxDimension = getEnvAsInt("DOCPROC_IMAGE_MAX_DIMENSION", cfg.Image.MaxDimension)
	cfg.Image.Compression = getEnvAsBool("DOCPROC_IMAGE_COMPRESSION", cfg.Image.Compression)
	cfg.Image.HeicConverter = getEnv("HEIC_CONVERTER", cfg.Image.HeicConverter)

	cfg.PDF.Renderer = getEnv("DOCPROC_PDF_RENDERER", cfg.PDF.Renderer)

	cfg.OCR.Engine = getEnv("DOCPROC_OCR_ENGINE", cfg.OCR.Engine)
	cfg.OCR.Binary = getEnv("DOCPROC_TESSERACT", cfg.OCR.Binary)
	cfg.OCR.Language = getEnv("DOCPROC_OCR_LANGUAGE", cfg.OCR.Language)
	cfg.OCR.TessdataDir = getEnv("TESSDATA_PREFIX", cfg.OCR.TessdataDir)

	cfg.Quality.MinValidCharRatio = getEnvAsFloat64("DOCPROC_QUALITY_MIN_VALID_RATIO", cfg.Quality.MinValidCharRatio)
	cfg.Quality.MaxSpecialCharRatio = getEnvAsFloat64("DOCPROC_QUALITY_MAX_SPECIAL_RATIO", cfg.Quality.MaxSpecialCharRatio)

	cfg.Store.Path = getEnv("DOCPROC_STORE", cfg.Store.Path)
	cfg.Log.Level = getEnv("DOCPROC_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("DOCPROC_LOG_FORMAT", cfg.Log.Format)
	cfg.Metrics.Addr = getEnv("DOCPROC_METRICS_ADDR", cfg.Metrics.Addr)
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Processing.TimeoutSeconds <= 0 {
		return NewAppError("CONFIG_ERROR", "processing.timeout_seconds must be positive", ErrInvalidInput)
	}
	if c.Processing.MemoryLimitMB < 0 {
		return NewAppError("CONFIG_ERROR", "processing.memory_limit_mb must not be negative", ErrInvalidInput)
	}
	if c.Processing.Workers <= 0 {
		return NewAppError("CONFIG_ERROR", "processing.workers must be positive", ErrInvalidInput)
	}
	if c.Image.MaxDimension <= 0 {
		return NewAppError("CONFIG_ERROR", "image.max_dimension must be positive", ErrInvalidInput)
	}
	if c.Image.TargetSizeMB > c.Image.MaxSizeMB {
		return NewAppError("CONFIG_ERROR", "image.target_size_mb must not exceed image.max_size_mb", ErrInvalidInput)
	}
	if c.PDF.RenderScale <= 0 {
		return NewAppError("CONFIG_ERROR", "pdf.render_scale must be positive", ErrInvalidInput)
	}
	if c.PDF.MaxRenderPages <= 0 {
		return NewAppError("CONFIG_ERROR", "pdf.max_render_pages must be positive", ErrInvalidInput)
	}
	if c.Spreadsheet.MaxRows <= 0 || c.Spreadsheet.MaxCols <= 0 {
		return NewAppError("CONFIG_ERROR", "spreadsheet limits must be positive", ErrInvalidInput)
	}
	switch c.OCR.Engine {
	case "tesseract", "none", "":
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown ocr.engine %q", c.OCR.Engine), ErrInvalidInput)
	}
	switch c.Image.HeicConverter {
	case "heif-convert", "magick", "sips", "":
	default:
		return NewAppError("CONFIG_ERROR", fmt.Sprintf("unknown image.heic_converter %q", c.Image.HeicConverter), ErrInvalidInput)
	}
	return nil
}
