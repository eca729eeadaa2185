// Package config loads server settings from .env and the environment, and
// the study catalogue from YAML.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/yumyai/varquery/internal/util"
	"github.com/yumyai/varquery/logger"
	"github.com/yumyai/varquery/pkg/partition"
)

type Config struct {
	DataDir       string
	StudiesFile   string
	Addr          string
	LogLevel      zapcore.Level
	QueueSize     int
	PutTimeout    time.Duration
	MaxNoInterest int
	Studies       []Study
}

// Tables names the tables of a SQL backed study.
type Tables struct {
	Database   string `yaml:"database"`
	Summary    string `yaml:"summary"`
	Family     string `yaml:"family"`
	EffectGene string `yaml:"effect_gene"`
	JoinKey    string `yaml:"join_key"`
}

// Study is one entry of the study catalogue.
type Study struct {
	ID      string `yaml:"id"`
	Backend string `yaml:"backend"`
	// DSN is the database/sql data source of sqlite, duckdb and impala
	// studies.
	DSN string `yaml:"dsn"`
	// Path is the root directory of a parquet study.
	Path string `yaml:"path"`
	// Project is the Google Cloud project of a bigquery study.
	Project string `yaml:"project"`

	Tables          Tables                `yaml:"tables"`
	Attributes      map[string]string     `yaml:"attributes"`
	ZygosityColumns bool                  `yaml:"zygosity_columns"`
	Partition       *partition.Descriptor `yaml:"partition"`
	// RegionLookback is how far before a region an allele may start and
	// still reach into it.
	RegionLookback int `yaml:"region_lookback"`
	// Reference is a FASTA file with a samtools .fai index next to it.
	Reference string `yaml:"reference"`
	// Pedigree is a tab separated file starting with family and person id.
	Pedigree       string `yaml:"pedigree"`
	MaxConnections int    `yaml:"max_connections"`
}

type catalogue struct {
	Studies []Study `yaml:"studies"`
}

// Load reads .env when present, then the environment, then the study file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		logger.Warn("No .env found, using local environment")
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a getenv style lookup.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		DataDir:  getenv("VARQUERY_DATA"),
		Addr:     getenv("VARQUERY_ADDR"),
		LogLevel: logger.ParseLevel(getenv("VARQUERY_LOG_LEVEL")),
	}
	if cfg.DataDir == "" {
		logger.Warn("No local environment (VARQUERY_DATA), using default value (./data)")
		cfg.DataDir = "./data"
	}
	if cfg.Addr == "" {
		cfg.Addr = "0.0.0.0:8080"
	}
	cfg.StudiesFile = getenv("VARQUERY_STUDIES")
	if cfg.StudiesFile == "" {
		cfg.StudiesFile = filepath.Join(cfg.DataDir, "studies.yaml")
	}

	var err error
	if cfg.QueueSize, err = intEnv(getenv, "VARQUERY_QUEUE_SIZE"); err != nil {
		return nil, err
	}
	if cfg.MaxNoInterest, err = intEnv(getenv, "VARQUERY_MAX_NO_INTEREST"); err != nil {
		return nil, err
	}
	if raw := getenv("VARQUERY_PUT_TIMEOUT"); raw != "" {
		if cfg.PutTimeout, err = time.ParseDuration(raw); err != nil {
			return nil, fmt.Errorf("VARQUERY_PUT_TIMEOUT: %w", err)
		}
	}

	if !util.FileExists(cfg.StudiesFile) {
		logger.Warn("No study catalogue, serving no studies", zap.String("path", cfg.StudiesFile))
		return cfg, nil
	}
	if cfg.Studies, err = LoadStudies(cfg.StudiesFile); err != nil {
		return nil, err
	}
	return cfg, nil
}

func intEnv(getenv func(string) string, name string) (int, error) {
	raw := getenv(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%s: must not be negative", name)
	}
	return n, nil
}

// LoadStudies reads a study catalogue. Relative paths inside it resolve
// against the catalogue's directory.
func LoadStudies(path string) ([]Study, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read study file: %w", err)
	}
	studies, err := ParseStudies(data)
	if err != nil {
		return nil, err
	}
	base := filepath.Dir(path)
	for i := range studies {
		studies[i].Path = resolve(base, studies[i].Path)
		studies[i].Reference = resolve(base, studies[i].Reference)
		studies[i].Pedigree = resolve(base, studies[i].Pedigree)
	}
	return studies, nil
}

func resolve(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}

// ParseStudies decodes a catalogue, rejecting unknown keys.
func ParseStudies(data []byte) ([]Study, error) {
	var c catalogue
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&c); err != nil {
		return nil, fmt.Errorf("failed to parse study file: %w", err)
	}
	seen := map[string]bool{}
	for _, s := range c.Studies {
		if err := s.validate(); err != nil {
			return nil, err
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("study %s: duplicate id", s.ID)
		}
		seen[s.ID] = true
	}
	return c.Studies, nil
}

func (s Study) validate() error {
	if s.ID == "" {
		return fmt.Errorf("study without id")
	}
	if s.Backend == "" {
		return fmt.Errorf("study %s: backend is required", s.ID)
	}
	for name, kind := range s.Attributes {
		if kind != "score" && kind != "frequency" {
			return fmt.Errorf("study %s: attribute %s: kind must be score or frequency, got %q", s.ID, name, kind)
		}
	}
	return nil
}
