package config

import (
	"strings"

	"github.com/eclipse-os/eclipsefs/internal/bytesize"
	"github.com/eclipse-os/eclipsefs/pkg/fs/cache"
	"github.com/eclipse-os/eclipsefs/pkg/fs/crypt"
	"github.com/eclipse-os/eclipsefs/pkg/fs/engine"
	"github.com/eclipse-os/eclipsefs/pkg/fs/layout"
)

// ApplyDefaults fills any unspecified fields with sensible defaults.
// Zero values are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyEngineDefaults(&cfg.Engine)
	applyCacheDefaults(&cfg.Cache)
	applyEncryptionDefaults(&cfg.Encryption)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyEngineDefaults(cfg *EngineConfig) {
	if cfg.BlockSize == 0 {
		cfg.BlockSize = bytesize.ByteSize(layout.DefaultBlockSize)
	}
	if cfg.TotalBlocks == 0 {
		cfg.TotalBlocks = engine.DefaultTotalBlocks
	}
}

func applyCacheDefaults(cfg *CacheConfig) {
	if cfg.Strategy == "" {
		cfg.Strategy = cache.StrategyLRU
	}
	if cfg.Capacity == 0 {
		cfg.Capacity = cache.DefaultCapacity
	}
}

func applyEncryptionDefaults(cfg *EncryptionConfig) {
	if cfg.DefaultAlgorithm == "" {
		cfg.DefaultAlgorithm = "none"
	}
	if cfg.RotationThreshold == 0 {
		cfg.RotationThreshold = crypt.DefaultRotationThreshold
	}
}

// GetDefaultConfig returns a fully defaulted configuration. Compression
// is on by default; encryption is opt-in per path.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Engine: EngineConfig{Compression: true},
	}
	ApplyDefaults(cfg)
	return cfg
}

// EngineOptions translates the configuration into engine options.
func EngineOptions(cfg *Config, metrics cache.Metrics) (engine.Options, error) {
	algo, err := crypt.ParseAlgorithm(cfg.Encryption.DefaultAlgorithm)
	if err != nil {
		return engine.Options{}, err
	}
	return engine.Options{
		BlockSize:         uint32(cfg.Engine.BlockSize.Uint64()),
		TotalBlocks:       cfg.Engine.TotalBlocks,
		CacheStrategy:     cfg.Cache.Strategy,
		CacheCapacity:     cfg.Cache.Capacity,
		Compression:       cfg.Engine.Compression,
		DefaultAlgorithm:  algo,
		RotationThreshold: cfg.Encryption.RotationThreshold,
		Metrics:           metrics,
	}, nil
}
