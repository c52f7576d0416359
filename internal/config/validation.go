package config

import "fmt"

// Validate checks all configuration values and returns the first violation
// as a wrapped sentinel error. Violations are fatal at startup and never
// retried.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk_size must be positive, got %d", ErrInvalidChunkSize, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 {
		return fmt.Errorf("%w: chunk_overlap must not be negative, got %d", ErrInvalidChunkOverlap, c.ChunkOverlap)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap %d must be smaller than chunk_size %d",
			ErrInvalidChunkOverlap, c.ChunkOverlap, c.ChunkSize)
	}

	if c.EmbedderDimension <= 0 {
		return fmt.Errorf("%w: embedder_dimension must be positive, got %d",
			ErrInvalidEmbedderDimension, c.EmbedderDimension)
	}
	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model must not be empty", ErrInvalidEmbedderModel)
	}

	if c.CacheTTL <= 0 {
		return fmt.Errorf("%w: cache_ttl must be positive, got %s", ErrInvalidCacheTTL, c.CacheTTL)
	}
	if c.CacheMaxEntries <= 0 {
		return fmt.Errorf("%w: cache_max_entries must be positive, got %d",
			ErrInvalidCacheSize, c.CacheMaxEntries)
	}

	if c.TopK <= 0 || c.TopK > 100 {
		return fmt.Errorf("%w: top_k must be in [1, 100], got %d", ErrInvalidTopK, c.TopK)
	}
	if c.Threshold < -1 || c.Threshold > 1 {
		return fmt.Errorf("%w: threshold must be in [-1, 1], got %g", ErrInvalidThreshold, c.Threshold)
	}

	if c.MonitorCapacity <= 0 {
		return fmt.Errorf("%w: monitor_capacity must be positive, got %d",
			ErrInvalidMonitorCapacity, c.MonitorCapacity)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: postgres_host must not be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: postgres_port must be in [1, 65535], got %d",
			ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: postgres_db_name must not be empty", ErrInvalidPostgresDBName)
	}

	return nil
}
