package segment

import (
	"fmt"

	"github.com/cloo-solutions/docpipe/internal/domain"
)

// ShortSegmentPolicy decides what happens to segments below MinChunkTokens.
type ShortSegmentPolicy string

const (
	// FoldShortSegments merges a short segment into its neighbour so no text is lost.
	FoldShortSegments ShortSegmentPolicy = "fold"
	// DropShortSegments discards short segments.
	DropShortSegments ShortSegmentPolicy = "drop"
)

// Config controls segmentation. Sizes are in tokens unless stated otherwise.
type Config struct {
	TargetChunkTokens  int
	ChunkOverlapTokens int
	MinChunkTokens     int
	// ForceSingleChunkCharThreshold is measured in characters: inputs shorter
	// than this are returned as one chunk.
	ForceSingleChunkCharThreshold int
	ShortSegments                 ShortSegmentPolicy
}

// DefaultConfig provides sane defaults for segmentation.
func DefaultConfig() Config {
	return Config{
		TargetChunkTokens:             1000,
		ChunkOverlapTokens:            150,
		MinChunkTokens:                25,
		ForceSingleChunkCharThreshold: 150,
		ShortSegments:                 FoldShortSegments,
	}
}

// Validate reports a configuration error for unusable parameters.
func (c Config) Validate() error {
	switch {
	case c.TargetChunkTokens <= 0:
		return configError("target chunk tokens must be positive, got %d", c.TargetChunkTokens)
	case c.ChunkOverlapTokens < 0:
		return configError("chunk overlap tokens cannot be negative, got %d", c.ChunkOverlapTokens)
	case c.ChunkOverlapTokens >= c.TargetChunkTokens:
		return configError("chunk overlap (%d) must be smaller than target (%d)", c.ChunkOverlapTokens, c.TargetChunkTokens)
	case c.MinChunkTokens < 0:
		return configError("min chunk tokens cannot be negative, got %d", c.MinChunkTokens)
	case c.MinChunkTokens > c.TargetChunkTokens:
		return configError("min chunk tokens (%d) exceeds target (%d)", c.MinChunkTokens, c.TargetChunkTokens)
	case c.ForceSingleChunkCharThreshold < 0:
		return configError("single chunk threshold cannot be negative, got %d", c.ForceSingleChunkCharThreshold)
	}
	switch c.ShortSegments {
	case "", FoldShortSegments, DropShortSegments:
	default:
		return configError("unknown short segment policy %q", c.ShortSegments)
	}
	return nil
}

func configError(format string, args ...any) error {
	return domain.Wrap(domain.ErrConfiguration, fmt.Errorf(format, args...))
}
