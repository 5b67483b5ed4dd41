package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
)

// Signature derives the metrics cache key of a file. It changes whenever
// the path, size, modification time or decode long edge change.
func Signature(path string, longEdge int) (string, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat file: %w", err)
	}
	return digest(path, strconv.FormatInt(stat.Size(), 10),
		strconv.FormatInt(stat.ModTime().UnixNano(), 10),
		strconv.Itoa(longEdge)), nil
}

// EmbeddingKey derives the embedding cache key of a file. A vector is only
// reusable under the same model and thumbnail size.
func EmbeddingKey(path string, thumbLongEdge int, model string) (string, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat file: %w", err)
	}
	return digest(model, strconv.Itoa(thumbLongEdge), path,
		strconv.FormatInt(stat.Size(), 10),
		strconv.FormatInt(stat.ModTime().UnixNano(), 10)), nil
}

// digest hashes length-prefixed parts so no two part lists collide
func digest(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		fmt.Fprintf(h, "%d:%s|", len(p), p)
	}
	return hex.EncodeToString(h.Sum(nil))
}
