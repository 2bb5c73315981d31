// Package hashing wraps the perceptual image hashing collaborator.
//
// It computes a fixed-width average hash over downloaded photo bytes and
// provides pluggable duplicate matching: exact hash equality (the default)
// or near-duplicate matching via Hamming distance over the stored index.
package hashing

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strconv"

	"github.com/corona10/goimagehash"
	_ "golang.org/x/image/webp"

	"github.com/picstream/photogate/internal/models"
	"github.com/picstream/photogate/internal/store"
)

// Matching strategy names accepted in configuration.
const (
	StrategyExact   = "exact"
	StrategyHamming = "hamming"
)

// DefaultHammingThreshold is the maximum Hamming distance between two average
// hashes below which images are considered perceptually identical.
const DefaultHammingThreshold = 10

// Hasher computes a perceptual hash from raw image bytes.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// AverageHasher hashes images with the 64-bit average hash.
type AverageHasher struct{}

// Hash decodes the image (jpeg, png, gif or webp) and returns its average
// hash as a 16-digit hex string.
func (AverageHasher) Hash(data []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrUndecodableImage, err)
	}
	h, err := goimagehash.AverageHash(img)
	if err != nil {
		return "", fmt.Errorf("average hash failed: %w", err)
	}
	return FormatHash(h.GetHash()), nil
}

// FormatHash renders a 64-bit hash as the canonical 16-digit hex string used
// as the dedup store key.
func FormatHash(bits uint64) string {
	return fmt.Sprintf("%016x", bits)
}

// ParseHash parses the canonical hex form back into hash bits.
func ParseHash(s string) (uint64, error) {
	bits, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid hash %q: %w", s, err)
	}
	return bits, nil
}

// Matcher finds the stored record a new hash collides with, or nil when the
// hash is unseen. The choice of matcher changes collision rates materially,
// so it is a configuration decision, not a hard-coded one.
type Matcher interface {
	Match(hash string, repo store.HashRepo) (*store.HashRecord, error)
}

// ExactMatcher matches on hash string equality via a keyed lookup.
type ExactMatcher struct{}

func (ExactMatcher) Match(hash string, repo store.HashRepo) (*store.HashRecord, error) {
	return repo.LookupOrigin(hash)
}

// HammingMatcher matches when the Hamming distance to any stored hash is at
// or below Threshold. It scans the whole index; update volume is tens of
// images per hour, so the scan is cheap.
type HammingMatcher struct {
	Threshold int
}

func (m HammingMatcher) Match(hash string, repo store.HashRepo) (*store.HashRecord, error) {
	bits, err := ParseHash(hash)
	if err != nil {
		return nil, err
	}
	candidate := goimagehash.NewImageHash(bits, goimagehash.AHash)

	records, err := repo.AllHashes()
	if err != nil {
		return nil, err
	}
	for i := range records {
		storedBits, err := ParseHash(records[i].Hash)
		if err != nil {
			// Skip malformed rows rather than failing the whole match.
			continue
		}
		stored := goimagehash.NewImageHash(storedBits, goimagehash.AHash)
		dist, err := candidate.Distance(stored)
		if err != nil {
			continue
		}
		if dist <= m.Threshold {
			return &records[i], nil
		}
	}
	return nil, nil
}

// NewMatcher constructs the matcher named by strategy. Threshold applies to
// the hamming strategy only; values below 1 fall back to the default.
func NewMatcher(strategy string, threshold int) (Matcher, error) {
	switch strategy {
	case StrategyExact, "":
		return ExactMatcher{}, nil
	case StrategyHamming:
		if threshold < 1 {
			threshold = DefaultHammingThreshold
		}
		return HammingMatcher{Threshold: threshold}, nil
	default:
		return nil, fmt.Errorf("unknown hash matching strategy %q", strategy)
	}
}
