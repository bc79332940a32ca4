// Package bytesize parses and prints memory sizes in configuration files,
// such as the cache's page budget ("256Mi") or the page size ("4Ki").
package bytesize

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

// ByteSize is a size in bytes that unmarshals from strings like "1Gi",
// "500Mi", "100MB" or a plain number. Binary units (Ki, Mi, Gi, Ti with or
// without a trailing B) are powers of 1024; decimal units (K, M, G, T,
// KB, ...) are powers of 1000.
type ByteSize uint64

// Common byte size constants
const (
	B  ByteSize = 1
	KB ByteSize = 1000
	MB ByteSize = 1000 * KB
	GB ByteSize = 1000 * MB
	TB ByteSize = 1000 * GB

	KiB ByteSize = 1024
	MiB ByteSize = 1024 * KiB
	GiB ByteSize = 1024 * MiB
	TiB ByteSize = 1024 * GiB
)

// ParseByteSize parses a human-readable byte size string.
func ParseByteSize(s string) (ByteSize, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty byte size string")
	}
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("negative byte size: %q", s)
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}
	return ByteSize(n), nil
}

// UnmarshalText implements encoding.TextUnmarshaler so ByteSize works with
// mapstructure and yaml decoding.
func (b *ByteSize) UnmarshalText(text []byte) error {
	size, err := ParseByteSize(string(text))
	if err != nil {
		return err
	}
	*b = size
	return nil
}

// MarshalText writes the largest binary unit that divides b exactly, so the
// value round-trips through UnmarshalText.
func (b ByteSize) MarshalText() ([]byte, error) {
	units := []struct {
		size   ByteSize
		suffix string
	}{{TiB, "Ti"}, {GiB, "Gi"}, {MiB, "Mi"}, {KiB, "Ki"}}

	for _, u := range units {
		if b >= u.size && b%u.size == 0 {
			return []byte(strconv.FormatUint(uint64(b/u.size), 10) + u.suffix), nil
		}
	}
	return []byte(strconv.FormatUint(uint64(b), 10)), nil
}

// String returns a human-readable, possibly rounded, representation.
func (b ByteSize) String() string {
	return humanize.IBytes(uint64(b))
}

// Pages returns how many whole pages of pageSize fit in b. A zero pageSize
// yields zero.
func (b ByteSize) Pages(pageSize int) int {
	if pageSize <= 0 {
		return 0
	}
	return int(uint64(b) / uint64(pageSize))
}

// Uint64 returns the ByteSize as a uint64.
func (b ByteSize) Uint64() uint64 {
	return uint64(b)
}

// Int returns the ByteSize as an int.
func (b ByteSize) Int() int {
	return int(b)
}
