// Package devicetest is a conformance suite every backing.Device
// implementation must pass.
package devicetest

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/dittoswap/pkg/backing"
	"github.com/marmos91/dittoswap/pkg/cache"
)

// PageSize is the page size factories must configure.
const PageSize = 512

// DeviceFactory creates a fresh Device with PageSize pages for each test.
// It may use t.TempDir() and t.Cleanup().
type DeviceFactory func(t *testing.T) backing.Device

// Page returns a PageSize page filled with a pattern derived from tag.
func Page(tag byte) []byte {
	p := make([]byte, PageSize)
	for i := range p {
		p[i] = tag ^ byte(i)
	}
	return p
}

// RunConformanceSuite runs every conformance test against factory.
func RunConformanceSuite(t *testing.T, factory DeviceFactory) {
	t.Helper()

	t.Run("ReadWrite", func(t *testing.T) { testReadWrite(t, factory(t)) })
	t.Run("Overwrite", func(t *testing.T) { testOverwrite(t, factory(t)) })
	t.Run("MissingSlot", func(t *testing.T) { testMissingSlot(t, factory(t)) })
	t.Run("Free", func(t *testing.T) { testFree(t, factory(t)) })
	t.Run("RegionsAreIndependent", func(t *testing.T) { testRegions(t, factory(t)) })
	t.Run("ShortBuffers", func(t *testing.T) { testShortBuffers(t, factory(t)) })
	t.Run("Concurrent", func(t *testing.T) { testConcurrent(t, factory(t)) })
	t.Run("HealthCheck", func(t *testing.T) { testHealthCheck(t, factory(t)) })
}

func testReadWrite(t *testing.T, dev backing.Device) {
	ctx := context.Background()
	assert.Equal(t, PageSize, dev.PageSize())
	assert.NotEmpty(t, dev.Kind())

	require.NoError(t, dev.WritePage(ctx, 0, 3, Page(1)))
	assert.True(t, dev.SlotInUse(0, 3))

	dst := make([]byte, PageSize)
	require.NoError(t, dev.ReadPage(ctx, 0, 3, dst))
	assert.Equal(t, Page(1), dst)

	// A large offset lands far into the region.
	require.NoError(t, dev.WritePage(ctx, 0, 1<<20, Page(2)))
	require.NoError(t, dev.ReadPage(ctx, 0, 1<<20, dst))
	assert.Equal(t, Page(2), dst)
}

func testOverwrite(t *testing.T, dev backing.Device) {
	ctx := context.Background()
	require.NoError(t, dev.WritePage(ctx, 1, 7, Page(1)))
	require.NoError(t, dev.WritePage(ctx, 1, 7, Page(2)))

	dst := make([]byte, PageSize)
	require.NoError(t, dev.ReadPage(ctx, 1, 7, dst))
	assert.Equal(t, Page(2), dst)
}

func testMissingSlot(t *testing.T, dev backing.Device) {
	dst := make([]byte, PageSize)
	err := dev.ReadPage(context.Background(), 0, 99, dst)
	assert.ErrorIs(t, err, backing.ErrSlotNotFound)
	assert.False(t, dev.SlotInUse(0, 99))
}

func testFree(t *testing.T, dev backing.Device) {
	ctx := context.Background()
	require.NoError(t, dev.WritePage(ctx, 0, 5, Page(5)))
	require.NoError(t, dev.WritePage(ctx, 0, 6, Page(6)))

	require.NoError(t, dev.FreePage(ctx, 0, 5))
	assert.False(t, dev.SlotInUse(0, 5))
	assert.True(t, dev.SlotInUse(0, 6))

	dst := make([]byte, PageSize)
	assert.ErrorIs(t, dev.ReadPage(ctx, 0, 5, dst), backing.ErrSlotNotFound)
	require.NoError(t, dev.ReadPage(ctx, 0, 6, dst))
	assert.Equal(t, Page(6), dst, "neighbour survives a free")

	// Freeing twice, or a slot never written, is fine.
	require.NoError(t, dev.FreePage(ctx, 0, 5))
	require.NoError(t, dev.FreePage(ctx, 0, 1234))

	// A freed slot can be written again.
	require.NoError(t, dev.WritePage(ctx, 0, 5, Page(9)))
	require.NoError(t, dev.ReadPage(ctx, 0, 5, dst))
	assert.Equal(t, Page(9), dst)
}

func testRegions(t *testing.T, dev backing.Device) {
	ctx := context.Background()
	require.NoError(t, dev.WritePage(ctx, 0, 1, Page(10)))
	require.NoError(t, dev.WritePage(ctx, cache.MaxRegions-1, 1, Page(11)))

	dst := make([]byte, PageSize)
	require.NoError(t, dev.ReadPage(ctx, 0, 1, dst))
	assert.Equal(t, Page(10), dst)
	require.NoError(t, dev.ReadPage(ctx, cache.MaxRegions-1, 1, dst))
	assert.Equal(t, Page(11), dst)
	assert.False(t, dev.SlotInUse(2, 1))
}

func testShortBuffers(t *testing.T, dev backing.Device) {
	ctx := context.Background()
	short := make([]byte, PageSize-1)
	assert.ErrorIs(t, dev.WritePage(ctx, 0, 1, short), backing.ErrShortPage)
	assert.False(t, dev.SlotInUse(0, 1))

	require.NoError(t, dev.WritePage(ctx, 0, 1, Page(1)))
	assert.ErrorIs(t, dev.ReadPage(ctx, 0, 1, short), backing.ErrShortPage)

	// Oversized buffers carry one page; the tail of dst is left alone.
	long := bytes.Repeat([]byte{0xEE}, PageSize+8)
	require.NoError(t, dev.ReadPage(ctx, 0, 1, long))
	assert.Equal(t, Page(1), long[:PageSize])
	assert.Equal(t, bytes.Repeat([]byte{0xEE}, 8), long[PageSize:])
}

func testConcurrent(t *testing.T, dev backing.Device) {
	ctx := context.Background()
	const workers, pages = 4, 16

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			dst := make([]byte, PageSize)
			for i := 0; i < pages; i++ {
				off := uint64(w*pages + i)
				tag := byte(w*pages + i)
				if err := dev.WritePage(ctx, 0, off, Page(tag)); err != nil {
					t.Errorf("write %d: %v", off, err)
					return
				}
				if err := dev.ReadPage(ctx, 0, off, dst); err != nil {
					t.Errorf("read %d: %v", off, err)
					return
				}
				if !bytes.Equal(Page(tag), dst) {
					t.Errorf("offset %d: read back wrong page", off)
					return
				}
			}
		}(w)
	}
	wg.Wait()
}

func testHealthCheck(t *testing.T, dev backing.Device) {
	require.NoError(t, dev.HealthCheck(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, dev.HealthCheck(ctx))
}
