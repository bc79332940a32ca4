package apiclient

import (
	"net/http"
	"time"

	"github.com/marmos91/dittoswap/pkg/cache"
)

// Grace is the grace period reported by the server.
type Grace struct {
	Seconds int64 `json:"seconds"`
}

// Duration returns the grace period as a time.Duration.
func (g Grace) Duration() time.Duration {
	return time.Duration(g.Seconds) * time.Second
}

// Promoted is a reset-on-read counter value.
type Promoted struct {
	Pages int64 `json:"pages"`
}

// PrefetchResult reports a read-ahead pass.
type PrefetchResult struct {
	Requested int `json:"requested"`
	Issued    int `json:"issued"`
	Pending   int `json:"pending"`
}

type regionsResponse struct {
	Regions []cache.RegionID `json:"regions"`
}

// Stats returns every cache counter without resetting any of them.
func (c *Client) Stats() (*cache.Stats, error) {
	return fetch[cache.Stats](c, "/api/v1/stats")
}

// ResetStats clears the event counters.
func (c *Client) ResetStats() error {
	_, err := c.call(request{method: http.MethodDelete, path: "/api/v1/stats"})
	return err
}

// Grace returns the current grace period.
func (c *Client) Grace() (*Grace, error) {
	return fetch[Grace](c, "/api/v1/grace")
}

// SetGrace sets the grace period in whole seconds and returns the value in
// effect afterwards. The server ignores negative values.
func (c *Client) SetGrace(seconds int64) (*Grace, error) {
	var g Grace
	_, err := c.call(request{
		method: http.MethodPut,
		path:   "/api/v1/grace",
		in:     map[string]int64{"seconds": seconds},
		out:    &g,
	})
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// TakePromoted returns and resets the promoted page counter.
func (c *Client) TakePromoted() (int64, error) {
	return c.takePromoted("/api/v1/promoted")
}

// TakeDiskPromoted returns and resets the disk promoted page counter.
func (c *Client) TakeDiskPromoted() (int64, error) {
	return c.takePromoted("/api/v1/promoted/disk")
}

func (c *Client) takePromoted(path string) (int64, error) {
	p, err := fetch[Promoted](c, path)
	if err != nil {
		return 0, err
	}
	return p.Pages, nil
}

// Prefetch asks for a read-ahead pass of up to pages pages.
func (c *Client) Prefetch(pages int) (*PrefetchResult, error) {
	var res PrefetchResult
	_, err := c.call(request{
		method: http.MethodPost,
		path:   "/api/v1/prefetch",
		in:     map[string]int{"pages": pages},
		out:    &res,
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// Regions returns the initialized regions.
func (c *Client) Regions() ([]cache.RegionID, error) {
	resp, err := fetch[regionsResponse](c, "/api/v1/regions")
	if err != nil {
		return nil, err
	}
	return resp.Regions, nil
}

// InitRegion initializes a region.
func (c *Client) InitRegion(region cache.RegionID) error {
	_, err := c.call(request{method: http.MethodPost, path: regionPath(region)})
	return err
}

// InvalidateArea tears a region down.
func (c *Client) InvalidateArea(region cache.RegionID) error {
	_, err := c.call(request{method: http.MethodDelete, path: regionPath(region)})
	return err
}

// StorePage stores a page.
func (c *Client) StorePage(region cache.RegionID, offset uint64, page []byte) error {
	if page == nil {
		page = []byte{}
	}
	_, err := c.call(request{method: http.MethodPut, path: pagePath(region, offset), page: page})
	return err
}

// LoadPage loads a page. A cached page leaves the cache.
func (c *Client) LoadPage(region cache.RegionID, offset uint64) ([]byte, error) {
	return c.call(request{method: http.MethodGet, path: pagePath(region, offset)})
}

// InvalidatePage drops a cached page.
func (c *Client) InvalidatePage(region cache.RegionID, offset uint64) error {
	_, err := c.call(request{method: http.MethodDelete, path: pagePath(region, offset)})
	return err
}
