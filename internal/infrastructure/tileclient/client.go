package tileclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/maptile"
)

var gzipMagic = []byte{0x1f, 0x8b}

// HTTPTileClient downloads Mapbox vector tiles from a {z}/{x}/{y} URL template.
type HTTPTileClient struct {
	urlTemplate string
	client      *http.Client
}

func NewHTTPTileClient(urlTemplate string, timeout time.Duration) *HTTPTileClient {
	return &HTTPTileClient{
		urlTemplate: urlTemplate,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// TileURL fills the template for one tile.
func (c *HTTPTileClient) TileURL(tile maptile.Tile) string {
	return strings.NewReplacer(
		"{z}", strconv.Itoa(int(tile.Z)),
		"{x}", strconv.FormatUint(uint64(tile.X), 10),
		"{y}", strconv.FormatUint(uint64(tile.Y), 10),
	).Replace(c.urlTemplate)
}

// FetchTile returns the tile's layers projected to WGS84. A tile the server
// does not have (404 or 204) is empty, not an error.
func (c *HTTPTileClient) FetchTile(ctx context.Context, tile maptile.Tile) (mvt.Layers, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.TileURL(tile), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create tile request: %w", err)
	}
	req.Header.Set("Accept", "application/x-protobuf")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tile request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusNoContent:
		return mvt.Layers{}, nil
	default:
		return nil, fmt.Errorf("tile server returned status: %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read tile: %w", err)
	}
	if len(data) == 0 {
		return mvt.Layers{}, nil
	}

	// Сервер может отдать gzip без Content-Encoding
	var layers mvt.Layers
	if bytes.HasPrefix(data, gzipMagic) {
		layers, err = mvt.UnmarshalGzipped(data)
	} else {
		layers, err = mvt.Unmarshal(data)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode tile %d/%d/%d: %w", tile.Z, tile.X, tile.Y, err)
	}

	layers.ProjectToWGS84(tile)
	return layers, nil
}
