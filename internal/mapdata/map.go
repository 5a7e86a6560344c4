package mapdata

import (
	"encoding/json"
	"fmt"
	"os"
)

// Grid is a square tile grid loaded from a map file. TileSize is in pixels;
// MapSize (also pixels) must be evenly divisible by TileSize per the map
// file format.
type Grid struct {
	Version  int        `json:"version"`
	MapSize  int        `json:"mapSize"`
	TileSize int        `json:"tileSize"`
	Tiles    [][]TileID `json:"tiles"` // [row][col], row-major, tileCount x tileCount
}

// tileCount returns the number of tiles along one edge of the grid.
func (g *Grid) tileCount() int {
	return g.MapSize / g.TileSize
}

// mapFileJSON mirrors the external map file wire format.
type mapFileJSON struct {
	Version  int     `json:"version"`
	MapSize  int     `json:"mapSize"`
	TileSize int     `json:"tileSize"`
	Tiles    [][]int `json:"tiles"`
}

// LoadGrid reads and validates a map file from disk.
func LoadGrid(path string) (*Grid, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("mapdata: read map file: %w", err)
	}
	return ParseGrid(data)
}

// ParseGrid validates and decodes a map file's JSON bytes.
func ParseGrid(data []byte) (*Grid, error) {
	var raw mapFileJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("mapdata: decode map file: %w", err)
	}
	if raw.TileSize <= 0 {
		return nil, fmt.Errorf("mapdata: tileSize must be positive, got %d", raw.TileSize)
	}
	if raw.MapSize%raw.TileSize != 0 {
		return nil, fmt.Errorf("mapdata: mapSize %d not divisible by tileSize %d", raw.MapSize, raw.TileSize)
	}
	tileCount := raw.MapSize / raw.TileSize
	if len(raw.Tiles) != tileCount {
		return nil, fmt.Errorf("mapdata: expected %d tile rows, got %d", tileCount, len(raw.Tiles))
	}
	tiles := make([][]TileID, tileCount)
	for r, row := range raw.Tiles {
		if len(row) != tileCount {
			return nil, fmt.Errorf("mapdata: row %d has %d cols, expected %d", r, len(row), tileCount)
		}
		tiles[r] = make([]TileID, tileCount)
		for c, v := range row {
			id := TileID(v)
			if _, err := PropsOf(id); err != nil {
				return nil, fmt.Errorf("mapdata: row %d col %d: %w", r, c, err)
			}
			tiles[r][c] = id
		}
	}
	return &Grid{Version: raw.Version, MapSize: raw.MapSize, TileSize: raw.TileSize, Tiles: tiles}, nil
}

// TileAt returns the tile id at pixel coordinates, and whether they fall
// inside the grid.
func (g *Grid) TileAt(px, py int) (TileID, bool) {
	if px < 0 || py < 0 {
		return 0, false
	}
	col := px / g.TileSize
	row := py / g.TileSize
	if row < 0 || col < 0 || row >= len(g.Tiles) || col >= len(g.Tiles[0]) {
		return 0, false
	}
	return g.Tiles[row][col], true
}

// SetTileAt mutates the tile at pixel coordinates; used when a destructible
// tile is destroyed.
func (g *Grid) SetTileAt(px, py int, id TileID) {
	col := px / g.TileSize
	row := py / g.TileSize
	if row < 0 || col < 0 || row >= len(g.Tiles) || col >= len(g.Tiles[0]) {
		return
	}
	g.Tiles[row][col] = id
}

// InBounds reports whether a pixel coordinate lies inside the grid.
func (g *Grid) InBounds(px, py int) bool {
	_, ok := g.TileAt(px, py)
	return ok
}

// RectBlocked reports whether any tile underneath the axis-aligned rect
// [x0,y0]-[x1,y1] is inaccessible (used for tank movement/spawn occupancy).
func (g *Grid) RectBlocked(x0, y0, x1, y1 int) bool {
	step := g.TileSize
	if step <= 0 {
		step = 1
	}
	for py := y0; py <= y1; py += step {
		for px := x0; px <= x1; px += step {
			id, ok := g.TileAt(px, py)
			if !ok {
				return true
			}
			props, err := PropsOf(id)
			if err != nil || !props.Accessible {
				return true
			}
		}
	}
	// also test the far corner explicitly, in case step overshoots it
	id, ok := g.TileAt(x1, y1)
	if !ok {
		return true
	}
	props, err := PropsOf(id)
	return err != nil || !props.Accessible
}

// FindSpawnPoints scans the grid for tiles of the given id.
func (g *Grid) FindSpawnPoints(id TileID) []Point {
	var pts []Point
	for r, row := range g.Tiles {
		for c, t := range row {
			if t == id {
				pts = append(pts, Point{X: c * g.TileSize, Y: r * g.TileSize})
			}
		}
	}
	return pts
}

// Point is a pixel coordinate pair.
type Point struct{ X, Y int }

// RayBlocked walks the grid one tile at a time from (x0,y0) along an
// axis-aligned direction (dx,dy each one of -1,0,1) for up to maxSteps
// tiles and reports whether a blocks-bullet tile, or the grid edge, is met
// on the way — i.e. line-of-sight is broken.
func (g *Grid) RayBlocked(x0, y0, dx, dy int, maxSteps int) bool {
	step := g.TileSize
	x, y := x0, y0
	for i := 0; i < maxSteps; i++ {
		x += dx * step
		y += dy * step
		id, ok := g.TileAt(x, y)
		if !ok {
			return true
		}
		props, err := PropsOf(id)
		if err != nil {
			return true
		}
		if props.BlocksBullet {
			return true
		}
	}
	return false
}
