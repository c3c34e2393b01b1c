package loader

import (
	"context"
	"fmt"
	"strings"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/encoding/shp"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/sirupsen/logrus"
)

// Administrative levels in the VG250 dataset.
var vg250Levels = map[string]string{
	"LAN": "federal_state",
	"KRS": "county",
	"GEM": "municipality",
}

// Boundary is one administrative unit from a VG250 shapefile.
type Boundary struct {
	AGS   string
	Name  string
	Bez   string
	Level string
	WKT   string
}

// ParseVG250Shapefile decodes one VG250 layer. The level is the shapefile
// suffix: LAN, KRS or GEM.
func ParseVG250Shapefile(path, level string) ([]Boundary, error) {
	levelName, ok := vg250Levels[level]
	if !ok {
		return nil, fmt.Errorf("unknown VG250 level %q (want LAN, KRS or GEM)", level)
	}

	d, err := shp.NewDecoder(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open shapefile %s: %w", path, err)
	}
	defer d.Close()

	var boundaries []Boundary
	for {
		g, fields, more := d.DecodeRowFields("AGS", "GEN", "BEZ")
		if !more {
			break
		}

		geomWKT, convErr := geomToWKT(g)
		if convErr != nil {
			return nil, fmt.Errorf("record %s: %w", fields["AGS"], convErr)
		}

		boundaries = append(boundaries, Boundary{
			AGS:   strings.TrimSpace(fields["AGS"]),
			Name:  strings.TrimSpace(fields["GEN"]),
			Bez:   strings.TrimSpace(fields["BEZ"]),
			Level: levelName,
			WKT:   geomWKT,
		})
	}
	if err := d.Error(); err != nil {
		return nil, fmt.Errorf("failed to decode shapefile %s: %w", path, err)
	}

	return boundaries, nil
}

// geomToWKT converts a decoded shapefile geometry to WKT via orb.
func geomToWKT(g geom.Geom) (string, error) {
	switch v := g.(type) {
	case geom.Polygon:
		return wkt.MarshalString(toOrbPolygon(v)), nil
	case geom.MultiPolygon:
		mp := make(orb.MultiPolygon, 0, len(v))
		for _, p := range v {
			mp = append(mp, toOrbPolygon(p))
		}
		return wkt.MarshalString(mp), nil
	default:
		return "", fmt.Errorf("unsupported geometry type %T", g)
	}
}

func toOrbPolygon(p geom.Polygon) orb.Polygon {
	poly := make(orb.Polygon, 0, len(p))
	for _, ring := range p {
		r := make(orb.Ring, 0, len(ring)+1)
		for _, pt := range ring {
			r = append(r, orb.Point{pt.X, pt.Y})
		}
		// shapefile rings are not always explicitly closed
		if len(r) > 0 && r[0] != r[len(r)-1] {
			r = append(r, r[0])
		}
		poly = append(poly, r)
	}
	return poly
}

// VG250Loader loads administrative boundaries into zensus.ref_vg250.
type VG250Loader struct {
	pool   *pgxpool.Pool
	logger *logrus.Logger
}

func NewVG250Loader(pool *pgxpool.Pool, logger *logrus.Logger) *VG250Loader {
	return &VG250Loader{pool: pool, logger: logger}
}

func (l *VG250Loader) Load(ctx context.Context, path, level string) error {
	boundaries, err := ParseVG250Shapefile(path, level)
	if err != nil {
		return err
	}

	l.logger.WithFields(logrus.Fields{
		"level":      level,
		"boundaries": len(boundaries),
		"crs":        "EPSG:3035",
	}).Info("Loading VG250 boundaries")

	query := `
		INSERT INTO zensus.ref_vg250 (ags, gen, bez, level, geom)
		VALUES ($1, $2, $3, $4, ST_GeomFromText($5, 3035))
		ON CONFLICT (ags, level) DO UPDATE SET
			gen = EXCLUDED.gen,
			bez = EXCLUDED.bez,
			geom = EXCLUDED.geom`

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, b := range boundaries {
		if _, err := tx.Exec(ctx, query, b.AGS, b.Name, b.Bez, b.Level, b.WKT); err != nil {
			return fmt.Errorf("failed to insert boundary %s: %w", b.AGS, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit boundaries: %w", err)
	}

	l.logger.WithField("rows", len(boundaries)).Info("VG250 boundaries loaded")
	return nil
}
