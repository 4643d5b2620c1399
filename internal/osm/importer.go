package osm

import (
	"fmt"
	"io"
	"log"
	"os"
	"runtime"
	"strconv"
	"strings"

	"noisemap/internal/model"
	"noisemap/internal/util"

	"github.com/paulmach/orb"
	"github.com/qedus/osmpbf"
)

// LevelHeight is the height of one storey when only building:levels is tagged
const LevelHeight = 3.0

// Importer extracts buildings from an OSM PBF file into a local metric frame
type Importer struct {
	Buildings []*model.Building

	materials *MaterialMapping
	origin    *orb.Point
	nodes     map[int64]orb.Point // lon, lat
	skipped   int
}

// NewImporter creates an importer. A nil origin centers the local frame on the imported buildings.
func NewImporter(materials *MaterialMapping, origin *orb.Point) *Importer {
	if materials == nil {
		materials = DefaultMaterialMapping()
	}
	return &Importer{
		materials: materials,
		origin:    origin,
		nodes:     make(map[int64]orb.Point),
	}
}

// ImportFile processes an OSM PBF file
func (im *Importer) ImportFile(path string) (*util.Projection, error) {
	log.Printf("Processing OSM file: %s", path)

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open OSM file: %w", err)
	}
	defer file.Close()
	return im.Import(file)
}

func newDecoder(r io.Reader) (*osmpbf.Decoder, error) {
	decoder := osmpbf.NewDecoder(r)
	decoder.SetBufferSize(osmpbf.MaxBlobSize)
	if err := decoder.Start(runtime.GOMAXPROCS(-1)); err != nil {
		return nil, fmt.Errorf("failed to start OSM decoder: %w", err)
	}
	return decoder, nil
}

// Import reads nodes in a first pass and building ways in a second one, then
// projects the footprints
func (im *Importer) Import(r io.ReadSeeker) (*util.Projection, error) {
	decoder, err := newDecoder(r)
	if err != nil {
		return nil, err
	}

	log.Println("First pass: collecting nodes...")
	if err := im.collectNodes(decoder); err != nil {
		return nil, err
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind OSM file: %w", err)
	}
	decoder, err = newDecoder(r)
	if err != nil {
		return nil, err
	}

	log.Println("Second pass: processing buildings...")
	if err := im.collectBuildings(decoder); err != nil {
		return nil, err
	}

	proj := im.project()
	log.Printf("Processing complete. Found %d buildings, skipped %d.", len(im.Buildings), im.skipped)
	return proj, nil
}

func (im *Importer) collectNodes(decoder *osmpbf.Decoder) error {
	var nodeCount int
	for {
		obj, err := decoder.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("error decoding OSM data: %w", err)
		}

		if node, ok := obj.(*osmpbf.Node); ok {
			im.nodes[node.ID] = orb.Point{node.Lon, node.Lat}
			nodeCount++
			if nodeCount%1000000 == 0 {
				log.Printf("Processed %d nodes...", nodeCount)
			}
		}
	}
	log.Printf("Collected %d nodes", nodeCount)
	return nil
}

func (im *Importer) collectBuildings(decoder *osmpbf.Decoder) error {
	for {
		obj, err := decoder.Decode()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("error decoding OSM data: %w", err)
		}

		if way, ok := obj.(*osmpbf.Way); ok {
			im.AddWay(way)
		}
	}
	return nil
}

// AddWay adds a building way whose nodes were collected, still in lon/lat
func (im *Importer) AddWay(way *osmpbf.Way) bool {
	kind, ok := way.Tags["building"]
	if !ok || kind == "no" {
		return false
	}
	b, err := im.buildingFromWay(way)
	if err != nil {
		log.Printf("WARN: skipping way %d: %v", way.ID, err)
		im.skipped++
		return false
	}
	im.Buildings = append(im.Buildings, b)
	if len(im.Buildings)%10000 == 0 {
		log.Printf("Processed %d buildings...", len(im.Buildings))
	}
	return true
}

// AddNode records the position of a node
func (im *Importer) AddNode(node *osmpbf.Node) {
	im.nodes[node.ID] = orb.Point{node.Lon, node.Lat}
}

func (im *Importer) buildingFromWay(way *osmpbf.Way) (*model.Building, error) {
	ring := make(orb.Ring, 0, len(way.NodeIDs)+1)
	for _, id := range way.NodeIDs {
		pt, ok := im.nodes[id]
		if !ok {
			return nil, fmt.Errorf("node %d not found", id)
		}
		ring = append(ring, pt)
	}
	if len(ring) < 3 {
		return nil, fmt.Errorf("%w: %d nodes", model.ErrDegenerateGeometry, len(ring))
	}

	levels := 1
	if l, err := strconv.Atoi(way.Tags["building:levels"]); err == nil && l > 0 {
		levels = l
	}
	height, ok := parseHeight(way.Tags["height"])
	if !ok {
		height = float64(levels) * LevelHeight
	}

	return &model.Building{
		ID:       way.ID,
		Name:     way.Tags["name"],
		Levels:   levels,
		Height:   height,
		Material: im.materials.Material(way.Tags["building"]),
		Outline:  orb.Polygon{ring},
		Tags:     way.Tags,
	}, nil
}

// parseHeight reads an OSM height value such as "12", "12.5 m" or "12m"
func parseHeight(tag string) (float64, bool) {
	tag = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(tag), "m"))
	h, err := strconv.ParseFloat(tag, 64)
	if err != nil || h <= 0 {
		return 0, false
	}
	return h, true
}

// project moves every collected footprint to the local frame, normalizes it
// and drops the degenerate ones
func (im *Importer) project() *util.Projection {
	origin := orb.Point{}
	if im.origin != nil {
		origin = *im.origin
	} else if len(im.Buildings) > 0 {
		bound := im.Buildings[0].Outline.Bound()
		for _, b := range im.Buildings[1:] {
			bound = bound.Union(b.Outline.Bound())
		}
		origin = bound.Center()
	}
	proj := util.NewProjection(origin)

	kept := im.Buildings[:0]
	for _, b := range im.Buildings {
		b.Outline = orb.Polygon{proj.ProjectRing(b.Ring())}
		b.Normalize()
		if err := b.Validate(); err != nil {
			log.Printf("WARN: skipping building %d: %v", b.ID, err)
			im.skipped++
			continue
		}
		kept = append(kept, b)
	}
	im.Buildings = kept
	return proj
}

// Finish projects the buildings added with AddWay
func (im *Importer) Finish() *util.Projection {
	return im.project()
}
