package main

import (
	"flag"
	"log"
	"os"

	"noisemap/internal/export"
	"noisemap/internal/model"
	"noisemap/internal/osm"
	pg "noisemap/internal/postgres"

	"github.com/paulmach/orb"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Command line flags
var (
	dbURL        string
	osmFilePath  string
	outputPath   string
	materialsMap string
	heightField  string
	originLon    float64
	originLat    float64
)

func init() {
	flag.StringVar(&dbURL, "db-url", "", "Database connection URL, empty to skip the database")
	flag.StringVar(&osmFilePath, "osm-file", "", "Path to OSM PBF file")
	flag.StringVar(&outputPath, "out", "buildings.geojson", "GeoJSON output, empty to skip the file")
	flag.StringVar(&materialsMap, "materials", "", "JSON mapping of facade materials to OSM building types")
	flag.StringVar(&heightField, "height-field", "height", "Property holding the building height in the GeoJSON output")
	flag.Float64Var(&originLon, "origin-lon", 0, "Longitude of the local frame origin (default: center of the buildings)")
	flag.Float64Var(&originLat, "origin-lat", 0, "Latitude of the local frame origin (default: center of the buildings)")
}

func main() {
	flag.Parse()

	if osmFilePath == "" {
		log.Fatal("OSM file path must be specified")
	}
	if _, err := os.Stat(osmFilePath); os.IsNotExist(err) {
		log.Fatalf("OSM file not found: %s", osmFilePath)
	}

	var mapping *osm.MaterialMapping
	if materialsMap != "" {
		m, err := osm.LoadMaterialMapping(materialsMap)
		if err != nil {
			log.Fatalf("Failed to load material mapping: %v", err)
		}
		mapping = m
	}

	var origin *orb.Point
	if originLon != 0 || originLat != 0 {
		origin = &orb.Point{originLon, originLat}
	}

	importer := osm.NewImporter(mapping, origin)
	proj, err := importer.ImportFile(osmFilePath)
	if err != nil {
		log.Fatalf("Failed to process OSM file: %v", err)
	}
	log.Printf("Local frame origin: lon %.6f, lat %.6f", proj.Origin[0], proj.Origin[1])

	if outputPath != "" {
		if err := export.WriteFile(outputPath, export.Buildings(importer.Buildings, heightField)); err != nil {
			log.Fatalf("Failed to export buildings: %v", err)
		}
		log.Printf("Wrote %d buildings to %s", len(importer.Buildings), outputPath)
	}

	if dbURL != "" {
		pg.Init(dbURL)
		defer pg.Close()
		saveBuildingsToDB(pg.GetDB(), importer.Buildings)
	}
}

// saveBuildingsToDB upserts the buildings in batches
func saveBuildingsToDB(db *gorm.DB, buildings []*model.Building) {
	rows := make([]*model.BuildingPG, 0, len(buildings))
	for _, b := range buildings {
		row, err := b.ToPG()
		if err != nil {
			log.Printf("WARN: skipping building %d: %v", b.ID, err)
			continue
		}
		rows = append(rows, row)
	}

	batchSize := 500
	for i := 0; i < len(rows); i += batchSize {
		end := min(i+batchSize, len(rows))
		batch := rows[i:end]
		result := db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&batch)
		if result.Error != nil {
			log.Printf("Error saving batch %d-%d: %v", i, end, result.Error)
		} else {
			log.Printf("Saved batch %d-%d successfully", i, end)
		}
	}
}
