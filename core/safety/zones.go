package safety

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/bloodlift/core/logger"
	"github.com/kilianp07/bloodlift/core/model"
)

// LoadNoFlyZones reads the zone list from a JSON or YAML file. A missing file
// yields an empty list and a warning; a malformed file is an error.
func LoadNoFlyZones(path string, log logger.Logger) ([]model.NoFlyZone, error) {
	if log == nil {
		log = logger.Nop{}
	}
	if path == "" {
		log.Warnf("no-fly zone file not configured, using empty zone list")
		return nil, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Warnf("no-fly zone file %s not found, using empty zone list", path)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	zones, err := DecodeNoFlyZones(f, format)
	if err != nil {
		return nil, fmt.Errorf("no-fly zones %s: %w", path, err)
	}
	log.Infof("loaded %d no-fly zones from %s", len(zones), path)
	return zones, nil
}

// DecodeNoFlyZones decodes a zone list in the given format ("json", "yaml").
func DecodeNoFlyZones(r io.Reader, format string) ([]model.NoFlyZone, error) {
	var zones []model.NoFlyZone
	switch format {
	case "yaml", "yml":
		if err := yaml.NewDecoder(r).Decode(&zones); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
	case "json":
		if err := json.NewDecoder(r).Decode(&zones); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
	for i, z := range zones {
		if z.RadiusKm <= 0 {
			return nil, fmt.Errorf("zone %d (%s): radius must be positive", i, z.Name)
		}
		if z.Lat < -90 || z.Lat > 90 || z.Lon < -180 || z.Lon > 180 {
			return nil, fmt.Errorf("zone %d (%s): center out of range", i, z.Name)
		}
	}
	return zones, nil
}
