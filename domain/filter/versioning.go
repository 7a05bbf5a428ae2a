package filter

import (
	"fmt"
	"sync"
)

// Data model version written into pipeline files. Loading bumps older
// documents through registered upgrade functions; documents from a newer
// data model are rejected.
const (
	DataModelMajor = 1
	DataModelMinor = 0
)

// UpgradeFunc rewrites a pipeline document from one data model version to
// a strictly newer one. It must bump _major/_minor itself.
type UpgradeFunc func(doc map[string]any) (map[string]any, error)

var (
	upgradeMu sync.RWMutex
	upgrades  = map[[2]int]UpgradeFunc{}
)

// RegisterUpgrade installs the upgrade function applied to documents at
// the given version. Registering a version twice panics; upgrade paths are
// wired once at package initialization.
func RegisterUpgrade(major, minor int, fn UpgradeFunc) {
	upgradeMu.Lock()
	defer upgradeMu.Unlock()
	key := [2]int{major, minor}
	if _, exists := upgrades[key]; exists {
		panic(fmt.Sprintf("filter: upgrade from %d.%d registered twice", major, minor))
	}
	upgrades[key] = fn
}

// upgradeDocument walks a decoded pipeline document to the current data
// model version.
func upgradeDocument(doc map[string]any) (map[string]any, error) {
	major, minor := documentVersion(doc)
	if major > DataModelMajor || (major == DataModelMajor && minor > DataModelMinor) {
		return nil, fmt.Errorf("pipeline document has data model %d.%d, this build understands up to %d.%d",
			major, minor, DataModelMajor, DataModelMinor)
	}

	for major != DataModelMajor || minor != DataModelMinor {
		upgradeMu.RLock()
		fn, ok := upgrades[[2]int{major, minor}]
		upgradeMu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("no upgrade path from data model %d.%d", major, minor)
		}
		next, err := fn(doc)
		if err != nil {
			return nil, fmt.Errorf("upgrading data model %d.%d: %w", major, minor, err)
		}
		nextMajor, nextMinor := documentVersion(next)
		if nextMajor < major || (nextMajor == major && nextMinor <= minor) {
			return nil, fmt.Errorf("upgrade from data model %d.%d did not advance the version", major, minor)
		}
		doc, major, minor = next, nextMajor, nextMinor
	}
	return doc, nil
}

func documentVersion(doc map[string]any) (int, int) {
	return intField(doc, "_major"), intField(doc, "_minor")
}

func intField(doc map[string]any, key string) int {
	switch v := doc[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}

func init() {
	// 0.0 is the pre-versioning format: no metadata object and the
	// parameter declarations under the unprefixed "variability" key.
	RegisterUpgrade(0, 0, func(doc map[string]any) (map[string]any, error) {
		if _, ok := doc["metadata"]; !ok {
			doc["metadata"] = map[string]any{}
		}
		if steps, ok := doc["filters"].([]any); ok {
			for _, s := range steps {
				step, ok := s.(map[string]any)
				if !ok {
					continue
				}
				if v, ok := step["variability"]; ok {
					step["_variability"] = v
					delete(step, "variability")
				}
			}
		}
		doc["_major"] = DataModelMajor
		doc["_minor"] = DataModelMinor
		return doc, nil
	})
}
