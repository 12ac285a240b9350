package manifest

import (
	"fmt"
	"sort"
)

// CurrentSchemaVersion is the layout written by this build.
const CurrentSchemaVersion = 2

// migrations upgrade a decoded manifest from version N to N+1, in place.
var migrations = map[int]func(raw map[string]any) error{
	1: migrateV1ToV2,
}

// migrate runs every step between the stored schema version and the current one.
func migrate(raw map[string]any) (int, error) {
	version, err := schemaVersionOf(raw)
	if err != nil {
		return 0, err
	}
	if version > CurrentSchemaVersion {
		return version, fmt.Errorf("schema version %d is newer than supported version %d", version, CurrentSchemaVersion)
	}

	from := version
	for version < CurrentSchemaVersion {
		step, ok := migrations[version]
		if !ok {
			return from, fmt.Errorf("no migration from schema version %d", version)
		}
		if err := step(raw); err != nil {
			return from, fmt.Errorf("migrate schema %d->%d: %w", version, version+1, err)
		}
		version++
		raw["schema_version"] = float64(version)
	}
	return from, nil
}

func schemaVersionOf(raw map[string]any) (int, error) {
	v, ok := raw["schema_version"]
	if !ok {
		// manifests written before versioning carry no field
		return 1, nil
	}
	f, ok := v.(float64)
	if !ok || f < 1 || f != float64(int(f)) {
		return 0, fmt.Errorf("invalid schema_version %v", v)
	}
	return int(f), nil
}

// v1 stored documents as an object keyed by id and named the history "resolutions".
func migrateV1ToV2(raw map[string]any) error {
	docs, ok := raw["documents"]
	if !ok || docs == nil {
		raw["documents"] = []any{}
		return nil
	}

	byID, ok := docs.(map[string]any)
	if !ok {
		if _, isList := docs.([]any); isList {
			return nil
		}
		return fmt.Errorf("documents has unexpected type %T", docs)
	}

	ids := make([]string, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	list := make([]any, 0, len(byID))
	for _, id := range ids {
		doc, ok := byID[id].(map[string]any)
		if !ok {
			return fmt.Errorf("document %q has unexpected type %T", id, byID[id])
		}
		if _, has := doc["id"]; !has {
			doc["id"] = id
		}
		if history, has := doc["resolutions"]; has {
			doc["resolution_history"] = history
			delete(doc, "resolutions")
		}
		list = append(list, doc)
	}
	raw["documents"] = list
	return nil
}
