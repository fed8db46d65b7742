package store

import (
	"encoding/json"
	"fmt"
	"log/slog"
)

// Record payloads are versioned. Decoding walks the migration chain from
// the payload's version up to SchemaVersion.
//
// Version history:
//
//	1 - week-named fields (weekStartDate, weekEndDate, counts), flat
//	    createdAt/updatedAt/deviceId, no provenance
//	2 - period-named fields, nested metadata, provenance, dailyBreakdown
type migration func(map[string]any) map[string]any

var archiveMigrations = map[int]migration{
	1: archiveV1ToV2,
}

var stateMigrations = map[int]migration{
	1: stateV1ToV2,
}

// DecodeArchive parses an archive payload of any known schema version.
func DecodeArchive(raw []byte) (ArchiveRecord, error) {
	var rec ArchiveRecord
	doc, err := upgrade(raw, archiveMigrations, "archive")
	if err != nil {
		return rec, err
	}
	if err := remarshal(doc, &rec); err != nil {
		return rec, fmt.Errorf("decode archive record: %w", err)
	}
	return rec, nil
}

// DecodeCurrentState parses a current-state payload of any known version.
func DecodeCurrentState(raw []byte) (CurrentState, error) {
	var st CurrentState
	doc, err := upgrade(raw, stateMigrations, "current_state")
	if err != nil {
		return st, err
	}
	if err := remarshal(doc, &st); err != nil {
		return st, fmt.Errorf("decode current state: %w", err)
	}
	return st, nil
}

func upgrade(raw []byte, chain map[int]migration, kind string) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode %s record: %w", kind, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("decode %s record: not an object", kind)
	}

	version := versionOf(doc)
	if version > SchemaVersion {
		slog.Warn("record schema is newer than supported, reading best-effort",
			"kind", kind, "version", version, "supported", SchemaVersion)
		return doc, nil
	}
	for v := version; v < SchemaVersion; v++ {
		m, ok := chain[v]
		if !ok {
			return nil, fmt.Errorf("decode %s record: no migration from schema version %d", kind, v)
		}
		doc = m(doc)
	}
	return doc, nil
}

// versionOf reads metadata.schemaVersion, then a top-level schemaVersion.
// Unversioned payloads predate versioning and are treated as version 1.
func versionOf(doc map[string]any) int {
	if md, ok := doc["metadata"].(map[string]any); ok {
		if v, ok := md["schemaVersion"].(float64); ok && v > 0 {
			return int(v)
		}
	}
	if v, ok := doc["schemaVersion"].(float64); ok && v > 0 {
		return int(v)
	}
	return 1
}

func archiveV1ToV2(doc map[string]any) map[string]any {
	rename(doc, "weekStartDate", "periodStartDate")
	rename(doc, "weekEndDate", "periodEndDate")
	rename(doc, "counts", "totals")

	md, _ := doc["metadata"].(map[string]any)
	if md == nil {
		md = map[string]any{}
	}
	for _, k := range []string{"createdAt", "updatedAt", "deviceId", "weekStartDay"} {
		if v, ok := doc[k]; ok {
			if _, exists := md[k]; !exists {
				md[k] = v
			}
			delete(doc, k)
		}
	}
	if _, ok := md["provenance"]; !ok {
		md["provenance"] = string(ProvenanceLocal)
	}
	md["schemaVersion"] = 2
	delete(doc, "schemaVersion")
	doc["metadata"] = md
	return doc
}

func stateV1ToV2(doc map[string]any) map[string]any {
	rename(doc, "currentWeekStartDate", "currentPeriodStartDate")
	md, _ := doc["metadata"].(map[string]any)
	if md == nil {
		md = map[string]any{}
	}
	if v, ok := doc["deviceId"]; ok {
		md["deviceId"] = v
		delete(doc, "deviceId")
	}
	md["schemaVersion"] = 2
	delete(doc, "schemaVersion")
	doc["metadata"] = md
	return doc
}

func rename(doc map[string]any, from, to string) {
	v, ok := doc[from]
	if !ok {
		return
	}
	if _, exists := doc[to]; !exists {
		doc[to] = v
	}
	delete(doc, from)
}

func remarshal(doc map[string]any, out any) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
