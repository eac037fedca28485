package featurestore

import (
	"strconv"
	"strings"
	"time"

	"github.com/voiceprintlabs/voiced/internal/vectorindex"
)

// SelfGroupKey is the fixed group key for a tenant's own voice in grouped
// results, distinct from any person name used as a contact label.
const SelfGroupKey = "user"

// Persisted metadata field names. These are the bit-exact storage contract
// and must not change without migrating existing collections.
const (
	metaUserID           = "user_id"
	metaPersonName       = "person_name"
	metaRelationship     = "relationship"
	metaIsSelf           = "is_self"
	metaCreatedAt        = "created_at"
	metaCreatedAtEpochMS = "created_at_epoch_ms"
)

// selfRelationships is the reserved self-referential relationship set.
// Matching is case-insensitive.
var selfRelationships = map[string]struct{}{
	"self": {},
	"me":   {},
	"本人":   {},
}

// IsSelfRelationship reports whether a relationship label marks a record as
// the tenant's own voice.
func IsSelfRelationship(relationship string) bool {
	_, ok := selfRelationships[strings.ToLower(strings.TrimSpace(relationship))]
	return ok
}

// FeatureRecord is one stored voice embedding plus the metadata identifying
// the speaker. Records are immutable once written.
type FeatureRecord struct {
	// ID is generated at insertion time and is the sole handle for deletion.
	ID string

	// UserID is the owning tenant.
	UserID string

	// PersonName labels the speaker within the tenant's namespace. Not
	// unique; a tenant may register multiple samples of the same person.
	PersonName string

	// Relationship is the free-text relation of the person to the tenant.
	Relationship string

	// IsSelf is derived from Relationship, never set independently.
	IsSelf bool

	// Embedding is the voice feature vector. Opaque payload, compared only
	// by cosine distance.
	Embedding []float32

	// CreatedAt is the wall-clock insertion time.
	CreatedAt time.Time
}

// GroupKey returns the key this record contributes to in grouped results:
// the self group key for self records, the person name otherwise.
func (r FeatureRecord) GroupKey() string {
	if r.IsSelf {
		return SelfGroupKey
	}
	return r.PersonName
}

// encodeMetadata serializes a record's fields into the index's string-typed
// metadata.
func encodeMetadata(r FeatureRecord) map[string]string {
	return map[string]string{
		metaUserID:           r.UserID,
		metaPersonName:       r.PersonName,
		metaRelationship:     r.Relationship,
		metaIsSelf:           strconv.FormatBool(r.IsSelf),
		metaCreatedAt:        r.CreatedAt.UTC().Format(time.RFC3339Nano),
		metaCreatedAtEpochMS: strconv.FormatInt(r.CreatedAt.UnixMilli(), 10),
	}
}

// decodeRecord rebuilds a FeatureRecord from an index record. Unparseable
// timestamps fall back to the epoch-milliseconds field, then to zero.
func decodeRecord(rec vectorindex.Record) FeatureRecord {
	meta := rec.Metadata
	r := FeatureRecord{
		ID:           rec.ID,
		UserID:       meta[metaUserID],
		PersonName:   meta[metaPersonName],
		Relationship: meta[metaRelationship],
		Embedding:    rec.Vector,
	}
	r.IsSelf, _ = strconv.ParseBool(meta[metaIsSelf])

	if ts, err := time.Parse(time.RFC3339Nano, meta[metaCreatedAt]); err == nil {
		r.CreatedAt = ts
	} else if ms, err := strconv.ParseInt(meta[metaCreatedAtEpochMS], 10, 64); err == nil {
		r.CreatedAt = time.UnixMilli(ms).UTC()
	}
	return r
}

// decodeMatchMetadata rebuilds the identifying fields from a query match,
// which carries metadata but no vector.
func decodeMatchMetadata(meta map[string]string) (personName, relationship string, isSelf bool, createdAt time.Time) {
	personName = meta[metaPersonName]
	relationship = meta[metaRelationship]
	isSelf, _ = strconv.ParseBool(meta[metaIsSelf])
	if ts, err := time.Parse(time.RFC3339Nano, meta[metaCreatedAt]); err == nil {
		createdAt = ts
	} else if ms, err := strconv.ParseInt(meta[metaCreatedAtEpochMS], 10, 64); err == nil {
		createdAt = time.UnixMilli(ms).UTC()
	}
	return personName, relationship, isSelf, createdAt
}

// PersonSummary describes one non-self person aggregated from a tenant's
// records.
type PersonSummary struct {
	PersonName     string    `json:"person_name"`
	Relationship   string    `json:"relationship"`
	AudioCount     int       `json:"audio_count"`
	FirstCreatedAt time.Time `json:"first_created_at"`
}

// Match is one similarity search result.
type Match struct {
	TenantID     string    `json:"user_id"`
	RecordID     string    `json:"record_id"`
	PersonName   string    `json:"person_name"`
	Relationship string    `json:"relationship"`
	IsSelf       bool      `json:"is_self"`
	Similarity   float32   `json:"similarity"`
	Distance     float32   `json:"distance"`
	CreatedAt    time.Time `json:"created_at"`
}
