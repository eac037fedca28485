package featurestore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/voiceprintlabs/voiced/internal/vectorindex"
)

func TestIsSelfRelationship(t *testing.T) {
	tests := []struct {
		relationship string
		want         bool
	}{
		{"self", true},
		{"SELF", true},
		{"Self", true},
		{"me", true},
		{"ME", true},
		{"本人", true},
		{" self ", true},
		{"friend", false},
		{"father", false},
		{"myself", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.relationship, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSelfRelationship(tt.relationship))
		})
	}
}

func TestFeatureRecord_GroupKey(t *testing.T) {
	self := FeatureRecord{PersonName: "Alice", IsSelf: true}
	assert.Equal(t, SelfGroupKey, self.GroupKey())

	other := FeatureRecord{PersonName: "Bob", IsSelf: false}
	assert.Equal(t, "Bob", other.GroupKey())
}

func TestMetadataRoundTrip(t *testing.T) {
	createdAt := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	rec := FeatureRecord{
		ID:           "rec-1",
		UserID:       "alice",
		PersonName:   "Bob",
		Relationship: "friend",
		IsSelf:       false,
		Embedding:    []float32{1, 0, 0},
		CreatedAt:    createdAt,
	}

	meta := encodeMetadata(rec)
	assert.Equal(t, "alice", meta["user_id"])
	assert.Equal(t, "Bob", meta["person_name"])
	assert.Equal(t, "friend", meta["relationship"])
	assert.Equal(t, "false", meta["is_self"])
	assert.Equal(t, "2026-03-14T09:26:53Z", meta["created_at"])
	assert.Equal(t, "1773480413000", meta["created_at_epoch_ms"])

	decoded := decodeRecord(vectorindex.Record{
		ID:       rec.ID,
		Vector:   rec.Embedding,
		Metadata: meta,
	})
	assert.Equal(t, rec.ID, decoded.ID)
	assert.Equal(t, rec.UserID, decoded.UserID)
	assert.Equal(t, rec.PersonName, decoded.PersonName)
	assert.Equal(t, rec.Relationship, decoded.Relationship)
	assert.False(t, decoded.IsSelf)
	assert.True(t, createdAt.Equal(decoded.CreatedAt))
}

func TestDecodeRecord_EpochFallback(t *testing.T) {
	decoded := decodeRecord(vectorindex.Record{
		ID: "rec-1",
		Metadata: map[string]string{
			"user_id":             "alice",
			"created_at":          "not-a-timestamp",
			"created_at_epoch_ms": "1700000000000",
		},
	})
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), decoded.CreatedAt)
}
