// Package archive stores versions removed by retention trimming.
package archive

import (
	"encoding/base64"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jerome/simply-versioned/internal/versioning"
)

// record is the on-disk and in-bucket form of an archived version.
type record struct {
	ID        string    `yaml:"id"`
	OwnerType string    `yaml:"owner_type"`
	OwnerID   int64     `yaml:"owner_id"`
	Number    int64     `yaml:"number"`
	CreatedAt time.Time `yaml:"created_at"`
	Snapshot  string    `yaml:"snapshot"` // base64, snapshots may be sealed binary
}

func encodeRecord(v *versioning.Version) ([]byte, error) {
	data, err := yaml.Marshal(&record{
		ID:        v.ID,
		OwnerType: v.Owner.Type,
		OwnerID:   v.Owner.ID,
		Number:    v.Number,
		CreatedAt: v.CreatedAt.UTC(),
		Snapshot:  base64.StdEncoding.EncodeToString(v.Snapshot),
	})
	if err != nil {
		return nil, fmt.Errorf("encoding archived version: %w", err)
	}
	return data, nil
}

func decodeRecord(data []byte) (*versioning.Version, error) {
	var rec record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decoding archived version: %w", err)
	}
	snapshot, err := base64.StdEncoding.DecodeString(rec.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("decoding archived snapshot: %w", err)
	}
	return &versioning.Version{
		ID:        rec.ID,
		Owner:     versioning.Owner{ID: rec.OwnerID, Type: rec.OwnerType},
		Number:    rec.Number,
		Snapshot:  snapshot,
		CreatedAt: rec.CreatedAt.UTC(),
	}, nil
}

// objectName is the path of v below an archive root, for example
// "aardvark/00000000000000000001/00000000000000000003.yaml".
func objectName(owner versioning.Owner, number int64) string {
	return fmt.Sprintf("%s/%020d/%020d.yaml", owner.Type, owner.ID, number)
}
