package registry

import (
	"encoding/json"
	"fmt"

	"github.com/MrSnakeDoc/vigil/internal/domain"
)

// Codec translates service records to and from the payload bytes stored
// under the primary key. Watch events surface the same bytes, so whatever
// encoding is chosen here is also what notification consumers decode.
type Codec interface {
	Encode(rec *domain.ServiceRecord) ([]byte, error)
	Decode(data []byte) (*domain.ServiceRecord, error)
}

// JSONCodec is the default codec. Payloads are compact JSON documents,
// which keeps stored records inspectable with plain etcdctl.
type JSONCodec struct{}

// Encode serializes the record.
func (JSONCodec) Encode(rec *domain.ServiceRecord) ([]byte, error) {
	if rec == nil {
		return nil, fmt.Errorf("encode: nil record")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record %s: %w", rec.ID, err)
	}
	return data, nil
}

// Decode parses payload bytes back into a record.
func (JSONCodec) Decode(data []byte) (*domain.ServiceRecord, error) {
	var rec domain.ServiceRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode record payload: %w", err)
	}
	return &rec, nil
}
