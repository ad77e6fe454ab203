package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/siherrmann/loregraph/helper"
)

// Metadata is free form chunk metadata stored as JSONB
type Metadata map[string]interface{}

// Value implements the driver.Valuer interface. A nil map is stored as an empty object.
// The JSON is passed as text so the driver does not encode it as bytea.
func (m Metadata) Value() (driver.Value, error) {
	b, err := m.Marshal()
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements the sql.Scanner interface
func (m *Metadata) Scan(value interface{}) error {
	return m.Unmarshal(value)
}

// Marshal converts Metadata to JSON bytes
func (m Metadata) Marshal() ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Unmarshal reads Metadata from JSON bytes, a JSON string or another Metadata
func (m *Metadata) Unmarshal(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*m = Metadata{}
		return nil
	case Metadata:
		*m = v
		return nil
	case []byte:
		return m.unmarshalJSON(v)
	case string:
		return m.unmarshalJSON([]byte(v))
	default:
		return helper.NewError("metadata scan", fmt.Errorf("unsupported type %T", value))
	}
}

func (m *Metadata) unmarshalJSON(b []byte) error {
	parsed := Metadata{}
	if err := json.Unmarshal(b, &parsed); err != nil {
		return helper.NewError("metadata unmarshal", err)
	}
	if parsed == nil {
		parsed = Metadata{}
	}
	*m = parsed
	return nil
}
