package model

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/rotisserie/eris"
)

// Value is a scalar field value in its wire (string) form. The backend
// is inconsistent about quoting: amounts may arrive as 1234 or "1234",
// flags as true or "true". Value accepts any JSON scalar and always
// encodes back as a string.
type Value string

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = ""
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return eris.Wrap(err, "model: decode string value")
		}
		*v = Value(s)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return eris.Wrap(err, "model: decode bool value")
		}
		*v = Value(strconv.FormatBool(b))
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return eris.Wrapf(err, "model: unsupported value %s", string(data))
		}
		*v = Value(n.String())
	}
	return nil
}

// String returns the raw wire value.
func (v Value) String() string {
	return string(v)
}
