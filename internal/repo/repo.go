package repo

import (
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"
)

// nullJSON marshals v, or returns nil for a nil pointer so the column stays NULL.
func nullJSON[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// decodeJSON unmarshals b into a new T, or returns nil when b is NULL.
func decodeJSON[T any](b []byte) (*T, error) {
	if len(b) == 0 || string(b) == "null" {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func noRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
