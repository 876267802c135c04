package repository

import (
	"encoding/json"
	"fmt"
)

// toJSONB возвращает nil для nil-значений, чтобы в колонку попал NULL.
func toJSONB[T any](v *T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func fromJSONB[T any](raw []byte) (*T, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	v := new(T)
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, fmt.Errorf("unmarshal jsonb: %w", err)
	}
	return v, nil
}
