package postgres

import (
	"encoding/json"

	"gorm.io/datatypes"

	"github.com/flowforge/mediaflow/internal/domain"
)

func marshalJSON(v map[string]any) (datatypes.JSON, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}

func unmarshalJSON(b datatypes.JSON) (map[string]any, error) {
	if len(b) == 0 {
		return map[string]any{}, nil
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func (r taskRow) toDomain() (domain.Task, error) {
	payload, err := unmarshalJSON(r.PayloadJSON)
	if err != nil {
		return domain.Task{}, err
	}
	result, err := unmarshalJSON(r.ResultJSON)
	if err != nil {
		return domain.Task{}, err
	}
	return domain.Task{
		ID:          r.ID,
		WorkspaceID: r.WorkspaceRef,
		CreatedBy:   r.CreatedBy,
		Kind:        r.Kind,
		Status:      r.Status,
		Payload:     payload,
		Result:      result,
		Progress:    r.Progress,
		ErrorLog:    r.ErrorLog,
		CreatedAt:   r.CreatedAt,
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
		ParentJobID: r.ParentJobID,
	}, nil
}
