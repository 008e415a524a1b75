package models

import (
	"encoding/json"
	"strings"
)

// ItemCreateRequest represents the JSON body for item creation
// swagger:model ItemCreateRequest
type ItemCreateRequest struct {
	// required: true
	// example: Groceries
	Title string `json:"title" validate:"required,max=255"`

	// example: Milk, eggs, bread
	Description *string `json:"description"`
}

// ItemUpdateRequest represents the JSON body for a partial item update
// swagger:model ItemUpdateRequest
type ItemUpdateRequest struct {
	// example: Groceries for Sunday
	Title *string `json:"title" validate:"omitempty,max=255"`

	// Explicit null clears the description.
	// example: Milk, eggs
	Description *string `json:"description"`

	// DescriptionSet is true when the body contained a description key.
	DescriptionSet bool `json:"-" swaggerignore:"true"`
}

// UnmarshalJSON decodes the body and records whether description was present.
func (r *ItemUpdateRequest) UnmarshalJSON(data []byte) error {
	type plain ItemUpdateRequest
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	for key := range fields {
		if strings.EqualFold(key, "description") {
			p.DescriptionSet = true
			break
		}
	}

	*r = ItemUpdateRequest(p)
	return nil
}

// Patch converts the request to an ItemPatch.
func (r ItemUpdateRequest) Patch() ItemPatch {
	return ItemPatch{
		Title:          r.Title,
		Description:    r.Description,
		DescriptionSet: r.DescriptionSet,
	}
}
