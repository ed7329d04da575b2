// Package models defines the wire-level types decoded from the OMERO server.
package models

import "encoding/json"

// Entity is the common shape of a project, dataset, image or tag as returned
// by the remote API. Decoding is lenient: unknown fields are ignored and
// missing optional fields stay zero.
type Entity struct {
	ID          int64  `json:"id"`
	Name        string `json:"name,omitempty"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`

	// Value carries a tag's text. Tags report "value" where containers
	// report "name".
	Value string `json:"value,omitempty"`

	// Meta is present on image detail responses only.
	Meta *ImageMeta `json:"meta,omitempty"`

	// Children references, kind-specific. Only the length and ids matter to
	// the resolver; nested payloads are re-fetched by id when needed.
	Datasets []Entity `json:"datasets,omitempty"`
	Images   []Entity `json:"images,omitempty"`
	Tags     []Entity `json:"tags,omitempty"`
}

// DisplayName returns the human-readable label: containers use Name, tags
// use Value.
func (e *Entity) DisplayName() string {
	if e.Name != "" {
		return e.Name
	}
	return e.Value
}

// ImageMeta carries the image detail metadata the listing exposes.
type ImageMeta struct {
	ImageTimestamp int64  `json:"imageTimestamp,omitempty"`
	ImageAuthor    string `json:"imageAuthor,omitempty"`
	ImageName      string `json:"imageName,omitempty"`
}

// EntityList decodes either a bare JSON array or an object wrapping one
// under a known collection field. The two server dialects disagree on which
// form they return.
type EntityList []Entity

// UnmarshalJSON accepts `[...]`, `{"tags": [...]}`, `{"datasets": [...]}`,
// `{"images": [...]}` and `{"results": [...]}`.
func (l *EntityList) UnmarshalJSON(data []byte) error {
	var plain []Entity
	if err := json.Unmarshal(data, &plain); err == nil {
		*l = plain
		return nil
	}

	var wrapped struct {
		Tags     []Entity `json:"tags"`
		Datasets []Entity `json:"datasets"`
		Images   []Entity `json:"images"`
		Results  []Entity `json:"results"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return err
	}
	switch {
	case wrapped.Tags != nil:
		*l = wrapped.Tags
	case wrapped.Datasets != nil:
		*l = wrapped.Datasets
	case wrapped.Images != nil:
		*l = wrapped.Images
	default:
		*l = wrapped.Results
	}
	return nil
}

// Credentials is the opaque access pair passed to every remote call. The
// client never stores it across calls.
type Credentials struct {
	AccessKey    string
	AccessSecret string
}

// IsZero reports whether no credential material is present.
func (c Credentials) IsZero() bool {
	return c.AccessKey == "" && c.AccessSecret == ""
}
