package pipe

import (
	"fmt"

	"github.com/brickflow/brickflow/brick"
	"github.com/brickflow/brickflow/errors"
)

// Record is the persisted form of a pipe
type Record struct {
	Title       *string        `json:"title"`
	Description *string        `json:"description"`
	Bricks      []brick.Record `json:"bricks"`
}

// Serialize produces the pipe's persisted form. It is a pure function of
// current state; a brick whose settings cannot be serialized surfaces an
// unsafe-value-type error.
func (p *Pipe) Serialize() (Record, error) {
	rec := Record{
		Title:       copyString(p.title),
		Description: copyString(p.description),
		Bricks:      make([]brick.Record, 0, len(p.bricks)),
	}

	for _, b := range p.bricks {
		brickRec, err := b.Serialize()
		if err != nil {
			return Record{}, errors.Wrap(err, "Pipe", "Serialize", "brick "+b.Name())
		}
		rec.Bricks = append(rec.Bricks, brickRec)
	}

	return rec, nil
}

// FromRecord reconstructs a pipe from its typed persisted form. Bricks are
// rebuilt in order through the registry's extraction contract; title and
// description are taken over verbatim, including absence.
func FromRecord(rec Record, registry *brick.Registry, opts ...Option) (*Pipe, error) {
	p := New(opts...)

	for i, brickRec := range rec.Bricks {
		b, err := registry.Extract(brickRec)
		if err != nil {
			p.countExtraction("error")
			return nil, errors.Wrap(err, "Pipe", "Extract", fmt.Sprintf("brick at index %d", i))
		}
		p.AddBricks(b)
	}

	p.title = copyString(rec.Title)
	p.description = copyString(rec.Description)

	p.countExtraction("ok")
	return p, nil
}

// Extract reconstructs a pipe from decoded JSON data. It fails with a
// malformed-data error when the bricks field is not a sequence of brick
// records; deserialization of corrupt data fails loudly instead of
// substituting defaults.
func Extract(data map[string]any, registry *brick.Registry, opts ...Option) (*Pipe, error) {
	rawBricks, ok := data["bricks"].([]any)
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrMalformedData,
			"Pipe", "Extract", "bricks sequence validation")
	}

	rec := Record{Bricks: make([]brick.Record, 0, len(rawBricks))}

	for i, raw := range rawBricks {
		brickRec, err := brickRecordFromMap(raw)
		if err != nil {
			return nil, errors.Wrap(err, "Pipe", "Extract", fmt.Sprintf("brick record at index %d", i))
		}
		rec.Bricks = append(rec.Bricks, brickRec)
	}

	title, err := optionalString(data, "title")
	if err != nil {
		return nil, err
	}
	description, err := optionalString(data, "description")
	if err != nil {
		return nil, err
	}
	rec.Title = title
	rec.Description = description

	return FromRecord(rec, registry, opts...)
}

// brickRecordFromMap decodes one element of the bricks sequence
func brickRecordFromMap(raw any) (brick.Record, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return brick.Record{}, errors.WrapInvalid(errors.ErrMalformedData,
			"Pipe", "Extract", "brick record shape validation")
	}

	name, ok := m["name"].(string)
	if !ok || name == "" {
		return brick.Record{}, errors.WrapInvalid(errors.ErrMalformedData,
			"Pipe", "Extract", "brick name validation")
	}

	rec := brick.Record{Name: name}
	if rawSettings, exists := m["settings"]; exists {
		settings, ok := rawSettings.(map[string]any)
		if !ok {
			return brick.Record{}, errors.WrapInvalid(errors.ErrMalformedData,
				"Pipe", "Extract", "brick settings shape validation")
		}
		rec.Settings = settings
	}

	return rec, nil
}

// optionalString reads a nullable string field; absent and null both map to
// nil, any other non-string value is malformed.
func optionalString(data map[string]any, key string) (*string, error) {
	raw, exists := data[key]
	if !exists || raw == nil {
		return nil, nil
	}
	s, ok := raw.(string)
	if !ok {
		return nil, errors.WrapInvalid(errors.ErrMalformedData,
			"Pipe", "Extract", key+" field validation")
	}
	return &s, nil
}

func (p *Pipe) countExtraction(status string) {
	if p.metrics != nil {
		p.metrics.Serializations.WithLabelValues("extract", status).Inc()
	}
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
