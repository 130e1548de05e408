package model

import (
	"fmt"

	"github.com/goccy/go-json"
)

// MaterialType selects the shape of a material's content.
type MaterialType string

const (
	MaterialText     MaterialType = "Text"
	MaterialObject   MaterialType = "Object"
	MaterialTemplate MaterialType = "Template"
	MaterialList     MaterialType = "List"
)

// ParseMaterialType validates a stored or user-supplied material type.
func ParseMaterialType(s string) (MaterialType, error) {
	switch t := MaterialType(s); t {
	case MaterialText, MaterialObject, MaterialTemplate, MaterialList:
		return t, nil
	default:
		return "", fmt.Errorf("unknown material type: %q", s)
	}
}

// Material is a worldbuilding entry. A nil BookID makes it global.
type Material struct {
	ID          int64
	Name        string
	Type        MaterialType
	Description string
	Content     MaterialContent
	BookID      *int64
}

// MaterialContent holds the payload of a material. Which field is used
// depends on the material type: Text for Text, Attributes for Object and
// Template, Items for List.
type MaterialContent struct {
	Text       string
	Attributes []Attribute
	Items      []string
}

// AttributeKind tags the variant held by an Attribute.
type AttributeKind string

const (
	AttributeText       AttributeKind = "Text"
	AttributeReference  AttributeKind = "Reference"
	AttributeCollection AttributeKind = "Collection"
)

// AttributeValue is one of TextValue, ReferenceValue or CollectionValue.
type AttributeValue interface {
	Kind() AttributeKind
}

// TextValue is a free-text attribute value.
type TextValue string

// ReferenceValue points at another material.
type ReferenceValue struct {
	MaterialID int64
	Name       string
}

// CollectionValue is an ordered list of strings.
type CollectionValue []string

func (TextValue) Kind() AttributeKind       { return AttributeText }
func (ReferenceValue) Kind() AttributeKind  { return AttributeReference }
func (CollectionValue) Kind() AttributeKind { return AttributeCollection }

// Attribute is a named, typed field of an Object or Template material.
type Attribute struct {
	Name  string
	Value AttributeValue
}

type referenceJSON struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type attributeJSON struct {
	Name  string          `json:"name"`
	Type  AttributeKind   `json:"type"`
	Value json.RawMessage `json:"value"`
}

func (a Attribute) MarshalJSON() ([]byte, error) {
	var value any
	switch v := a.Value.(type) {
	case nil:
		value = ""
	case TextValue:
		value = string(v)
	case ReferenceValue:
		value = referenceJSON{ID: v.MaterialID, Name: v.Name}
	case CollectionValue:
		items := []string(v)
		if items == nil {
			items = []string{}
		}
		value = items
	default:
		return nil, fmt.Errorf("unsupported attribute value %T", a.Value)
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	kind := AttributeText
	if a.Value != nil {
		kind = a.Value.Kind()
	}
	return json.Marshal(attributeJSON{Name: a.Name, Type: kind, Value: raw})
}

func (a *Attribute) UnmarshalJSON(data []byte) error {
	var aj attributeJSON
	if err := json.Unmarshal(data, &aj); err != nil {
		return err
	}
	a.Name = aj.Name

	if len(aj.Value) == 0 || string(aj.Value) == "null" {
		a.Value = emptyValue(aj.Type)
		return nil
	}

	switch aj.Type {
	case AttributeText, "":
		var s string
		if err := json.Unmarshal(aj.Value, &s); err != nil {
			// Older rows stored numbers and booleans unquoted.
			s = string(aj.Value)
		}
		a.Value = TextValue(s)
	case AttributeReference:
		var ref referenceJSON
		if err := json.Unmarshal(aj.Value, &ref); err != nil {
			var name string
			if err := json.Unmarshal(aj.Value, &name); err != nil {
				return fmt.Errorf("attribute %q: bad reference value: %w", aj.Name, err)
			}
			ref.Name = name
		}
		a.Value = ReferenceValue{MaterialID: ref.ID, Name: ref.Name}
	case AttributeCollection:
		var items []any
		if err := json.Unmarshal(aj.Value, &items); err != nil {
			return fmt.Errorf("attribute %q: bad collection value: %w", aj.Name, err)
		}
		coll := make(CollectionValue, 0, len(items))
		for _, it := range items {
			coll = append(coll, fmt.Sprint(it))
		}
		a.Value = coll
	default:
		return fmt.Errorf("attribute %q: unknown type %q", aj.Name, aj.Type)
	}
	return nil
}

func emptyValue(kind AttributeKind) AttributeValue {
	switch kind {
	case AttributeReference:
		return ReferenceValue{}
	case AttributeCollection:
		return CollectionValue{}
	default:
		return TextValue("")
	}
}

type textContentJSON struct {
	Value string `json:"value"`
}

type attributesContentJSON struct {
	Attributes []Attribute `json:"attributes"`
}

type listContentJSON struct {
	Items []string `json:"items"`
}

// EncodeContent serializes content to the JSON stored in the materials table.
func EncodeContent(t MaterialType, c MaterialContent) (string, error) {
	var v any
	switch t {
	case MaterialText:
		v = textContentJSON{Value: c.Text}
	case MaterialObject, MaterialTemplate:
		attrs := c.Attributes
		if attrs == nil {
			attrs = []Attribute{}
		}
		v = attributesContentJSON{Attributes: attrs}
	case MaterialList:
		items := c.Items
		if items == nil {
			items = []string{}
		}
		v = listContentJSON{Items: items}
	default:
		return "", fmt.Errorf("unknown material type: %q", t)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encoding %s content: %w", t, err)
	}
	return string(data), nil
}

// DecodeContent parses stored content JSON for a material of type t.
// Empty input decodes to empty content.
func DecodeContent(t MaterialType, raw string) (MaterialContent, error) {
	var c MaterialContent
	if raw == "" {
		return c, nil
	}

	switch t {
	case MaterialText:
		var tc textContentJSON
		if err := json.Unmarshal([]byte(raw), &tc); err != nil {
			return c, fmt.Errorf("decoding text content: %w", err)
		}
		c.Text = tc.Value
	case MaterialObject, MaterialTemplate:
		var ac attributesContentJSON
		if err := json.Unmarshal([]byte(raw), &ac); err != nil {
			return c, fmt.Errorf("decoding attributes: %w", err)
		}
		c.Attributes = ac.Attributes
	case MaterialList:
		var lc listContentJSON
		if err := json.Unmarshal([]byte(raw), &lc); err != nil {
			return c, fmt.Errorf("decoding list items: %w", err)
		}
		c.Items = lc.Items
	default:
		return c, fmt.Errorf("unknown material type: %q", t)
	}
	return c, nil
}
