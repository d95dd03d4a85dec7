package lookup

import (
	"math"

	"github.com/starford/anndex/internal/models"
)

// TargetView is the JSON form of a target.
type TargetView struct {
	Kind       string `json:"kind"`
	Class      string `json:"class"`
	Name       string `json:"name,omitempty"`
	Descriptor string `json:"descriptor,omitempty"`
	Position   *int   `json:"position,omitempty"`
	Display    string `json:"display"`
}

// MemberView is the JSON form of one annotation member. Value holds a JSON
// friendly rendering; Text the Java-like source form.
type MemberView struct {
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Value any    `json:"value"`
	Text  string `json:"text"`
}

// InstanceView is the JSON form of one annotation instance.
type InstanceView struct {
	Type    string       `json:"type"`
	Target  TargetView   `json:"target"`
	Visible bool         `json:"visible"`
	Members []MemberView `json:"members"`
}

// NewInstanceView renders an instance.
func NewInstanceView(in models.Instance) InstanceView {
	return InstanceView{
		Type:    in.Type,
		Target:  NewTargetView(in.Target),
		Visible: in.Visible,
		Members: memberViews(in.Members),
	}
}

// NewTargetView renders a target.
func NewTargetView(t models.Target) TargetView {
	v := TargetView{
		Kind:       t.Kind.String(),
		Class:      t.ClassName,
		Name:       t.Name,
		Descriptor: t.Descriptor,
		Display:    t.String(),
	}
	if t.Kind == models.KindParameter {
		pos := t.Position
		v.Position = &pos
	}
	return v
}

func memberViews(members []models.Member) []MemberView {
	out := make([]MemberView, len(members))
	for i, m := range members {
		out[i] = MemberView{
			Name:  m.Name,
			Kind:  m.Value.Kind.String(),
			Value: jsonValue(m.Value),
			Text:  m.Value.String(),
		}
	}
	return out
}

func jsonValue(v models.Value) any {
	switch v.Kind {
	case models.ValueString, models.ValueClass, models.ValueUnknown:
		return v.Str
	case models.ValueInt, models.ValueLong, models.ValueByte, models.ValueShort:
		return v.Int
	case models.ValueChar:
		return string(rune(v.Int))
	case models.ValueFloat, models.ValueDouble:
		// JSON has no NaN or infinities.
		if math.IsNaN(v.Float) || math.IsInf(v.Float, 0) {
			return v.String()
		}
		return v.Float
	case models.ValueBool:
		return v.Bool
	case models.ValueEnum:
		return map[string]string{"type": v.Type, "constant": v.Str}
	case models.ValueAnnotation:
		if v.Nested == nil {
			return nil
		}
		return map[string]any{"type": v.Nested.Type, "members": memberViews(v.Nested.Members)}
	case models.ValueArray:
		out := make([]any, len(v.Elems))
		for i, e := range v.Elems {
			out[i] = jsonValue(e)
		}
		return out
	}
	return nil
}
