package matrix

import (
	"context"
	"strings"

	"github.com/odyssey-erp/slotbook/internal/resources"
)

// EditorMode selects how a cell is edited.
type EditorMode string

const (
	// ModeFreeEntry accepts any text and offers suggestions.
	ModeFreeEntry EditorMode = "free"
	// ModeFixedOption only accepts values from an external option list.
	ModeFixedOption EditorMode = "fixed"
)

// Option is a selectable value of a fixed-option editor.
type Option struct {
	Value string `json:"value"`
	Label string `json:"label"`
}

// OptionSet names the external list a fixed-option cell draws from. The
// zero value means free entry.
type OptionSet string

const (
	OptionsNone OptionSet = ""
	OptionsBins OptionSet = "bins"
	OptionsSKUs OptionSet = "skus"
)

// LoadOptions fetches the options of set. Without a lookup the list is
// empty, which leaves a fixed-option editor disabled.
func LoadOptions(ctx context.Context, lookup ResourceLookup, set OptionSet) ([]Option, error) {
	switch set {
	case OptionsNone:
		return nil, nil
	case OptionsBins, OptionsSKUs:
	default:
		return nil, invalidField("options", "must be bins or skus")
	}
	if lookup == nil {
		return nil, nil
	}
	if set == OptionsBins {
		bins, err := lookup.Bins(ctx)
		if err != nil {
			return nil, err
		}
		return BinOptions(bins), nil
	}
	products, err := lookup.Products(ctx)
	if err != nil {
		return nil, err
	}
	return ProductOptions(products), nil
}

// BinOptions maps bins to options keyed by bin name.
func BinOptions(bins []resources.Bin) []Option {
	out := make([]Option, 0, len(bins))
	for _, b := range bins {
		out = append(out, Option{Value: b.Name, Label: b.Name})
	}
	return out
}

// ProductOptions maps products to options keyed by SKU.
func ProductOptions(products []resources.Product) []Option {
	out := make([]Option, 0, len(products))
	for _, p := range products {
		label := p.SKU
		if p.Name != "" {
			label = p.SKU + " - " + p.Name
		}
		out = append(out, Option{Value: p.SKU, Label: label})
	}
	return out
}

// CellEditor edits a single cell value. Changes are reported through the
// onChange callback; the editor never mutates the grid itself.
type CellEditor struct {
	mode        EditorMode
	value       string
	options     []Option
	suggestions *Suggestions
	disabled    bool
	onChange    func(string) error
}

// NewFreeEntryEditor builds an autocomplete editor over suggestions.
func NewFreeEntryEditor(value string, suggestions *Suggestions, onChange func(string) error) *CellEditor {
	if suggestions == nil {
		suggestions = BuildSuggestions(nil)
	}
	return &CellEditor{mode: ModeFreeEntry, value: value, suggestions: suggestions, onChange: onChange}
}

// NewFixedOptionEditor builds a selector over options. With no options the
// editor is disabled.
func NewFixedOptionEditor(value string, options []Option, onChange func(string) error) *CellEditor {
	return &CellEditor{
		mode:     ModeFixedOption,
		value:    value,
		options:  options,
		disabled: len(options) == 0,
		onChange: onChange,
	}
}

// Mode returns the editor mode.
func (e *CellEditor) Mode() EditorMode { return e.mode }

// Value returns the current value.
func (e *CellEditor) Value() string { return e.value }

// Disabled reports whether the editor accepts input.
func (e *CellEditor) Disabled() bool { return e.disabled }

// SetDisabled forces the disabled state.
func (e *CellEditor) SetDisabled(disabled bool) {
	e.disabled = disabled || (e.mode == ModeFixedOption && len(e.options) == 0)
}

// Placeholder is the hint shown for an empty or disabled editor.
func (e *CellEditor) Placeholder() string {
	switch {
	case e.mode == ModeFixedOption && len(e.options) == 0:
		return "No options available"
	case e.mode == ModeFixedOption:
		return "Select..."
	default:
		return "Type or pick a value"
	}
}

// Choices returns what the editor offers: the options of a fixed-option
// editor, or the suggestions matching query for a free-entry editor.
func (e *CellEditor) Choices(query string, limit int) []Option {
	if e.mode == ModeFixedOption {
		q := fold(strings.TrimSpace(query))
		var out []Option
		for _, o := range e.options {
			if q == "" || strings.Contains(fold(o.Label), q) || strings.Contains(fold(o.Value), q) {
				out = append(out, o)
			}
			if limit > 0 && len(out) == limit {
				break
			}
		}
		return out
	}
	matches := e.suggestions.Match(query, limit)
	out := make([]Option, len(matches))
	for i, m := range matches {
		out[i] = Option{Value: m, Label: m}
	}
	return out
}

// Choose selects value. Fixed-option editors reject values outside the list.
func (e *CellEditor) Choose(value string) error {
	if e.disabled {
		return ErrEditorDisabled
	}
	if e.mode == ModeFixedOption && value != "" && !e.allowed(value) {
		return ErrOptionNotAllowed
	}
	return e.change(value)
}

// Submit commits free text, adding it to the suggestion list. Fixed-option
// editors treat it like Choose.
func (e *CellEditor) Submit(text string) error {
	if e.mode == ModeFixedOption {
		return e.Choose(text)
	}
	if e.disabled {
		return ErrEditorDisabled
	}
	text = strings.TrimSpace(text)
	e.suggestions.Add(text)
	return e.change(text)
}

// Clear resets the cell to unset.
func (e *CellEditor) Clear() error {
	if e.disabled {
		return ErrEditorDisabled
	}
	return e.change("")
}

func (e *CellEditor) change(value string) error {
	if e.onChange != nil {
		if err := e.onChange(value); err != nil {
			return err
		}
	}
	e.value = value
	return nil
}

func (e *CellEditor) allowed(value string) bool {
	for _, o := range e.options {
		if o.Value == value {
			return true
		}
	}
	return false
}
