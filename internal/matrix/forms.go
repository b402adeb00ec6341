package matrix

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name, _, _ := strings.Cut(fld.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// RowForm is the add-row form: a label and an optional colour swatch.
type RowForm struct {
	Label string `json:"label" validate:"required,max=80"`
	Color string `json:"color" validate:"omitempty,hexcolor"`
}

// ColumnForm is the add/edit-column form. BinID optionally binds a bin whose
// width becomes the column's layout hint.
type ColumnForm struct {
	Label string  `json:"label" validate:"required,max=80"`
	BinID *string `json:"bin_id" validate:"omitempty,min=1"`
}

// RowInput is a validated RowForm.
type RowInput struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

// ColumnInput is a validated ColumnForm plus the width copied from its bin.
type ColumnInput struct {
	Label string           `json:"label"`
	BinID *string          `json:"bin_id,omitempty"`
	Width *decimal.Decimal `json:"width,omitempty"`
}

// Validate normalises the form and returns the row input.
func (f RowForm) Validate() (RowInput, error) {
	f.Label = cleanLabel(f.Label)
	f.Color = strings.ToLower(strings.TrimSpace(f.Color))
	if err := validateStruct(f); err != nil {
		return RowInput{}, err
	}
	if f.Color == "" {
		f.Color = DefaultRowColor
	}
	return RowInput{Label: f.Label, Color: f.Color}, nil
}

// Validate normalises the form and returns the column input without width.
func (f ColumnForm) Validate() (ColumnInput, error) {
	f.Label = cleanLabel(f.Label)
	if f.BinID != nil {
		id := strings.TrimSpace(*f.BinID)
		f.BinID = &id
		if id == "" {
			f.BinID = nil
		}
	}
	if err := validateStruct(f); err != nil {
		return ColumnInput{}, err
	}
	return ColumnInput{Label: f.Label, BinID: f.BinID}, nil
}

// Validate normalises a row patch. A patch that changes nothing is rejected.
func (p RowPatch) Validate() (RowPatch, error) {
	fields := map[string]string{}
	var out RowPatch
	if p.Label != nil {
		label := cleanLabel(*p.Label)
		if err := validate.Var(label, "required,max=80"); err != nil {
			fields["label"] = describe("required", err)
		}
		out.Label = &label
	}
	if p.Color != nil {
		color := strings.ToLower(strings.TrimSpace(*p.Color))
		if color == "" {
			color = DefaultRowColor
		}
		if !isHexColor(color) {
			fields["color"] = "must be a hex colour"
		}
		out.Color = &color
	}
	if p.Label == nil && p.Color == nil {
		fields["patch"] = "nothing to update"
	}
	if len(fields) > 0 {
		return RowPatch{}, &ValidationError{Fields: fields}
	}
	return out, nil
}

// Validate normalises a new matrix.
func (in MatrixInput) Validate() (MatrixInput, error) {
	in.Name = cleanLabel(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.RoomID = strings.TrimSpace(in.RoomID)
	if err := validateStruct(in); err != nil {
		return MatrixInput{}, err
	}
	return in, nil
}

func cleanLabel(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

func isHexColor(s string) bool {
	return s != "" && validate.Var(s, "hexcolor") == nil
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = message(fe)
	}
	return &ValidationError{Fields: fields}
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "hexcolor":
		return "must be a hex colour"
	default:
		return "is invalid"
	}
}

func describe(fallback string, err error) string {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return message(verrs[0])
	}
	return fallback
}
