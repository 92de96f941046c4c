package schema

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

// ErrValidation is matched by every *ValidationError.
var ErrValidation = errors.New("validation failed")

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// FieldError is one rejected input field.
type FieldError struct {
	Field   string
	Message string
}

// ValidationError lists every rejected field of one input.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Message
	}
	return "invalid input: " + strings.Join(msgs, "; ")
}

// Is makes errors.Is(err, ErrValidation) true.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func (e *ValidationError) add(field, format string, args ...any) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: fmt.Sprintf(format, args...)})
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func fromValidator(err error) *ValidationError {
	out := &ValidationError{}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		out.add("", "%v", err)
		return out
	}
	for _, fe := range verrs {
		field := fe.Field()
		switch fe.Tag() {
		case "required":
			out.add(field, "%s is required", field)
		case "len":
			out.add(field, "%s must be %s characters", field, fe.Param())
		case "number":
			out.add(field, "%s must contain only digits", field)
		case "max":
			out.add(field, "%s must be at most %s characters", field, fe.Param())
		case "oneof":
			out.add(field, "%s must be one of: %s", field, fe.Param())
		default:
			out.add(field, "%s is invalid (%s)", field, fe.Tag())
		}
	}
	return out
}

// NewCustomer is the input for creating or editing a customer.
type NewCustomer struct {
	Name          string `json:"name" validate:"required,max=100"`
	NameLocalized string `json:"nameLocalized" validate:"max=100"`
	Phone         string `json:"phone" validate:"required,number,len=10"`
}

// Normalize trims surrounding whitespace from every field.
func (c *NewCustomer) Normalize() {
	c.Name = strings.TrimSpace(c.Name)
	c.NameLocalized = strings.TrimSpace(c.NameLocalized)
	c.Phone = strings.TrimSpace(c.Phone)
}

// Validate checks the input after normalization.
func (c NewCustomer) Validate() error {
	c.Normalize()
	if err := validate.Struct(c); err != nil {
		return fromValidator(err)
	}
	return nil
}

// NewTransaction is the input for recording a transaction.
type NewTransaction struct {
	CustomerID int64           `json:"customerId" validate:"required"`
	Date       Date            `json:"date"`
	Item       string          `json:"item" validate:"required,max=200"`
	Amount     decimal.Decimal `json:"amount"`
	Type       EntryType       `json:"type" validate:"required,oneof=due paid"`
	Note       string          `json:"note" validate:"max=500"`
}

// Normalize trims surrounding whitespace from text fields.
func (t *NewTransaction) Normalize() {
	t.Item = strings.TrimSpace(t.Item)
	t.Note = strings.TrimSpace(t.Note)
}

// Validate checks the input after normalization. today bounds the date:
// entries may not be dated after it.
func (t NewTransaction) Validate(today Date) error {
	t.Normalize()

	verr := &ValidationError{}
	if err := validate.Struct(t); err != nil {
		verr = fromValidator(err)
	}
	if !t.Amount.IsPositive() {
		verr.add("amount", "amount must be greater than zero")
	}
	if t.Date.IsZero() {
		verr.add("date", "date is required")
	} else if t.Date.After(today) {
		verr.add("date", "date %s is in the future", t.Date)
	}
	return verr.orNil()
}
