package checkout

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Form is the customer and delivery data collected before payment.
type Form struct {
	Name    string `json:"nombre" validate:"required"`
	Surname string `json:"apellidos" validate:"required"`
	Email   string `json:"correo" validate:"required,email"`
	Phone   string `json:"telefono"`
	Card    string `json:"tarjeta" validate:"required"`
	Street  string `json:"calle" validate:"required"`
	Region  string `json:"region" validate:"required"`
	Comuna  string `json:"comuna" validate:"required"`
	Notes   string `json:"notas"`
}

// ValidationError lists the form fields that failed.
type ValidationError struct {
	Fields []FieldError
}

type FieldError struct {
	Field string
	Rule  string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s (%s)", f.Field, f.Rule))
	}
	return "invalid checkout form: " + strings.Join(parts, ", ")
}

// Validate trims the form in place and checks the required fields.
func (f *Form) Validate() error {
	for _, s := range []*string{&f.Name, &f.Surname, &f.Email, &f.Phone, &f.Card, &f.Street, &f.Region, &f.Comuna, &f.Notes} {
		*s = strings.TrimSpace(*s)
	}
	err := validate.Struct(f)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	out := &ValidationError{}
	for _, fe := range verrs {
		out.Fields = append(out.Fields, FieldError{Field: fe.Field(), Rule: fe.Tag()})
	}
	return out
}

// ShippingAddress renders the delivery fields as one line.
func (f Form) ShippingAddress() string {
	return fmt.Sprintf("%s, %s, %s", f.Street, f.Comuna, f.Region)
}
