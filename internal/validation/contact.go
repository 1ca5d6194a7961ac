package validation

import (
	"errors"
	"regexp"

	"github.com/go-playground/validator/v10"
)

var phoneRegex = regexp.MustCompile(`^\d{10}$`)

var (
	ErrPhoneRequired = errors.New("Phone number is required")
	ErrNameRequired  = errors.New("Name is required")
	ErrPhoneFormat   = errors.New("Phone number must be exactly 10 digits")
)

// Contact is the name and phone pair a student discloses when confirming
// a swap.
type Contact struct {
	Phone string `json:"phoneNumber" validate:"notblank,phone10"`
	Name  string `json:"name" validate:"notblank"`
}

// Validate reports the first problem with c. Blank checks run before the
// phone format check, so a blank phone never reads as malformed.
func (c Contact) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	failed := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		failed[fe.Field()] = fe.Tag()
	}
	switch {
	case failed["phoneNumber"] == notBlankTag:
		return ErrPhoneRequired
	case failed["name"] == notBlankTag:
		return ErrNameRequired
	case failed["phoneNumber"] == phoneTag:
		return ErrPhoneFormat
	}
	return err
}

// ValidateContact checks a name and phone pair. See Contact.Validate.
func ValidateContact(name, phone string) error {
	return Contact{Phone: phone, Name: name}.Validate()
}
