package auth

import (
	"fmt"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/guidoasbun/chat-sec-1/errors"
)

var validate = validator.New()

type RegisterRequest struct {
	Username string `validate:"required,min=1,max=64"`
	Password string `validate:"required,min=8,max=72"`
}

// ValidateRegister enforces the credential policy: minimum length plus
// at least one non-alphanumeric character. Cheap checks run before any
// expensive cryptographic operation.
func ValidateRegister(req RegisterRequest) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrWeakCredential, err)
	}
	if !hasNonAlphanumeric(req.Password) {
		return fmt.Errorf("%w: at least one special character required", errors.ErrWeakCredential)
	}
	return nil
}

func hasNonAlphanumeric(s string) bool {
	for _, char := range s {
		if !unicode.IsLetter(char) && !unicode.IsNumber(char) {
			return true
		}
	}
	return false
}
