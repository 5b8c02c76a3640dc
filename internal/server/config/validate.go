package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// minSecretKeyLength applies outside development mode.
const minSecretKeyLength = 32

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s failed %q", fe.Field(), fe.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.SMTPHost != "" && c.SMTPFrom == "" {
		return errors.New("invalid config: smtp from address is required when smtp host is set")
	}
	if !c.Development && len(c.SecretKey) < minSecretKeyLength {
		return fmt.Errorf("invalid config: secret key must be at least %d bytes outside development mode", minSecretKeyLength)
	}
	return nil
}
