package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration against the struct validate tags and
// reports the first failing field readably.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		var errs validator.ValidationErrors
		if errors.As(err, &errs) && len(errs) > 0 {
			fe := errs[0]
			return fmt.Errorf("field %s failed validation rule %q (value %v)",
				fe.Namespace(), fe.Tag(), fe.Value())
		}
		return err
	}
	return nil
}
