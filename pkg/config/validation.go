package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration against its struct tags plus the
// cross-field rules the tags cannot express.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		var errs validator.ValidationErrors
		if ok := asValidationErrors(err, &errs); ok {
			return fmt.Errorf("invalid configuration: %s", describeAll(errs))
		}
		return err
	}

	seen := make(map[string]struct{}, len(cfg.Encryption.Policies))
	for _, p := range cfg.Encryption.Policies {
		prefix := strings.TrimRight(p.Path, "/")
		if prefix == "" {
			prefix = "/"
		}
		if _, dup := seen[prefix]; dup {
			return fmt.Errorf("invalid configuration: duplicate encryption policy for %q", prefix)
		}
		seen[prefix] = struct{}{}
	}

	return nil
}

func asValidationErrors(err error, target *validator.ValidationErrors) bool {
	errs, ok := err.(validator.ValidationErrors)
	if ok {
		*target = errs
	}
	return ok
}

func describeAll(errs validator.ValidationErrors) string {
	parts := make([]string, 0, len(errs))
	for _, e := range errs {
		parts = append(parts, fmt.Sprintf("%s failed %q validation", e.Namespace(), e.Tag()))
	}
	return strings.Join(parts, "; ")
}
