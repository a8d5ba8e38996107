package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

// ValidationError holds details about a configuration validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	var msgs []string
	for _, e := range errs {
		msgs = append(msgs, "  - "+e.Error())
	}
	return fmt.Sprintf("invalid config, %d error(s):\n%s", len(errs), strings.Join(msgs, "\n"))
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their yaml names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("abspath", func(fl validator.FieldLevel) bool {
		return filepath.IsAbs(fl.Field().String())
	})
	_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		d, err := time.ParseDuration(fl.Field().String())
		return err == nil && d > 0
	})
	_ = v.RegisterValidation("cron", func(fl validator.FieldLevel) bool {
		_, err := cron.ParseStandard(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("stackname", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return s != "." && s != ".." && !strings.ContainsRune(s, '/')
	})
	return v
}

// Validate checks the config after defaults have been applied.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("validating config: %w", err)
		}
		for _, fe := range verrs {
			errs = append(errs, ValidationError{
				Field:   strings.TrimPrefix(fe.Namespace(), "Config."),
				Message: describe(fe),
			})
		}
	}

	if len(c.Stacks) == 0 && c.ExtraStack == "" {
		errs = append(errs, ValidationError{Field: "stacks", Message: "at least one stack or extra_stack is required"})
	}
	if c.ExtraStack != "" {
		base := filepath.Base(filepath.Clean(c.ExtraStack))
		switch base {
		case "/", ".", "..":
			errs = append(errs, ValidationError{
				Field:   "extra_stack",
				Message: fmt.Sprintf("%q does not name a stack directory", c.ExtraStack),
			})
		case StacksArchiveDir:
			errs = append(errs, ValidationError{
				Field:   "extra_stack",
				Message: fmt.Sprintf("directory name %q collides with the stacks archive directory", base),
			})
		}
		for _, s := range c.Stacks {
			if s == base {
				errs = append(errs, ValidationError{
					Field:   "extra_stack",
					Message: fmt.Sprintf("name %q duplicates a listed stack", base),
				})
			}
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_with":
		return "is required"
	case "abspath":
		return fmt.Sprintf("must be an absolute path, got %q", fe.Value())
	case "duration":
		return fmt.Sprintf("must be a positive duration like 5m, got %q", fe.Value())
	case "cron":
		return fmt.Sprintf("invalid cron expression %q", fe.Value())
	case "stackname":
		return fmt.Sprintf("invalid stack name %q", fe.Value())
	case "unique":
		return "contains duplicates"
	case "email":
		return fmt.Sprintf("invalid email address %q", fe.Value())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	case "min", "max":
		return fmt.Sprintf("failed %s=%s (got %v)", fe.Tag(), fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}
