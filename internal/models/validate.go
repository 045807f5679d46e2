package models

import (
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	personNameRegex = regexp.MustCompile(`^[A-Za-z\s\-']+$`)
	tenantIDRegex   = regexp.MustCompile(`^[a-z0-9-]{3,63}$`)

	validateOnce sync.Once
	validate     *validator.Validate
)

// Validator returns the shared validator with the domain tags registered:
// personname for student names and tenantid for DNS-label tenant ids.
// Field names in errors come from the csv tag, then the json tag.
func Validator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, key := range []string{"csv", "json"} {
				name := strings.SplitN(fld.Tag.Get(key), ",", 2)[0]
				if name == "-" {
					return ""
				}
				if name != "" {
					return name
				}
			}
			return fld.Name
		})
		_ = validate.RegisterValidation("personname", func(fl validator.FieldLevel) bool {
			return personNameRegex.MatchString(fl.Field().String())
		})
		_ = validate.RegisterValidation("tenantid", func(fl validator.FieldLevel) bool {
			return IsTenantID(fl.Field().String())
		})
	})
	return validate
}

// IsTenantID reports whether id is a DNS label usable as a tenant id.
func IsTenantID(id string) bool {
	if !tenantIDRegex.MatchString(id) {
		return false
	}
	return !strings.HasPrefix(id, "-") && !strings.HasSuffix(id, "-")
}
