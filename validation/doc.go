// Package validation validates configuration structs using
// go-playground/validator struct tags and reports failures as
// *errors.AppError values.
//
//	type Config struct {
//	    MaxRetries int `mapstructure:"max_retries" validate:"gte=0,lte=100"`
//	}
//	err := validation.Validate(cfg)
package validation
