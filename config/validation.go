package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/lvdlvd/xfscat/source"
)

var validate = validator.New()

// Validate checks struct tags and the S3 source section.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}
	return validateS3(cfg.Source.S3)
}

// validateS3 rejects unknown keys and negative retry counts.
func validateS3(opts map[string]any) error {
	if len(opts) == 0 {
		return nil
	}

	var s3cfg source.S3Config
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		ErrorUnused:      true,
		WeaklyTypedInput: true,
		Result:           &s3cfg,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(opts); err != nil {
		return fmt.Errorf("source.s3: %w", err)
	}
	if s3cfg.MaxRetries < 0 {
		return fmt.Errorf("source.s3.max_retries: must not be negative (value: %d)", s3cfg.MaxRetries)
	}
	return nil
}

func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok && len(validationErrs) > 0 {
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
