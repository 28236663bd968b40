package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/marmos91/dittoquery/pkg/node"
	indexs3 "github.com/marmos91/dittoquery/pkg/store/index/s3"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("node_id", func(fl validator.FieldLevel) bool {
		_, err := node.New(fl.Field().String())
		return err == nil
	})
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for complex rules
// that cannot be expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	if !cfg.Adapters.Query.Enabled {
		return fmt.Errorf("adapters: at least one adapter must be enabled")
	}

	if err := cfg.Adapters.Query.Validate(); err != nil {
		return fmt.Errorf("adapters.query: %w", err)
	}

	if cfg.Server.Metrics.Enabled {
		port := cfg.Server.Metrics.Port
		if port != 0 && (port == cfg.Adapters.Query.Port || port == cfg.Adapters.Query.SubscriptionPort) {
			return fmt.Errorf("server.metrics.port: %d is already used by the query adapter", port)
		}
	}

	if cfg.Index.Type == "badger" {
		if path, _ := cfg.Index.Badger["db_path"].(string); path == "" {
			if inMemory, _ := cfg.Index.Badger["in_memory"].(bool); !inMemory {
				return fmt.Errorf("index.badger: db_path is required")
			}
		}
	}

	if cfg.Index.Snapshot.Enabled {
		var client indexs3.ClientConfig
		if err := mapstructure.Decode(cfg.Index.Snapshot.S3, &client); err != nil {
			return fmt.Errorf("index.snapshot.s3: %w", err)
		}
		if client.Region == "" {
			return fmt.Errorf("index.snapshot.s3: region is required")
		}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	if validationErrs, ok := err.(validator.ValidationErrors); ok {
		if len(validationErrs) > 0 {
			e := validationErrs[0]
			return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
				e.Namespace(), e.Tag(), e.Value())
		}
	}
	return err
}
