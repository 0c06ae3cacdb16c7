package recon

import "acuvalidator/internal/extract"

// Config holds every naming convention the validator depends on. It is built once and passed
// by value into the core.
type Config struct {
	DescriptorFile      string   `mapstructure:"descriptor_file" validate:"required"`
	ModuleDir           string   `mapstructure:"module_dir" validate:"required"`
	SDKPrefix           string   `mapstructure:"sdk_prefix"`
	ExtensionBasePrefix string   `mapstructure:"extension_base_prefix" validate:"required"`
	FieldPrefix         string   `mapstructure:"field_prefix" validate:"required,alphanum"`
	UnboundAttributes   []string `mapstructure:"unbound_attributes" validate:"dive,required"`
	IgnoreFileName      string   `mapstructure:"ignore_file" validate:"required"`
}

// DefaultConfig returns the Acumatica conventions.
func DefaultConfig() Config {
	return Config{
		DescriptorFile:      "project.xml",
		ModuleDir:           "Bin",
		SDKPrefix:           "PX",
		ExtensionBasePrefix: "PXCacheExtension",
		FieldPrefix:         extract.DefaultFieldPrefix,
		UnboundAttributes: []string{
			"PXBoolAttribute",
			"PXStringAttribute",
			"PXDecimalAttribute",
			"PXLongAttribute",
			"PXIntAttribute",
			"PXDoubleAttribute",
			"PXDateAttribute",
			"PXDateAndTimeAttribute",
		},
		IgnoreFileName: "fields.ignore",
	}
}

func (c Config) extractOptions() extract.Options {
	return extract.Options{
		SDKPrefix:           c.SDKPrefix,
		ExtensionBasePrefix: c.ExtensionBasePrefix,
		FieldPrefix:         c.FieldPrefix,
		UnboundAttributes:   append([]string(nil), c.UnboundAttributes...),
	}
}
