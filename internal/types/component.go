// Package types provides the shared model of the build pipeline: component
// definitions, build profiles, variants and compiled artifacts.
// This package has no dependencies on other internal packages.
package types

import "fmt"

// Param describes one declared template parameter. Nested parameters
// describe the shape of object and array parameters.
type Param struct {
	Name        string  `yaml:"name" json:"name"`
	Type        string  `yaml:"type" json:"type"`
	Required    bool    `yaml:"required" json:"required"`
	Description string  `yaml:"description" json:"description"`
	Params      []Param `yaml:"params,omitempty" json:"params,omitempty"`
}

// Example is one named set of template data for a component.
type Example struct {
	Name   string                 `yaml:"name" json:"name"`
	Data   map[string]interface{} `yaml:"data" json:"data"`
	Hidden bool                   `yaml:"hidden,omitempty" json:"hidden"`
}

// DefaultExampleName is the example every component must declare exactly once.
const DefaultExampleName = "default"

// ComponentDefinition is the validated contents of a component's
// definition file.
type ComponentDefinition struct {
	Name                  string    `yaml:"-" json:"name"`
	Params                []Param   `yaml:"params" json:"params"`
	Examples              []Example `yaml:"examples" json:"examples"`
	PreviewLayout         string    `yaml:"previewLayout,omitempty" json:"previewLayout,omitempty"`
	AccessibilityCriteria string    `yaml:"accessibilityCriteria,omitempty" json:"accessibilityCriteria,omitempty"`
}

// DefaultExample returns the example named "default".
func (d *ComponentDefinition) DefaultExample() (Example, bool) {
	for _, ex := range d.Examples {
		if ex.Name == DefaultExampleName {
			return ex, true
		}
	}
	return Example{}, false
}

// Profile selects one of the three output layouts.
type Profile string

const (
	ProfilePreview Profile = "preview"
	ProfilePackage Profile = "package"
	ProfileRelease Profile = "release"
)

// Profiles lists every profile in a stable order.
var Profiles = []Profile{ProfilePreview, ProfilePackage, ProfileRelease}

// ParseProfile validates a profile name.
func ParseProfile(s string) (Profile, error) {
	switch Profile(s) {
	case ProfilePreview, ProfilePackage, ProfileRelease:
		return Profile(s), nil
	default:
		return "", fmt.Errorf("unknown build profile %q (want preview, package or release)", s)
	}
}

// Variant distinguishes modern output from the legacy browser output.
type Variant string

const (
	VariantModern Variant = "modern"
	VariantLegacy Variant = "legacy"
)

// ArtifactKind identifies what a compiled artifact is.
type ArtifactKind string

const (
	ArtifactStylesheet ArtifactKind = "stylesheet"
	ArtifactScript     ArtifactKind = "script"
	ArtifactSourceMap  ArtifactKind = "sourcemap"
	ArtifactFixtures   ArtifactKind = "fixtureJSON"
	ArtifactOptions    ArtifactKind = "optionsJSON"
	ArtifactStatic     ArtifactKind = "static"
	ArtifactVersion    ArtifactKind = "version"
)

// CompiledArtifact is one file written by a build run. DestPath is relative
// to the destination root and unique within the run.
type CompiledArtifact struct {
	Kind       ArtifactKind `json:"kind"`
	SourcePath string       `json:"sourcePath"`
	DestPath   string       `json:"destPath"`
	Variant    Variant      `json:"variant,omitempty"`
}
