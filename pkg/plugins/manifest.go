package plugins

import (
	"errors"
	"fmt"
	"io/fs"
	"regexp"

	"gopkg.in/yaml.v3"
)

// ManifestFile is the manifest path inside a plugin package
const ManifestFile = "plugin.yaml"

var (
	semverRegex   = regexp.MustCompile(`^v?(\d+)\.(\d+)\.(\d+)(-[a-zA-Z0-9.-]+)?(\+[a-zA-Z0-9.-]+)?$`)
	pluginIDRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)
)

// ValidationError represents a manifest validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) String() string {
	return v.Field + ": " + v.Message
}

// LoadManifest reads and parses the manifest at the root of a package filesystem
func LoadManifest(fsys fs.FS) (*Manifest, error) {
	data, err := fs.ReadFile(fsys, ManifestFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: no %s in package", ErrManifestMissing, ManifestFile)
		}
		return nil, fmt.Errorf("%w: failed to read manifest: %v", ErrManifestMissing, err)
	}

	return ParseManifest(data)
}

// ParseManifest parses manifest bytes and checks the required id field
func ParseManifest(data []byte) (*Manifest, error) {
	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("%w: failed to parse manifest: %v", ErrManifestMissing, err)
	}

	if manifest.ID == "" {
		return nil, fmt.Errorf("%w: manifest has no id", ErrManifestMissing)
	}

	return &manifest, nil
}

// MarshalManifest renders a manifest as YAML
func MarshalManifest(manifest *Manifest) ([]byte, error) {
	data, err := yaml.Marshal(manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	return data, nil
}

// ValidateManifest performs basic validation on a plugin manifest
func ValidateManifest(manifest *Manifest) []ValidationError {
	var errs []ValidationError

	if manifest.ID == "" {
		errs = append(errs, ValidationError{
			Field:   "id",
			Message: "Plugin ID is required",
		})
	} else if !pluginIDRegex.MatchString(manifest.ID) {
		errs = append(errs, ValidationError{
			Field:   "id",
			Message: fmt.Sprintf("Invalid plugin ID: %s", manifest.ID),
		})
	}

	if manifest.Version != "" && !isValidSemver(manifest.Version) {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("Invalid semver format: %s", manifest.Version),
		})
	}

	if manifest.APIVersion != "" && !isValidSemver(manifest.APIVersion) {
		errs = append(errs, ValidationError{
			Field:   "api_version",
			Message: fmt.Sprintf("Invalid semver format: %s", manifest.APIVersion),
		})
	}

	return errs
}

// isValidSemver checks if a version string follows semantic versioning
func isValidSemver(version string) bool {
	return semverRegex.MatchString(version)
}

// IsCompatibleAPIVersion checks if a plugin's API version is compatible with the host.
// An empty plugin API version is accepted.
func IsCompatibleAPIVersion(pluginAPIVersion, hostAPIVersion string) bool {
	if pluginAPIVersion == "" {
		return true
	}
	// Only the major version has to match: v1.x.x is compatible with v1.y.z
	return extractMajorVersion(pluginAPIVersion) == extractMajorVersion(hostAPIVersion)
}

func extractMajorVersion(version string) string {
	matches := semverRegex.FindStringSubmatch(version)
	if len(matches) > 1 {
		return matches[1]
	}
	return "0"
}
