package config

import _ "embed"

//go:embed assets/pipeline.yaml
var embeddedPipeline []byte

// DefaultFileContents returns the annotated YAML form of DefaultFile, suitable
// as a starting point for a custom --config file.
func DefaultFileContents() []byte {
	return append([]byte(nil), embeddedPipeline...)
}
