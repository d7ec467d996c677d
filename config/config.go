package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

// Definition is the root structure of a workflow definition file.
type Definition struct {
	// Library is informational; it names the package of workflows.
	Library  string `yaml:"library,omitempty"`
	Workflow string `yaml:"workflow"`
	// Arguments are passed positionally to the workflow.
	Arguments []interface{} `yaml:"arguments"`

	// Timeout bounds the whole run (e.g. "48h"). Zero means no bound.
	Timeout Duration `yaml:"timeout,omitempty"`
	// PollInterval is how often batch jobs are polled (e.g. "30s").
	PollInterval Duration `yaml:"poll_interval,omitempty"`
	// Observers names observers registered in an ObserverRegistry.
	Observers []string `yaml:"observers,omitempty"`
}

// Validate checks that the definition names a workflow and has sane durations.
func (d *Definition) Validate() error {
	if d.Workflow == "" {
		return errors.New("workflow is required")
	}
	if d.Timeout < 0 {
		return errors.Newf("timeout must not be negative, got %v", d.Timeout.Duration())
	}
	if d.PollInterval < 0 {
		return errors.Newf("poll_interval must not be negative, got %v", d.PollInterval.Duration())
	}
	return nil
}

// Marshal encodes the definition as YAML.
func (d *Definition) Marshal() ([]byte, error) {
	return yaml.Marshal(d)
}

// Duration is a time.Duration that unmarshals from YAML strings (e.g. "60s", "5m").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return errors.Wrapf(err, "duration %q", s)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the standard time.Duration.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

// ParseDefinition parses YAML bytes into a validated Definition.
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, errors.Wrap(err, "parse workflow definition")
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// LoadDefinition reads and parses the definition file at path.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	def, err := ParseDefinition(data)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return def, nil
}
