package illuminus

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/cockroachdb/errors"
)

// Defaults for options not supplied by the caller.
const (
	DefaultGenderMethod = "Inferred"
	DefaultChunkSize    = 2000
	DefaultMemory       = 1024
	DefaultQueue        = "normal"
	DefaultMinCR        = 0.9

	// GroupSize is the number of SNP chunks batched into one Illuminus job.
	GroupSize = 50
)

// ErrInvalidOptions is returned when the workflow options cannot be used.
var ErrInvalidOptions = errors.New("invalid workflow options")

// Options are the recognised workflow arguments. Build them with DefaultOptions
// or ParseArgs; they are not modified once a run starts.
type Options struct {
	// Config is the path of a custom pipeline database .ini file. Optional.
	Config string `json:"config,omitempty" yaml:"config,omitempty"`
	// Manifest is the path of the chip manifest file. Required.
	Manifest string `json:"manifest" yaml:"manifest"`
	// GenderMethod names the gender determination method used for Illuminus input.
	GenderMethod string `json:"gender_method" yaml:"gender_method"`
	// ChunkSize is the number of SNPs analysed by a single Illuminus job.
	ChunkSize int `json:"chunk_size" yaml:"chunk_size"`
	// Memory is the number of Mb requested for scheduler jobs.
	Memory int `json:"memory" yaml:"memory"`
	// Queue is a scheduler queue hint.
	Queue string `json:"queue" yaml:"queue"`
	// MinCR is the minimum GenCall call rate for Illuminus input samples.
	MinCR float64 `json:"min_cr" yaml:"min_cr"`
}

// DefaultOptions returns options with every default applied and the given manifest.
func DefaultOptions(manifest string) Options {
	return Options{
		Manifest:     manifest,
		GenderMethod: DefaultGenderMethod,
		ChunkSize:    DefaultChunkSize,
		Memory:       DefaultMemory,
		Queue:        DefaultQueue,
		MinCR:        DefaultMinCR,
	}
}

// WithDefaults returns a copy of o with zero-valued fields replaced by their
// defaults. A zero MinCR counts as unset here; use ParseArgs to request 0 explicitly.
func (o Options) WithDefaults() Options {
	d := DefaultOptions(o.Manifest)
	d.Config = o.Config
	if o.GenderMethod != "" {
		d.GenderMethod = o.GenderMethod
	}
	if o.ChunkSize != 0 {
		d.ChunkSize = o.ChunkSize
	}
	if o.Memory != 0 {
		d.Memory = o.Memory
	}
	if o.Queue != "" {
		d.Queue = o.Queue
	}
	if o.MinCR != 0 {
		d.MinCR = o.MinCR
	}
	return d
}

// Validate checks the options a run depends on.
func (o Options) Validate() error {
	switch {
	case o.Manifest == "":
		return errors.WithHint(errors.Wrap(ErrInvalidOptions, "manifest is required"),
			"pass the chip manifest path, e.g. manifest: /genotyping/manifests/Human670-QuadCustom_v1_A.bpm.csv")
	case o.ChunkSize <= 0:
		return errors.Wrapf(ErrInvalidOptions, "chunk_size must be positive, got %d", o.ChunkSize)
	case o.Memory <= 0:
		return errors.Wrapf(ErrInvalidOptions, "memory must be positive, got %d", o.Memory)
	case o.MinCR < 0 || o.MinCR > 1:
		return errors.Wrapf(ErrInvalidOptions, "min_cr must be within [0, 1], got %v", o.MinCR)
	}
	return nil
}

// Async returns the scheduler hints for asynchronous stages.
func (o Options) Async() Async {
	return Async{Memory: o.Memory, Queue: o.Queue}
}

var knownArgs = map[string]bool{
	"config":        true,
	"manifest":      true,
	"gender_method": true,
	"chunk_size":    true,
	"memory":        true,
	"queue":         true,
	"min_cr":        true,
}

// ParseArgs builds Options from a loosely typed argument map, such as the options
// entry of a YAML workflow definition. Unknown keys and values of the wrong type
// are errors; omitted keys take their defaults.
func ParseArgs(args map[string]interface{}) (Options, error) {
	var unknown []string
	for k := range args {
		if !knownArgs[k] {
			unknown = append(unknown, k)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return Options{}, errors.Wrapf(ErrInvalidOptions, "unknown arguments %v", unknown)
	}
	o := DefaultOptions("")
	for _, s := range []struct {
		key string
		dst *string
	}{
		{"config", &o.Config},
		{"manifest", &o.Manifest},
		{"gender_method", &o.GenderMethod},
		{"queue", &o.Queue},
	} {
		if err := stringArg(args, s.key, s.dst); err != nil {
			return Options{}, err
		}
	}
	if err := intArg(args, "chunk_size", &o.ChunkSize); err != nil {
		return Options{}, err
	}
	if err := intArg(args, "memory", &o.Memory); err != nil {
		return Options{}, err
	}
	if err := floatArg(args, "min_cr", &o.MinCR); err != nil {
		return Options{}, err
	}
	return o, nil
}

// The arg helpers leave dst untouched when key is absent or null.

func stringArg(args map[string]interface{}, key string, dst *string) error {
	v, ok := args[key]
	if !ok || v == nil {
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return errors.Wrapf(ErrInvalidOptions, "%s: expected string, got %T", key, v)
	}
	*dst = s
	return nil
}

func intArg(args map[string]interface{}, key string, dst *int) error {
	v, ok := args[key]
	if !ok || v == nil {
		return nil
	}
	switch n := v.(type) {
	case int:
		*dst = n
	case int64:
		*dst = int(n)
	case float64:
		if n != float64(int(n)) {
			return errors.Wrapf(ErrInvalidOptions, "%s: expected integer, got %v", key, n)
		}
		*dst = int(n)
	case string:
		i, err := strconv.Atoi(n)
		if err != nil {
			return errors.Wrapf(ErrInvalidOptions, "%s: %v", key, err)
		}
		*dst = i
	default:
		return errors.Wrapf(ErrInvalidOptions, "%s: expected integer, got %T", key, v)
	}
	return nil
}

func floatArg(args map[string]interface{}, key string, dst *float64) error {
	v, ok := args[key]
	if !ok || v == nil {
		return nil
	}
	switch n := v.(type) {
	case float64:
		*dst = n
	case int:
		*dst = float64(n)
	case int64:
		*dst = float64(n)
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return errors.Wrapf(ErrInvalidOptions, "%s: %v", key, err)
		}
		*dst = f
	default:
		return errors.Wrapf(ErrInvalidOptions, "%s: expected number, got %T", key, v)
	}
	return nil
}

func (o Options) String() string {
	return fmt.Sprintf("manifest=%s gender_method=%s chunk_size=%d memory=%d queue=%s min_cr=%v",
		o.Manifest, o.GenderMethod, o.ChunkSize, o.Memory, o.Queue, o.MinCR)
}
