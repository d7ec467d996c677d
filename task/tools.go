package task

import (
	"os"
	"path/filepath"

	"github.com/cockroachdb/errors"
	"v.io/x/lib/lookpath"
)

// ErrToolNotFound is returned when an external tool cannot be resolved.
var ErrToolNotFound = errors.New("tool not found")

// Tools names the external programs used by the stages. A name without a path
// separator is looked up on the PATH.
type Tools struct {
	GenotypeCall     string `mapstructure:"genotype_call" yaml:"genotype_call"`
	Simtools         string `mapstructure:"simtools" yaml:"simtools"`
	Illuminus        string `mapstructure:"illuminus" yaml:"illuminus"`
	G2I              string `mapstructure:"g2i" yaml:"g2i"`
	Plink            string `mapstructure:"plink" yaml:"plink"`
	QC               string `mapstructure:"qc" yaml:"qc"`
	UpdateAnnotation string `mapstructure:"update_annotation" yaml:"update_annotation"`
}

// DefaultTools returns the conventional tool names.
func DefaultTools() Tools {
	return Tools{
		GenotypeCall:     "genotype-call",
		Simtools:         "simtools",
		Illuminus:        "illuminus",
		G2I:              "g2i",
		Plink:            "plink",
		QC:               "genotype_qc.pl",
		UpdateAnnotation: "update_plink_annotation.pl",
	}
}

func (t *Tools) fields() []struct {
	key string
	val *string
} {
	return []struct {
		key string
		val *string
	}{
		{"genotype_call", &t.GenotypeCall},
		{"simtools", &t.Simtools},
		{"illuminus", &t.Illuminus},
		{"g2i", &t.G2I},
		{"plink", &t.Plink},
		{"qc", &t.QC},
		{"update_annotation", &t.UpdateAnnotation},
	}
}

// Resolve returns a copy of t with every tool replaced by its absolute path,
// searching env["PATH"] for bare names. Empty names take their defaults.
func (t Tools) Resolve(env map[string]string) (Tools, error) {
	defaults := DefaultTools()
	resolved := t
	df := defaults.fields()
	for i, f := range resolved.fields() {
		if *f.val == "" {
			*f.val = *df[i].val
		}
		path, err := LookTool(env, *f.val)
		if err != nil {
			return Tools{}, errors.WithHintf(err, "install %s or set tools.%s in the configuration", *f.val, f.key)
		}
		*f.val = path
	}
	return resolved, nil
}

// LookTool resolves one program name to an absolute path. Names containing a
// path separator must name an executable file.
func LookTool(env map[string]string, name string) (string, error) {
	if filepath.Base(name) != name {
		abs, err := filepath.Abs(name)
		if err != nil {
			return "", errors.Wrapf(ErrToolNotFound, "%s: %v", name, err)
		}
		fi, err := os.Stat(abs)
		if err != nil || fi.IsDir() || fi.Mode()&0o111 == 0 {
			return "", errors.Wrapf(ErrToolNotFound, "%s is not an executable file", abs)
		}
		return abs, nil
	}
	path, err := lookpath.Look(env, name)
	if err != nil {
		return "", errors.Wrapf(ErrToolNotFound, "%s: %v", name, err)
	}
	return path, nil
}
