// Package manifest parses Illumina .bpm.csv chip manifests into the SNP and
// chromosome-bounds JSON documents used by the calling stages.
package manifest

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/dcshock/genopipe/illuminus"
)

// Required columns of a .bpm.csv manifest.
const (
	ColIndex      = "Index"
	ColName       = "Name"
	ColChromosome = "Chromosome"
	ColPosition   = "Position"
	ColSNP        = "SNP"
	ColStrand     = "ILMN Strand"
)

var required = []string{ColIndex, ColName, ColChromosome, ColPosition, ColSNP, ColStrand}

// SNP is one manifest entry.
type SNP struct {
	// Index is the 1-based position of the SNP in the manifest file.
	Index      int       `json:"index"`
	Name       string    `json:"name"`
	Chromosome string    `json:"chromosome"`
	Position   int       `json:"position"`
	Strand     string    `json:"strand"`
	Alleles    [2]string `json:"alleles"`
}

// Manifest is a parsed manifest with its SNPs sorted by chromosome, then position.
type Manifest struct {
	SNPs []SNP
}

// ParseFile parses the manifest at path.
func ParseFile(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, err := Parse(f)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return m, nil
}

// Parse reads a .bpm.csv manifest. The first record is the header; columns are
// located by name so extra columns are ignored.
func Parse(r io.Reader) (*Manifest, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, errors.New("empty manifest")
	}
	if err != nil {
		return nil, errors.Wrap(err, "read manifest header")
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.TrimSpace(h)] = i
	}
	for _, c := range required {
		if _, ok := cols[c]; !ok {
			return nil, errors.Newf("manifest header has no %q column", c)
		}
	}

	var snps []SNP
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" {
			continue
		}
		snp, err := parseRecord(rec, cols)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		snps = append(snps, snp)
	}
	sort.SliceStable(snps, func(i, j int) bool {
		a, b := snps[i], snps[j]
		if a.Chromosome != b.Chromosome {
			return chromosomeLess(a.Chromosome, b.Chromosome)
		}
		return a.Position < b.Position
	})
	return &Manifest{SNPs: snps}, nil
}

func parseRecord(rec []string, cols map[string]int) (SNP, error) {
	field := func(name string) string {
		i := cols[name]
		if i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}
	var snp SNP
	var err error
	if snp.Index, err = strconv.Atoi(field(ColIndex)); err != nil {
		return SNP{}, errors.Wrap(err, ColIndex)
	}
	if snp.Position, err = strconv.Atoi(field(ColPosition)); err != nil {
		return SNP{}, errors.Wrap(err, ColPosition)
	}
	snp.Name = field(ColName)
	snp.Chromosome = field(ColChromosome)
	snp.Strand = field(ColStrand)
	if snp.Name == "" || snp.Chromosome == "" {
		return SNP{}, errors.New("missing SNP name or chromosome")
	}
	if snp.Alleles, err = parseAlleles(field(ColSNP)); err != nil {
		return SNP{}, err
	}
	return snp, nil
}

// parseAlleles splits the "[A/G]" allele notation.
func parseAlleles(s string) ([2]string, error) {
	inner := strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
	parts := strings.Split(inner, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return [2]string{}, errors.Newf("malformed SNP alleles %q", s)
	}
	return [2]string{parts[0], parts[1]}, nil
}

var namedChromosomes = map[string]int{"X": 1, "Y": 2, "XY": 3, "MT": 4}

// chromosomeLess orders numbered chromosomes numerically, then X, Y, XY and MT,
// then anything else lexically.
func chromosomeLess(a, b string) bool {
	ra, na := chromosomeRank(a)
	rb, nb := chromosomeRank(b)
	if ra != rb {
		return ra < rb
	}
	if ra == 0 {
		return na < nb
	}
	return a < b
}

func chromosomeRank(c string) (rank, n int) {
	if n, err := strconv.Atoi(c); err == nil {
		return 0, n
	}
	if r, ok := namedChromosomes[strings.ToUpper(c)]; ok {
		return r, 0
	}
	return len(namedChromosomes) + 1, 0
}

// ChromosomeBounds returns the [start, end) range of SNP indices in m.SNPs for
// each chromosome, in manifest order. The ranges are contiguous and cover every SNP.
func (m *Manifest) ChromosomeBounds() []illuminus.ChromosomeBounds {
	var bounds []illuminus.ChromosomeBounds
	for i, snp := range m.SNPs {
		if n := len(bounds); n > 0 && bounds[n-1].Chromosome == snp.Chromosome {
			bounds[n-1].End = i + 1
			continue
		}
		bounds = append(bounds, illuminus.ChromosomeBounds{Chromosome: snp.Chromosome, Start: i, End: i + 1})
	}
	return bounds
}

// WriteJSON writes the SNP JSON to snpPath and the chromosome bounds JSON to chrPath.
func (m *Manifest) WriteJSON(snpPath, chrPath string) error {
	snps := m.SNPs
	if snps == nil {
		snps = []SNP{}
	}
	if err := writeJSON(snpPath, snps); err != nil {
		return err
	}
	bounds := m.ChromosomeBounds()
	if bounds == nil {
		bounds = []illuminus.ChromosomeBounds{}
	}
	return writeJSON(chrPath, bounds)
}

func writeJSON(path string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode %s", path)
	}
	return errors.Wrapf(os.WriteFile(path, data, 0o644), "write %s", path)
}
