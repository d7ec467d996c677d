package illuminus

import (
	"encoding/json"
	"io"
	"os"

	"github.com/cockroachdb/errors"
)

// ChromosomeBounds is the half-open SNP index range [Start, End) of one
// chromosome in the SNP JSON.
type ChromosomeBounds struct {
	Chromosome string `json:"chromosome"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
}

// DecodeChromosomeBounds reads a JSON array of chromosome bounds.
func DecodeChromosomeBounds(r io.Reader) ([]ChromosomeBounds, error) {
	var bounds []ChromosomeBounds
	if err := json.NewDecoder(r).Decode(&bounds); err != nil {
		return nil, errors.Wrap(err, "decode chromosome bounds")
	}
	for i, b := range bounds {
		if b.Chromosome == "" {
			return nil, errors.Newf("chromosome bounds %d: missing chromosome", i)
		}
		if b.Start < 0 || b.End < b.Start {
			return nil, errors.Newf("chromosome bounds %d (%s): invalid range [%d, %d)", i, b.Chromosome, b.Start, b.End)
		}
	}
	return bounds, nil
}

// ReadChromosomeBounds reads the chromosome JSON written by manifest parsing.
func ReadChromosomeBounds(path string) ([]ChromosomeBounds, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	bounds, err := DecodeChromosomeBounds(f)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return bounds, nil
}

// Chunk is a half-open SNP index range handled by one Illuminus invocation.
type Chunk struct {
	Start int
	End   int
}

// PlanChunks splits [start, end) into chunks of at most size SNPs and groups
// consecutive chunks into batches of at most groupSize. An empty range has no
// chunks.
func PlanChunks(start, end, size, groupSize int) [][]Chunk {
	if size <= 0 || end <= start {
		return nil
	}
	if groupSize <= 0 {
		groupSize = 1
	}
	var groups [][]Chunk
	var group []Chunk
	for s := start; s < end; s += size {
		e := s + size
		if e > end {
			e = end
		}
		group = append(group, Chunk{Start: s, End: e})
		if len(group) == groupSize {
			groups = append(groups, group)
			group = nil
		}
	}
	if len(group) > 0 {
		groups = append(groups, group)
	}
	return groups
}
