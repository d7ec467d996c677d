package illuminus

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNamesFor(t *testing.T) {
	n := NamesFor("batch1")
	assert.Equal(t, []string{
		"batch1.gencall.sample.json",
		"batch1.illuminus.sample.json",
		"batch1.snp.json",
		"batch1.chr.json",
		"batch1.illuminus.sim",
		"batch1.gencall.imajor.bed",
		"batch1.gencall.smajor.bed",
		"batch1.illuminus.bed",
	}, n.All())
	assert.Equal(t, n, NamesFor("batch1"))
	assert.Equal(t, "batch1.X", ChunkName("batch1", "X"))
}

func TestEnvResolve(t *testing.T) {
	env := Env{WorkDir: "/work/run1", LogDir: "/work/run1/log"}
	assert.Equal(t, "/work/run1/a.bed", env.Resolve("a.bed"))
	assert.Equal(t, "/abs/a.bed", env.Resolve("/abs/a.bed"))
	assert.Equal(t, "", env.Resolve(""))
}

func TestReadChromosomeBounds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch1.chr.json")
	data := `[{"chromosome":"1","start":0,"end":120},{"chromosome":"MT","start":120,"end":130}]`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	bounds, err := ReadChromosomeBounds(path)
	require.NoError(t, err)
	want := []ChromosomeBounds{
		{Chromosome: "1", Start: 0, End: 120},
		{Chromosome: "MT", Start: 120, End: 130},
	}
	if diff := cmp.Diff(want, bounds); diff != "" {
		t.Errorf("bounds (-want +got):\n%s", diff)
	}
}

func TestDecodeChromosomeBounds_Invalid(t *testing.T) {
	for _, data := range []string{
		`{"chromosome":"1"}`,
		`[{"start":0,"end":1}]`,
		`[{"chromosome":"1","start":5,"end":1}]`,
		`[{"chromosome":"1","start":-1,"end":1}]`,
	} {
		_, err := DecodeChromosomeBounds(strings.NewReader(data))
		assert.Error(t, err, data)
	}
}

func TestPlanChunks(t *testing.T) {
	groups := PlanChunks(100, 1100, 200, 2)
	want := [][]Chunk{
		{{100, 300}, {300, 500}},
		{{500, 700}, {700, 900}},
		{{900, 1100}},
	}
	if diff := cmp.Diff(want, groups); diff != "" {
		t.Errorf("groups (-want +got):\n%s", diff)
	}
}

func TestPlanChunks_CoversRangeExactly(t *testing.T) {
	for _, tc := range []struct{ start, end, size, group int }{
		{0, 1, 2000, 50},
		{0, 2000, 2000, 50},
		{0, 2001, 2000, 50},
		{13, 250013, 2000, 50},
		{7, 19, 3, 0},
	} {
		next := tc.start
		n := 0
		for _, g := range PlanChunks(tc.start, tc.end, tc.size, tc.group) {
			if tc.group > 0 {
				assert.LessOrEqual(t, len(g), tc.group)
			}
			for _, c := range g {
				assert.Equal(t, next, c.Start, "chunks must be contiguous")
				assert.LessOrEqual(t, c.End-c.Start, tc.size)
				next = c.End
				n++
			}
		}
		assert.Equal(t, tc.end, next, "%+v", tc)
		assert.Equal(t, (tc.end-tc.start+tc.size-1)/tc.size, n, "%+v", tc)
	}
}

func TestPlanChunks_Empty(t *testing.T) {
	assert.Nil(t, PlanChunks(10, 10, 2000, 50))
	assert.Nil(t, PlanChunks(0, 10, 0, 50))
}
