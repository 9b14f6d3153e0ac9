package export

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"dietinsights/internal/engine"
	"dietinsights/internal/models"

	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/ipc"
	"github.com/apache/arrow/go/v18/arrow/memory"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dataset = `Diet_type,Recipe_name,Cuisine_type,Protein(g),Carbs(g),Fat(g)
vegan,Tofu Bowl,asian,30,20,10
keto,Steak,american,60,0,30
keto,Bacon Eggs,american,25,2,40
vegan,Broken,asian,oops,1,1
vegan,Pasta,italian,10,60,0
`

func testSnapshot(t *testing.T) *engine.Snapshot {
	t.Helper()
	rows, err := engine.ReadRows(strings.NewReader(dataset))
	require.NoError(t, err)
	snap, err := engine.NewStore(nil).ReloadRows("test.csv", rows)
	require.NoError(t, err)
	return snap
}

func TestWriteCleanCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCleanCSV(&buf, testSnapshot(t)))

	recs, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 5)
	assert.Equal(t, cleanHeader, recs[0])
	assert.Equal(t, []string{"vegan", "Tofu Bowl", "asian", "30", "20", "10", "1.5", "2"}, recs[1])
	// Zero carbs and zero fat leave the ratio empty
	assert.Equal(t, "", recs[2][6])
	assert.Equal(t, "", recs[4][7])
}

func TestWriteArrow(t *testing.T) {
	snap := testSnapshot(t)
	var buf bytes.Buffer
	require.NoError(t, WriteArrow(&buf, snap))

	r, err := ipc.NewFileReader(bytes.NewReader(buf.Bytes()), ipc.WithAllocator(memory.NewGoAllocator()))
	require.NoError(t, err)
	defer r.Close()

	assert.True(t, r.Schema().Equal(snapshotSchema))
	require.Equal(t, 1, r.NumRecords())
	rec, err := r.Record(0)
	require.NoError(t, err)
	assert.Equal(t, int64(snap.Len()), rec.NumRows())

	names := rec.Column(2).(*array.String)
	assert.Equal(t, "Steak", names.Value(1))
	protein := rec.Column(4).(*array.Float64)
	assert.Equal(t, 60.0, protein.Value(1))
	pc := rec.Column(7).(*array.Float64)
	assert.True(t, pc.IsNull(1))
	assert.InDelta(t, 1.5, pc.Value(0), 1e-9)
	rows := rec.Column(0).(*array.Int64)
	assert.Equal(t, int64(5), rows.Value(3))
}

func TestWriteAverages(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteAverages(&buf, testSnapshot(t)))

	var got []models.MacroAverages
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, "keto", got[0].DietType)
	assert.InDelta(t, 42.5, got[0].ProteinG, 1e-9)
	assert.Contains(t, buf.String(), `"Protein(g)"`)
}

func TestWriteAll(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	paths, err := WriteAll(dir, testSnapshot(t), 1)
	require.NoError(t, err)
	require.Len(t, paths, 6)
	for _, p := range paths {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.NotZero(t, info.Size(), p)
	}

	top, err := os.ReadFile(filepath.Join(dir, TopProteinFile))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(top)), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "keto,Steak,"))
	assert.True(t, strings.HasPrefix(lines[2], "vegan,Tofu Bowl,"))

	cuisine, err := os.ReadFile(filepath.Join(dir, CommonCuisineFile))
	require.NoError(t, err)
	assert.Contains(t, string(cuisine), "keto,american,2")

	var sum models.ProteinSummary
	raw, err := os.ReadFile(filepath.Join(dir, SummaryFile))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &sum))
	assert.Equal(t, "keto", sum.DietWithHighestSingleRecipe)
}
