package export

import (
	"io"

	"dietinsights/internal/engine"

	"github.com/apache/arrow/go/v18/arrow"
	"github.com/apache/arrow/go/v18/arrow/array"
	"github.com/apache/arrow/go/v18/arrow/ipc"
	"github.com/apache/arrow/go/v18/arrow/memory"
)

var snapshotSchema = arrow.NewSchema([]arrow.Field{
	{Name: "row", Type: arrow.PrimitiveTypes.Int64},
	{Name: "diet_type", Type: arrow.BinaryTypes.String},
	{Name: "recipe_name", Type: arrow.BinaryTypes.String},
	{Name: "cuisine_type", Type: arrow.BinaryTypes.String},
	{Name: "protein_g", Type: arrow.PrimitiveTypes.Float64},
	{Name: "carbs_g", Type: arrow.PrimitiveTypes.Float64},
	{Name: "fat_g", Type: arrow.PrimitiveTypes.Float64},
	{Name: "protein_to_carbs", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "carbs_to_fat", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
}, nil)

const arrowBatchRows = 64 * 1024

// WriteArrow writes the snapshot as an Arrow IPC file in batches of at most
// arrowBatchRows records.
func WriteArrow(w io.Writer, snap *engine.Snapshot) error {
	mem := memory.NewGoAllocator()
	fw, err := ipc.NewFileWriter(w, ipc.WithSchema(snapshotSchema), ipc.WithAllocator(mem))
	if err != nil {
		return err
	}

	b := array.NewRecordBuilder(mem, snapshotSchema)
	defer b.Release()

	rows := b.Field(0).(*array.Int64Builder)
	diets := b.Field(1).(*array.StringBuilder)
	names := b.Field(2).(*array.StringBuilder)
	cuisines := b.Field(3).(*array.StringBuilder)
	protein := b.Field(4).(*array.Float64Builder)
	carbs := b.Field(5).(*array.Float64Builder)
	fat := b.Field(6).(*array.Float64Builder)
	pcRatio := b.Field(7).(*array.Float64Builder)
	cfRatio := b.Field(8).(*array.Float64Builder)

	appendRatio := func(fb *array.Float64Builder, v *float64) {
		if v == nil {
			fb.AppendNull()
			return
		}
		fb.Append(*v)
	}

	flush := func() error {
		rec := b.NewRecord()
		defer rec.Release()
		return fw.Write(rec)
	}

	for i := range snap.Records {
		r := &snap.Records[i]
		rows.Append(int64(r.Row))
		diets.Append(r.DietType)
		names.Append(r.RecipeName)
		cuisines.Append(r.CuisineType)
		protein.Append(r.ProteinG)
		carbs.Append(r.CarbsG)
		fat.Append(r.FatG)
		pc, cf := engine.Ratios(r)
		appendRatio(pcRatio, pc)
		appendRatio(cfRatio, cf)

		if (i+1)%arrowBatchRows == 0 {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if len(snap.Records)%arrowBatchRows != 0 {
		if err := flush(); err != nil {
			return err
		}
	}
	return fw.Close()
}
