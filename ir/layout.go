package ir

// IndexKind tells how one getelementptr index is scaled.
type IndexKind uint8

// Index kinds.
const (
	// IndexArray multiplies a signed index by the element allocation size.
	// Pointer indexing uses the same rule.
	IndexArray IndexKind = iota
	// IndexStruct selects a field and adds its precomputed byte offset.
	IndexStruct
)

// Step is one statically known level of an address computation.
type Step struct {
	Kind IndexKind
	// ElementSize is the allocation size in bytes of the indexed element
	// for array and pointer steps.
	ElementSize uint64
	// FieldOffsets holds the byte offset of each field for struct steps.
	FieldOffsets []uint64
}

// ArrayStep returns a step over elements of the given allocation size.
func ArrayStep(elementSize uint64) Step {
	return Step{Kind: IndexArray, ElementSize: elementSize}
}

// StructStep returns a step into a struct with the given field offsets.
func StructStep(offsets ...uint64) Step {
	return Step{Kind: IndexStruct, FieldOffsets: offsets}
}

// StructLayout computes natural-alignment field offsets for a struct whose
// fields have the given types, and the padded size of the whole struct.
func StructLayout(fields ...Type) (offsets []uint64, size uint64) {
	offsets = make([]uint64, len(fields))
	var offset, maxAlign uint64 = 0, 1
	for i, f := range fields {
		align := f.AllocSize()
		if align == 0 {
			align = 1
		}
		if align > maxAlign {
			maxAlign = align
		}
		offset = alignUp(offset, align)
		offsets[i] = offset
		offset += f.AllocSize()
	}
	return offsets, alignUp(offset, maxAlign)
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) / align * align
}
