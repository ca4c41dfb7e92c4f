package codec

import (
	"fmt"
	"sort"
	"strings"

	"github.com/adobe/zdw/errs"
	"github.com/adobe/zdw/schema"
)

// Names of the virtual columns synthesized at decode time when requested.
const (
	VirtualBasenameColumn = "virtual_export_basename"
	VirtualRowColumn      = "virtual_export_row"
)

// ignored marks a column that is decoded (to stay positioned in the
// stream) but not output.
const ignored = -1

// projection is the resolved selection-and-reorder plan applied after
// decoding.
type projection struct {
	// allColumns is the file's columns plus any requested virtual
	// columns appended at the end.
	allColumns []schema.Column
	// outputColumns maps each column of allColumns to its output slot,
	// or ignored.
	outputColumns []int
	// blanks maps output slots to requested-but-absent column names,
	// emitted as empty text columns under FillMissing.
	blanks map[int]string
	// numOutput is the total number of caller-visible columns.
	numOutput int
	// identity is set when no projection was requested: all file columns
	// in declaration order.
	identity bool
}

// resolveProjection matches the requested names against the file columns
// under the inclusion rule. Name matching is case-insensitive; for
// name-driven rules the output position of a column is the position of its
// first occurrence in the request list.
func resolveProjection(fileColumns []schema.Column, names []string, rule InclusionRule, hasProjection bool) (*projection, error) {
	if !hasProjection {
		p := &projection{
			allColumns:    fileColumns,
			outputColumns: make([]int, len(fileColumns)),
			numOutput:     len(fileColumns),
			identity:      true,
		}
		for c := range fileColumns {
			p.outputColumns[c] = c
		}

		return p, nil
	}

	// Assign each distinct requested name its output position. Duplicate
	// names fail, turn into blank columns, or are dropped depending on
	// the rule.
	requested := make(map[string]int)
	blanks := make(map[int]string)
	useVirtualBasename := false
	useVirtualRow := false
	index := 0
	for _, name := range names {
		key := strings.ToLower(name)
		if _, dup := requested[key]; !dup {
			requested[key] = index
			index++
			if rule != Exclude {
				switch key {
				case VirtualBasenameColumn:
					useVirtualBasename = true
				case VirtualRowColumn:
					useVirtualRow = true
				}
			}
			continue
		}
		switch rule {
		case FailOnInvalid:
			return nil, fmt.Errorf("%w: column %q requested more than once", errs.ErrBadRequestedColumn, name)
		case FillMissing:
			blanks[index] = name
			index++
		default:
			// SkipInvalid and Exclude drop duplicates silently.
		}
	}

	allColumns := fileColumns
	if useVirtualBasename {
		allColumns = append(append([]schema.Column(nil), allColumns...),
			schema.Column{Name: VirtualBasenameColumn, Type: schema.TypeVirtualExportBasename})
	}
	if useVirtualRow {
		if useVirtualBasename {
			allColumns = append(allColumns, schema.Column{Name: VirtualRowColumn, Type: schema.TypeVirtualExportRow})
		} else {
			allColumns = append(append([]schema.Column(nil), allColumns...),
				schema.Column{Name: VirtualRowColumn, Type: schema.TypeVirtualExportRow})
		}
	}

	p := &projection{
		allColumns:    allColumns,
		outputColumns: make([]int, len(allColumns)),
		blanks:        blanks,
	}

	if rule == Exclude {
		outIndex := 0
		for c, col := range allColumns {
			if _, excluded := requested[strings.ToLower(col.Name)]; excluded {
				p.outputColumns[c] = ignored
				continue
			}
			p.outputColumns[c] = outIndex
			outIndex++
		}
		if outIndex == 0 {
			return nil, errs.ErrNoColumnsToOutput
		}
		p.numOutput = outIndex

		return p, nil
	}

	// Name-driven inclusion: each file column takes the position of its
	// first occurrence in the request list.
	encountered := make(map[int]int) // output slot -> column index
	for c, col := range allColumns {
		slot, ok := requested[strings.ToLower(col.Name)]
		if !ok {
			p.outputColumns[c] = ignored
			continue
		}
		p.outputColumns[c] = slot
		encountered[slot] = c
		delete(requested, strings.ToLower(col.Name))
	}

	if len(requested) > 0 {
		switch rule {
		case FailOnInvalid:
			for name := range requested {
				return nil, fmt.Errorf("%w: column %q not in file", errs.ErrBadRequestedColumn, name)
			}
		case FillMissing:
			for name, slot := range requested {
				blanks[slot] = name
			}
		default: // SkipInvalid
			if len(encountered) == 0 {
				return nil, errs.ErrNoColumnsToOutput
			}
			// Absent names leave gaps in the output positions;
			// compact the encountered slots to a gapless sequence.
			slots := make([]int, 0, len(encountered))
			for slot := range encountered {
				slots = append(slots, slot)
			}
			sort.Ints(slots)
			for rank, slot := range slots {
				if slot != rank {
					p.outputColumns[encountered[slot]] = rank
				}
			}
		}
	}

	p.numOutput = len(encountered) + len(blanks)
	if p.numOutput == 0 {
		return nil, errs.ErrNoColumnsToOutput
	}

	return p, nil
}

// order builds the arrival-position permutation consumed by
// stream.NewOrderedWriter: one entry per decoded column, then one per blank
// column.
func (p *projection) order() []int {
	order := append([]int(nil), p.outputColumns...)
	blankSlots := make([]int, 0, len(p.blanks))
	for slot := range p.blanks {
		blankSlots = append(blankSlots, slot)
	}
	sort.Ints(blankSlots)
	for _, slot := range blankSlots {
		order = append(order, slot)
	}

	return order
}

// blankArrivals returns the blank slots in the arrival order used by
// order().
func (p *projection) blankArrivals() []int {
	slots := make([]int, 0, len(p.blanks))
	for slot := range p.blanks {
		slots = append(slots, slot)
	}
	sort.Ints(slots)

	return slots
}

// outputNames lists the caller-visible column names in output order.
func (p *projection) outputNames() []string {
	names := make([]string, p.numOutput)
	for c, slot := range p.outputColumns {
		if slot != ignored {
			names[slot] = p.allColumns[c].Name
		}
	}
	for slot, name := range p.blanks {
		names[slot] = name
	}

	return names
}

// outputSchema lists the caller-visible columns in output order; blank
// columns appear as generic text.
func (p *projection) outputSchema() []schema.Column {
	cols := make([]schema.Column, p.numOutput)
	for c, slot := range p.outputColumns {
		if slot != ignored {
			cols[slot] = p.allColumns[c]
		}
	}
	for slot, name := range p.blanks {
		cols[slot] = schema.Column{Name: name, Type: schema.TypeText}
	}

	return cols
}
