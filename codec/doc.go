// Package codec implements the ZDW block writer, block reader and file
// drivers.
//
// # Writing
//
// Writer.Convert runs two passes per block over the source rows. The first
// pass builds the block's string dictionary and per-column min/max
// statistics; the second emits the block header and the encoded row stream.
// Rows re-read for the second pass come from rewinding a seekable source or
// from a compressed spill file for streamed input. A block closes early
// when the process memory budget is exhausted; the file always ends with a
// block carrying the final flag, even for empty input.
//
// # Reading
//
// Reader walks the block chain with a small state machine, yielding one
// shaped row per NextRow call, or streaming every row into a
// stream.RowWriter via Unconvert. Projection (selection, reordering, fills
// and exclusions) is resolved once against the file header; decoding always
// consumes every used column to stay positioned in the stream, and the
// shaping layer drops or places values afterwards. Test and Stats provide
// the integrity-scan and statistics-only modes.
//
// # Encoding scheme
//
// Values are stored per column as unsigned integers: dictionary offsets for
// text-like types, baselined magnitudes for integers and CHAR. Each row
// carries a bit array flagging which used columns changed since the
// previous row; unchanged columns contribute no bytes. A stored value of
// zero always decodes to the column type's default, which is why baselines
// are chosen so the smallest real value encodes as one.
package codec
