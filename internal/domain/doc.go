// Package domain models the events, variables and arrays that flow through
// the extraction and assembly pipeline.
//
// # Events and Periods
//
// A label (e.g. "cyclone") owns a table of events. Each event is a latitude,
// a longitude and a timestamp expressed as separate fields:
//
//	year > month > day > hour > minute > second > millisecond > microsecond
//
// Gridded datasets are stored one file per time span (typically one file per
// month). That span is the variable's period resolution. Truncating an event
// timestamp at the period resolution yields its [Period]; every event of one
// period can be selected from the same opened file. Periods sort
// lexicographically and render as their fields joined by "_" (e.g. "2000_10").
//
// Templates use Python-style placeholders. The two-digit keys month2d, day2d
// and hour2d are derived from the matching fields:
//
//	path: /data/ERA5/{year}/msl.{year}{month2d}.nc
//	date: {year}-{month2d}-{day2d}T{hour2d}
//
// # Variables
//
// Variables form a closed set:
//
//   - [DirectVariable]: one gridded array, read at the event time.
//   - [LeveledVariable]: a gridded array at a fixed vertical level.
//   - [DerivedVariable]: an RPN expression over other variables, e.g.
//     "u10 2 pow v10 2 pow + sqrt" for 10 m wind speed.
//
// Derived variables may reference other derived variables; the references
// form a DAG that is checked for cycles when the descriptor is loaded.
//
// # Coordinates
//
// Each gridded axis declares a format, a resolution and a decimal precision.
// Event coordinates are snapped to the grid with
//
//	round(round(v / resolution) * resolution, decimals)
//
// Longitudes declared as -180..180 by a label are converted to 0..360 when
// the variable uses that convention, and the other way round.
//
// # Arrays
//
// Extracted regions are (height, width) arrays with latitude rows and
// longitude columns, in the axis order of the source file. Blocks and
// channels add a leading image axis; tensors add a trailing channel axis.
// Every array travels with a [Metadata] table holding exactly one row per
// image, and all reordering (splits, shuffles) is applied to both at once.
//
// # Errors
//
// Failures are reported as [ConfigurationError], [ExtractionError],
// [ExpressionError] or [AssemblyError]. None of them is retried; the caller
// aborts the variable or split that failed.
package domain
