// Package domain models CMORPH precipitation grids and the rules for turning
// them into a NetCDF time series.
//
// # Data Source
//
// CMORPH (the NOAA CPC MORPHing technique) publishes global satellite-derived
// precipitation estimates at https://ftp.cpc.ncep.noaa.gov/precip/CMORPH_V1.0/.
// Two daily products are ingested:
//
//	raw       satellite-only estimates    RAW/0.25deg-DLY_00Z/YYYY/YYYYMM/*.gz
//	adjusted  bias-corrected against gauges (CRT)  CRT/0.25deg-DLY_00Z/YYYY/YYYYMM/*.bz2
//
// # Binary Layout
//
// Each daily file holds one 2D array of float32 values with no header, laid out
// as described by a GrADS control file (see [Descriptor]):
//
//	XDEF 1440 LINEAR    0.125  0.25    longitude, degrees east, 0..360
//	YDEF  480 LINEAR  -59.875  0.25    latitude, south to north
//	UNDEF -999.0                       missing value sentinel
//
// Rows are latitudes, columns longitudes, so a day is 1440*480*4 bytes.
// Byte order comes from the control file OPTIONS line (little_endian for V1.0).
// The sentinel is replaced with NaN on decode.
//
// # Output Conventions
//
// Time is stored as integer days since 1900-01-01 (gregorian calendar).
// Monthly time-steps are stamped with the first day of the month.
// Precipitation is in millimetres: the daily total for daily output, and the
// mean (or sum) of daily totals for monthly output.
//
// # CONUS
//
// The contiguous United States window is 23N..50N, 128W..65W, which is
// 232..295 degrees east on the CMORPH longitude axis. Bounds are inclusive.
package domain
