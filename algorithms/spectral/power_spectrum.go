package spectral

import (
	"math"
)

// DBParams controls power-to-decibel conversion.
type DBParams struct {
	Ref   float64 `json:"ref"`    // reference power mapped to 0 dB (default 1)
	Amin  float64 `json:"amin"`   // floor applied before the log (default 1e-10)
	TopDB float64 `json:"top_db"` // dynamic range kept below the peak; <= 0 disables
}

// DefaultDBParams returns ref 1, amin 1e-10 and an 80 dB range.
func DefaultDBParams() DBParams {
	return DBParams{Ref: 1.0, Amin: 1e-10, TopDB: 80.0}
}

// PowerToDB returns a decibel copy of a [row][col] power matrix.
// The top_db clamp is taken against the peak of the whole matrix, not per row.
func PowerToDB(power [][]float64, params DBParams) [][]float64 {
	if params.Amin <= 0 {
		params.Amin = 1e-10
	}
	if params.Ref <= 0 {
		params.Ref = 1.0
	}

	refDB := 10 * math.Log10(math.Max(params.Amin, params.Ref))
	peak := math.Inf(-1)

	out := make([][]float64, len(power))
	for i, row := range power {
		out[i] = make([]float64, len(row))
		for j, p := range row {
			db := 10*math.Log10(math.Max(params.Amin, p)) - refDB
			out[i][j] = db
			if db > peak {
				peak = db
			}
		}
	}

	if params.TopDB > 0 && !math.IsInf(peak, -1) {
		floor := peak - params.TopDB
		for _, row := range out {
			for j, db := range row {
				if db < floor {
					row[j] = floor
				}
			}
		}
	}

	return out
}
