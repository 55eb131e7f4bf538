package domain

import (
	"math"
	"time"
)

// Aggregation names the time-step granularity of an output dataset.
type Aggregation string

const (
	AggregationDaily   Aggregation = "daily"
	AggregationMonthly Aggregation = "monthly"
)

// StepWritten is published after a time-step has been appended to an output file.
type StepWritten struct {
	OutFile     string      `json:"out_file"`
	Period      time.Time   `json:"period"`
	Aggregation Aggregation `json:"aggregation"`
	ObsType     ObsType     `json:"obs_type"`
	NLat        int         `json:"nlat"`
	NLon        int         `json:"nlon"`
	ValidCells  int         `json:"valid_cells"`
	MaxPrcp     float64     `json:"max_prcp,omitempty"`
	SourceDays  int         `json:"source_days"`
	WrittenAt   time.Time   `json:"written_at"`
}

// NewStepWritten summarizes a written grid.
func NewStepWritten(outFile string, agg Aggregation, g Grid, sourceDays int) StepWritten {
	maxPrcp := math.Inf(-1)
	for _, v := range g.Values {
		if f := float64(v); !math.IsNaN(f) && f > maxPrcp {
			maxPrcp = f
		}
	}
	if math.IsInf(maxPrcp, -1) {
		maxPrcp = 0
	}
	return StepWritten{
		OutFile:     outFile,
		Period:      g.Time,
		Aggregation: agg,
		ObsType:     g.ObsType,
		NLat:        g.NLat(),
		NLon:        g.NLon(),
		ValidCells:  g.ValidCells(),
		MaxPrcp:     maxPrcp,
		SourceDays:  sourceDays,
		WrittenAt:   clock.Now().UTC(),
	}
}

// Progress reports how far an ingest run has advanced.
type Progress struct {
	Aggregation Aggregation `json:"aggregation"`
	Written     int         `json:"written"`
	Total       int         `json:"total"`
	LastPeriod  string      `json:"last_period,omitempty"`
}
