package pipeline

import (
	"github.com/couchcryptid/cmorph-ingest/internal/domain"
)

// SubsetTransformer implements Transformer by optionally cropping grids to a
// bounding box.
type SubsetTransformer struct {
	box *domain.BoundingBox
}

// NewTransformer creates a SubsetTransformer. Pass a nil box to keep the full grid.
func NewTransformer(box *domain.BoundingBox) *SubsetTransformer {
	return &SubsetTransformer{box: box}
}

func (t *SubsetTransformer) Transform(g domain.Grid) (domain.Grid, error) {
	if t.box == nil {
		if err := g.Validate(); err != nil {
			return domain.Grid{}, err
		}
		return g, nil
	}
	return domain.Subset(g, *t.box)
}
