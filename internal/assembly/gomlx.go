package assembly

import (
	"github.com/couchcryptid/nxtensor/internal/domain"
	"github.com/gomlx/gomlx/pkg/core/tensors"
)

// ToGomlx copies a stacked tensor into a gomlx tensor of the same shape for
// training code.
func ToGomlx(t domain.Tensor) *tensors.Tensor {
	return tensors.FromFlatDataAndDimensions(t.Data.Data, t.Data.Shape...)
}
