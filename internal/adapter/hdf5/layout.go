// Package hdf5 persists blocks, channels and tensors as HDF5 arrays with
// CSV side tables.
//
// Layout under <root>/<extraction id>:
//
//	blocks/<variable>/<period>/<variable>_<label>_<period>.{h5,csv}
//	channels/<variable>/<variable>_<split>.{h5,csv}
//	channels/<variable>/<variable>_<split>_stats.csv
//	tensors/<tensor id>/<tensor id>_<split>.{h5,csv}
//	tensors/<tensor id>/<tensor id>_<split>_stats.csv
package hdf5

import (
	"path/filepath"
	"strings"

	"github.com/couchcryptid/nxtensor/internal/domain"
)

const (
	blocksDir   = "blocks"
	channelsDir = "channels"
	tensorsDir  = "tensors"

	arrayExt    = ".h5"
	metadataExt = ".csv"
	statsSuffix = "_stats.csv"
)

// Layout maps artifacts to file names. Paths returned are without extension.
type Layout struct {
	Root string
}

func join(parts ...string) string {
	return strings.Join(parts, domain.NameSeparator)
}

// BlockBase is the path prefix of a block.
func (l Layout) BlockBase(k domain.BlockKey) string {
	p := k.Period.String()
	return filepath.Join(l.Root, blocksDir, k.Variable, p, join(k.Variable, k.Label, p))
}

// BlockDir holds the period directories of a variable.
func (l Layout) BlockDir(variable string) string {
	return filepath.Join(l.Root, blocksDir, variable)
}

// ChannelBase is the path prefix of one split of a channel.
func (l Layout) ChannelBase(variable, split string) string {
	return filepath.Join(l.Root, channelsDir, variable, join(variable, split))
}

// TensorBase is the path prefix of one split of a tensor.
func (l Layout) TensorBase(id, split string) string {
	return filepath.Join(l.Root, tensorsDir, id, join(id, split))
}

// TensorDir holds every split of a tensor.
func (l Layout) TensorDir(id string) string {
	return filepath.Join(l.Root, tensorsDir, id)
}

// parseBlockFile recovers the label from a block file name.
func parseBlockFile(name, variable string, period domain.Period) (string, bool) {
	if !strings.HasSuffix(name, arrayExt) {
		return "", false
	}
	stem := strings.TrimSuffix(name, arrayExt)
	prefix := variable + domain.NameSeparator
	suffix := domain.NameSeparator + period.String()
	if !strings.HasPrefix(stem, prefix) || !strings.HasSuffix(stem, suffix) || len(stem) <= len(prefix)+len(suffix) {
		return "", false
	}
	return stem[len(prefix) : len(stem)-len(suffix)], true
}
