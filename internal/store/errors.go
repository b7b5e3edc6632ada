package store

import (
	"github.com/xtxerr/prodstats/internal/errors"
)

var ErrNotLoaded = errors.ErrStoreNotLoaded
