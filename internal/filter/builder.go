package filter

import (
	"strings"

	"github.com/mohammed-shakir/sos-core/internal/temporal"
)

// Builder carries the settings filter construction depends on. Both the KVP
// and the REST decoder share one Builder so they resolve defaults the same
// way.
type Builder struct {
	Parser      temporal.Parser
	StorageSRID int
}

func NewBuilder(storageSRID int) Builder {
	return Builder{StorageSRID: storageSRID}
}

// ParseSpatialFilter builds a BBOX filter falling back to the storage SRID.
func (b Builder) ParseSpatialFilter(param string, tokens []string) (SpatialFilter, error) {
	return NewBBoxFilter(param, tokens, b.StorageSRID)
}

// SplitTokens splits a comma separated parameter value, trimming blanks.
func SplitTokens(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
