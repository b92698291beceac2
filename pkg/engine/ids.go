package engine

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewID allocates a collection-unique id without coordination:
// {kind}_{unix-millis}_{9 random hex chars}.
func NewID(kind string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("%s_%d_%s", kind, now.UnixMilli(), suffix)
}
