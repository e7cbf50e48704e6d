package lifecycle

import (
	"fmt"

	"github.com/Pallinder/go-randomdata"
	"github.com/google/uuid"
)

// newClusterName returns a name unique within the process, per spec.md
// §4.1's naming requirement: a human-legible word plus a uniqueness
// suffix, continuing the teacher's own use of go-randomdata for generated
// display names rather than a bare random integer.
func newClusterName() string {
	return fmt.Sprintf("party-%s-%s", randomdata.SillyName(), uuid.NewString()[:8])
}
