// Adapted from the teacher's pkg/utils/pretty helpers: log-friendly,
// length-bounded renderings of slices and maps, used here to keep
// reconciler/admission log lines from blowing up on a cluster with a full
// user list.
package obs

import (
	"fmt"
	"strings"
)

// Slice truncates s after maxItems entries so a log line stays bounded.
func Slice[T any](s []T, maxItems int) string {
	var sb strings.Builder
	for i, elem := range s {
		if i > maxItems-1 {
			fmt.Fprintf(&sb, " and %d other(s)", len(s)-i)
			break
		} else if i > 0 {
			fmt.Fprint(&sb, ", ")
		}
		fmt.Fprintf(&sb, "%v", elem)
	}
	return sb.String()
}
