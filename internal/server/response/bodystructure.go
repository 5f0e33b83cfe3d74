package response

import "fmt"

// BuildBodyStructure reports every message as one 7bit UTF-8 text/plain
// part. The line count is estimated at 80 bytes per line.
func BuildBodyStructure(size int64) string {
	lines := (size + 79) / 80
	return fmt.Sprintf(`BODYSTRUCTURE ("TEXT" "PLAIN" ("CHARSET" "UTF-8") NIL NIL "7BIT" %d %d NIL NIL NIL NIL)`, size, lines)
}
