// Command checkin scans a file or directory, resolves its tagged
// dependencies against a tag catalog, assembles its content-addressed
// object graph, and writes a lock file recording the resolution.
package main

import (
	"os"

	"tangram.systems/checkin/cmd/checkin"
)

func main() {
	os.Exit(cmd.Execute())
}
