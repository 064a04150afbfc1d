package version

import (
	"strings"

	"github.com/fatih/color"
)

// Build metadata for the lumen CLI. GitCommit and BuildDate are initialized
// to constant strings and can be set at build time with -ldflags -X;
// Version's default is computed by a function call, so -X does not replace it.
var (
	// Version is the semantic version of the CLI.
	Version = colorized("0", "1", "0") + "-dev"

	// GitCommit is an optional git commit hash.
	GitCommit = ""

	// BuildDate is an optional build date in ISO-8601.
	BuildDate = ""
)

// segmentPalette colors major.minor.patch segments in order.
var segmentPalette = []*color.Color{
	color.New(color.FgYellow, color.Bold),
	color.New(color.FgGreen, color.Bold),
	color.New(color.FgBlue, color.Bold),
}

func colorized(segments ...string) string {
	parts := make([]string, len(segments))
	for i, s := range segments {
		parts[i] = segmentPalette[i%len(segmentPalette)].Sprint(s)
	}
	return strings.Join(parts, ".")
}
