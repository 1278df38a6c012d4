package version

import (
	"fmt"
	"io"
	"runtime"
)

// Version is overridden at build time with -ldflags "-X ...version.Version=".
var Version = "0.3.0"

// String is the text printed by --version.
func String() string {
	return fmt.Sprintf("9anime-dl v%s (%s/%s)", Version, runtime.GOOS, runtime.GOARCH)
}

func ShowVersion(w io.Writer) {
	fmt.Fprintln(w, String())
}
