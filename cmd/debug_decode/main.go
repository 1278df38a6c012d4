// Command debug_decode unpacks a saved player page, or a bare packed script,
// and prints the manifest URL. Useful when the site changes its markup.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/alvarorichard/9anime-dl/internal/unpacker"
	"github.com/alvarorichard/9anime-dl/internal/util"
)

func main() {
	raw := flag.Bool("raw", false, "input is a packed script, not an HTML page")
	dump := flag.Bool("dump", false, "print the unpacked source instead of the manifest URL")
	flag.Parse()

	in := io.Reader(os.Stdin)
	if flag.NArg() > 0 {
		f, err := os.Open(flag.Arg(0))
		if err != nil {
			fmt.Fprintln(os.Stderr, util.ErrorHandler(err))
			os.Exit(1)
		}
		defer f.Close()
		in = f
	}

	out, err := decode(in, *raw, *dump)
	if err != nil {
		fmt.Fprintln(os.Stderr, util.ErrorHandler(err))
		os.Exit(1)
	}
	fmt.Println(out)
}

func decode(in io.Reader, raw, dump bool) (string, error) {
	if !raw && !dump {
		return unpacker.ManifestFromHTML(in)
	}

	var scripts []string
	if raw {
		data, err := io.ReadAll(in)
		if err != nil {
			return "", errors.Wrap(err, "failed to read input")
		}
		scripts = []string{string(data)}
	} else {
		found, err := unpacker.ScriptsFromHTML(in, unpacker.ScriptSelector)
		if err != nil {
			return "", err
		}
		scripts = found
	}

	var unpacked []string
	for _, script := range scripts {
		if !unpacker.IsPacked(script) {
			continue
		}
		source, err := unpacker.Unpack(script)
		if err != nil {
			util.Debugf("skipping script: %v", err)
			continue
		}
		if !dump {
			return unpacker.ExtractManifest(source)
		}
		unpacked = append(unpacked, source)
	}
	if len(unpacked) == 0 {
		return "", unpacker.ErrNotPacked
	}
	return strings.Join(unpacked, "\n\n"), nil
}
