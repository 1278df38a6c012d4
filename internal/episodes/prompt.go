package episodes

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"

	"github.com/alvarorichard/9anime-dl/internal/util"
)

// Ask prompts for an episode selection until a valid one is entered.
func Ask(total int) ([]int, error) {
	// promptui misbehaves on windows consoles and on piped stdin
	if runtime.GOOS == "windows" || !isatty.IsTerminal(os.Stdin.Fd()) {
		return AskFrom(os.Stdin, os.Stdout, total)
	}

	label := util.PromptStyle.Render("Episodes (Range with '-')") + " " +
		util.DefaultStyle.Render("["+DefaultLabel(total)+"]")

	prompt := promptui.Prompt{
		Label: label,
		Validate: func(input string) error {
			_, err := Parse(stripSpaces(input), total)
			return err
		},
	}

	input, err := prompt.Run()
	if err != nil {
		return nil, errors.Wrap(err, "episode prompt failed")
	}
	selected, err := Parse(stripSpaces(input), total)
	if err != nil {
		return nil, err
	}
	fmt.Println(util.Success(fmt.Sprintf("%d episode(s) selected", len(selected))))
	return selected, nil
}

// AskFrom reads selections line by line from r, re-prompting on out until a
// line parses.
func AskFrom(r io.Reader, out io.Writer, total int) ([]int, error) {
	reader := bufio.NewReader(r)
	for {
		fmt.Fprintf(out, "%s %s\n>> ",
			util.PromptStyle.Render("Episodes (Range with '-')"),
			util.DefaultStyle.Render("["+DefaultLabel(total)+"]"))

		line, readErr := reader.ReadString('\n')
		if readErr != nil && (readErr != io.EOF || line == "") {
			return nil, errors.Wrap(readErr, "failed to read episode selection")
		}

		selected, err := Parse(stripSpaces(line), total)
		fmt.Fprintln(out)
		if err == nil {
			return selected, nil
		}
		fmt.Fprintf(out, "Invalid selection: %v\n", err)
		if readErr == io.EOF {
			return nil, err
		}
	}
}

func stripSpaces(s string) string {
	return strings.Join(strings.Fields(s), "")
}
