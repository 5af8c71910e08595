// Package prompt implements the interactive selection dialogs the CLI uses
// for picking a device and storage, and for confirming plan execution.
package prompt

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mtpsync/mtpsync/pkg/errors"
)

// Mocked out for unit testing.
var (
	in  io.Reader = os.Stdin
	out io.Writer = os.Stdout
)

// Choice prompts the user to pick one of n options by number. The display
// function renders the option at each index.
func Choice(message string, n int, display func(i int) string) (int, error) {
	if n == 0 {
		return 0, errors.New("no options to choose from")
	}

	fmt.Fprintf(out, "\n%s\n", message)
	for i := 0; i < n; i++ {
		fmt.Fprintf(out, "  %d. %s\n", i+1, display(i))
	}

	reader := bufio.NewReader(in)
	for {
		fmt.Fprint(out, "\nEnter choice number: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return 0, errors.WithContext(err, "read choice")
		}

		idx, err := strconv.Atoi(strings.TrimSpace(line))
		if err == nil && idx >= 1 && idx <= n {
			return idx - 1, nil
		}
		fmt.Fprintf(out, "Please enter a number between 1 and %d\n", n)
	}
}

// YesNo prompts for a yes/no answer. An empty response selects def.
func YesNo(message string, def bool) (bool, error) {
	hint := "y/N"
	if def {
		hint = "Y/n"
	}

	reader := bufio.NewReader(in)
	for {
		fmt.Fprintf(out, "%s [%s]: ", message, hint)
		line, err := reader.ReadString('\n')
		if err != nil {
			return false, errors.WithContext(err, "read answer")
		}

		switch strings.ToLower(strings.TrimSpace(line)) {
		case "":
			return def, nil
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		}
		fmt.Fprintln(out, "Please answer 'y' or 'n'")
	}
}
