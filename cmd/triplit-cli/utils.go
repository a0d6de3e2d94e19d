// cmd/triplit-cli/utils.go

package main

import (
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"strings"

	"github.com/fatih/color"
	jsoniter "github.com/json-iterator/go"
	"github.com/olekukonko/tablewriter"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	colorOK     = color.New(color.FgGreen, color.Bold).SprintFunc()
	colorErr    = color.New(color.FgRed, color.Bold).SprintFunc()
	colorPrompt = color.New(color.FgMagenta).SprintFunc()
	colorInfo   = color.New(color.FgBlue).SprintFunc()
)

// getCommandAndRawArgs splits input into its command and the remaining
// arguments, checking multi-word commands longest-first so "collection
// create" isn't mistaken for "collection".
func getCommandAndRawArgs(input string, multiWord []string) (string, string) {
	for _, cmd := range multiWord {
		if input == cmd || strings.HasPrefix(input, cmd+" ") {
			return cmd, strings.TrimSpace(input[len(cmd):])
		}
	}
	parts := strings.SplitN(input, " ", 2)
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], strings.TrimSpace(parts[1])
}

func clearScreen() {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.Command("cmd", "/c", "cls")
	} else {
		cmd = exec.Command("clear")
	}
	cmd.Stdout = os.Stdout
	_ = cmd.Run()
}

// printDocs renders a slice of documents as a table, column set drawn
// from every key present across the slice.
func printDocs(docs []map[string]any) {
	if len(docs) == 0 {
		fmt.Println(colorInfo("(no results)"))
		return
	}
	headerSet := make(map[string]bool)
	for _, doc := range docs {
		for k := range doc {
			headerSet[k] = true
		}
	}
	headers := make([]string, 0, len(headerSet))
	for k := range headerSet {
		headers = append(headers, k)
	}
	sort.Strings(headers)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(headers)
	table.SetAutoWrapText(false)
	for _, doc := range docs {
		row := make([]string, len(headers))
		for i, h := range headers {
			row[i] = renderCell(doc[h])
		}
		table.Append(row)
	}
	table.Render()
}

func printDoc(doc map[string]any) {
	printDocs([]map[string]any{doc})
}

func renderCell(v any) string {
	switch val := v.(type) {
	case nil:
		return "(nil)"
	case map[string]any, []any:
		b, _ := json.MarshalIndent(val, "", "  ")
		return string(b)
	default:
		return fmt.Sprintf("%v", val)
	}
}
