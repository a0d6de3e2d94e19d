// cmd/triplit-cli/cli.go

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/itoxiq/triplit"
)

// errExit is returned by the "exit" command to unwind mainLoop cleanly.
var errExit = errors.New("exit")

type command struct {
	help    string
	handler func(c *cli, args string) error
}

// cli is the REPL driving an in-process triplit.DB.
type cli struct {
	db                *triplit.DB
	ctx               context.Context
	rl                *readline.Instance
	rlConfig          *readline.Config
	currentCollection string
	commands          map[string]command
	multiWordCommands []string
}

func newCLI(db *triplit.DB, ctx context.Context) *cli {
	c := &cli{db: db, ctx: ctx}
	c.commands = c.getCommands()

	var mw []string
	for cmd := range c.commands {
		if strings.Contains(cmd, " ") {
			mw = append(mw, cmd)
		}
	}
	sort.Slice(mw, func(i, j int) bool { return len(mw[i]) > len(mw[j]) })
	c.multiWordCommands = mw
	return c
}

func (c *cli) run() error {
	c.rlConfig = &readline.Config{
		Prompt:          "> ",
		HistoryFile:     "/tmp/triplit_cli_history.tmp",
		AutoComplete:    c.getCompleter(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	}
	var err error
	c.rl, err = readline.NewEx(c.rlConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize readline: %w", err)
	}
	defer c.rl.Close()

	fmt.Println(colorInfo("triplit-cli ready. Type 'help' for commands."))
	return c.mainLoop()
}

func (c *cli) mainLoop() error {
	for {
		prompt := "> "
		if c.currentCollection != "" {
			prompt = c.currentCollection + "> "
		}
		c.rl.SetPrompt(colorPrompt(prompt))

		input, err := c.rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				if len(input) == 0 {
					break
				}
				continue
			} else if errors.Is(err, io.EOF) {
				break
			}
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		cmd, args := getCommandAndRawArgs(input, c.multiWordCommands)
		handler, found := c.commands[cmd]
		if !found {
			fmt.Println(colorErr(fmt.Sprintf("Error: unknown command %q. Type 'help' for commands.", cmd)))
			continue
		}

		start := time.Now()
		if err := handler.handler(c, args); err != nil {
			if errors.Is(err, errExit) || errors.Is(err, io.EOF) {
				break
			}
			fmt.Println(colorErr("Command failed: ", err))
		}
		if cmd != "clear" && cmd != "help" {
			fmt.Println(colorInfo("Request time: ", time.Since(start).Round(time.Millisecond)))
		}
	}
	fmt.Println(colorInfo("\nExiting triplit-cli. Goodbye!"))
	return nil
}
