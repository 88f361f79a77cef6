// Package cli is a line based shell over a mounted index.
package cli

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"go-btindex/pkg/bptree"
	"go-btindex/util/helpers"

	"github.com/fatih/color"
	"github.com/pkg/errors"
)

var (
	errColor    = color.New(color.FgRed)
	okColor     = color.New(color.FgGreen)
	promptColor = color.New(color.FgCyan, color.Bold)
)

type CLI struct {
	scanner *bufio.Scanner
	out     io.Writer
	tree    *bptree.BPlusTree
	keySize int
	valSize int

	reports map[string]func() string
}

func New(s *bufio.Scanner, out io.Writer, t *bptree.BPlusTree, keySize, valueSize int) *CLI {
	return &CLI{
		scanner: s,
		out:     out,
		tree:    t,
		keySize: keySize,
		valSize: valueSize,
		reports: map[string]func() string{},
	}
}

// AddReport registers an extra line printed by the stats command.
func (c *CLI) AddReport(name string, fn func() string) {
	c.reports[name] = fn
}

// Start reads commands until exit or end of input.
func (c *CLI) Start() {
	c.printHelp()
	c.printPrompt()
	for c.scanner.Scan() {
		if !c.processInput(c.scanner.Text()) {
			return
		}
		c.printPrompt()
	}
}

func (c *CLI) printHelp() {
	fmt.Fprintf(c.out, `
B+ Tree index shell (key %dB, value %dB, leaf capacity %d, interior capacity %d)

Available Commands:
  INSERT <key> <val>            Insert a new key-value pair
  LOOKUP <key>                  Print the value stored for key
  UPDATE <key> <val>            Replace the value of an existing key
  DELETE <key>                  Remove a key (not supported)
  DISPLAY [depth|dot|sorted]    Print the tree
  SANITY                        Check the tree and free list
  STATS                         Print tree and store statistics
  HELP                          Print this message
  EXIT                          Terminate this session

`, c.keySize, c.valSize, c.tree.LeafCapacity(), c.tree.InteriorCapacity())
}

func (c *CLI) printPrompt() {
	promptColor.Fprint(c.out, "> ")
}

// processInput runs one command line and reports whether the shell should
// keep reading.
func (c *CLI) processInput(line string) bool {
	fields := strings.Fields(line)
	if len(fields) < 1 {
		return true
	}

	command := strings.ToLower(fields[0])
	switch command {
	default:
		errColor.Fprintf(c.out, "Unknown command \"%s\"\n", command)
	case "insert", "set":
		c.processInsertCommand(fields[1:])
	case "lookup", "get":
		c.processLookupCommand(fields[1:])
	case "update":
		c.processUpdateCommand(fields[1:])
	case "delete", "del":
		c.processDeleteCommand(fields[1:])
	case "display":
		c.processDisplayCommand(fields[1:])
	case "sanity":
		c.processSanityCommand()
	case "stats":
		c.processStatsCommand()
	case "help":
		c.printHelp()
	case "exit", "quit":
		return false
	}
	return true
}

func (c *CLI) processInsertCommand(args []string) {
	if len(args) != 2 {
		fmt.Fprintln(c.out, "Usage: INSERT <key> <value>")
		return
	}

	key, val, err := c.pair(args[0], args[1])
	if err == nil {
		err = c.tree.Insert(key, val)
	}
	c.result(err)
}

func (c *CLI) processLookupCommand(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: LOOKUP <key>")
		return
	}

	key, err := c.key(args[0])
	if err != nil {
		c.result(err)
		return
	}

	val, err := c.tree.Lookup(key)
	if err != nil {
		c.result(err)
		return
	}
	fmt.Fprintln(c.out, helpers.Render(val))
}

func (c *CLI) processUpdateCommand(args []string) {
	if len(args) != 2 {
		fmt.Fprintln(c.out, "Usage: UPDATE <key> <value>")
		return
	}

	key, val, err := c.pair(args[0], args[1])
	if err == nil {
		err = c.tree.Update(key, val)
	}
	c.result(err)
}

func (c *CLI) processDeleteCommand(args []string) {
	if len(args) != 1 {
		fmt.Fprintln(c.out, "Usage: DELETE <key>")
		return
	}

	key, err := c.key(args[0])
	if err == nil {
		err = c.tree.Delete(key)
	}
	c.result(err)
}

func (c *CLI) processDisplayCommand(args []string) {
	if len(args) > 1 {
		fmt.Fprintln(c.out, "Usage: DISPLAY [depth|dot|sorted]")
		return
	}

	mode := bptree.DisplayDepth
	if len(args) == 1 {
		var err error
		if mode, err = bptree.ParseDisplayMode(args[0]); err != nil {
			c.result(err)
			return
		}
	}

	if err := c.tree.Display(c.out, mode); err != nil {
		c.result(err)
	}
}

func (c *CLI) processSanityCommand() {
	violations, err := c.tree.SanityCheck()
	if err != nil {
		c.result(err)
		return
	}

	if len(violations) == 0 {
		okColor.Fprintln(c.out, "OK")
		return
	}
	for _, v := range violations {
		errColor.Fprintln(c.out, v.String())
	}
}

func (c *CLI) processStatsCommand() {
	st, err := c.tree.Stats()
	if err != nil {
		c.result(err)
		return
	}
	fmt.Fprintln(c.out, "tree:", st)

	names := make([]string, 0, len(c.reports))
	for name := range c.reports {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(c.out, "%s: %s\n", name, c.reports[name]())
	}
}

func (c *CLI) result(err error) {
	if err != nil {
		errColor.Fprintln(c.out, "Error:", err)
		return
	}
	okColor.Fprintln(c.out, "OK")
}

func (c *CLI) key(s string) ([]byte, error) {
	key, ok := helpers.Pad([]byte(s), c.keySize)
	if !ok {
		return nil, errors.Errorf("key longer than %d bytes", c.keySize)
	}
	return key, nil
}

func (c *CLI) pair(k, v string) ([]byte, []byte, error) {
	key, err := c.key(k)
	if err != nil {
		return nil, nil, err
	}

	val, ok := helpers.Pad([]byte(v), c.valSize)
	if !ok {
		return nil, nil, errors.Errorf("value longer than %d bytes", c.valSize)
	}
	return key, val, nil
}
