package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/jessevdk/go-flags"
)

// Options is the root command that groups sub-commands. The struct tags are
// interpreted by github.com/jessevdk/go-flags.
type Options struct {
	Config  string `short:"c" long:"config" description:"runtime config file (YAML or TOML)"`
	Verbose bool   `short:"v" long:"verbose" description:"log at debug level"`

	Invoke InvokeCmd `command:"invoke" description:"Invoke a single tool"`
	Run    RunCmd    `command:"run" description:"Run a workflow file"`
	Graph  GraphCmd  `command:"graph" description:"Run the demo pipeline and print handoff diagrams"`
	Tools  ToolsCmd  `command:"tools" description:"List the registered tools and agents"`
}

// run parses args and executes the selected command.
func run(args []string, out, errOut io.Writer) error {
	opts := &Options{}

	a := &app{opts: opts, out: out, errOut: errOut}
	opts.Invoke.app = a
	opts.Run.app = a
	opts.Graph.app = a
	opts.Tools.app = a

	parser := flags.NewParser(opts, flags.HelpFlag|flags.PassDoubleDash)

	if _, err := parser.ParseArgs(args); err != nil {
		var ferr *flags.Error
		if errors.As(err, &ferr) && ferr.Type == flags.ErrHelp {
			fmt.Fprintln(out, ferr.Message)
			return nil
		}

		return err
	}

	return nil
}
