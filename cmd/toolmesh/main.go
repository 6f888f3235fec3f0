// Command toolmesh runs tools and workflows against a set of demo tools and
// prints results, traces and handoff diagrams.
//
//	toolmesh invoke -t double -i '{"value":5}' --trace json
//	toolmesh run -w workflow.yaml -i '{"value":1}'
//	toolmesh graph --value 3
//	toolmesh tools
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
