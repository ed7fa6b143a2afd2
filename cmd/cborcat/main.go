// Command cborcat renders CBOR data as RFC diagnostic notation or JSON,
// and can convert JSON back to CBOR. It is a thin wrapper over the
// runtime package's diagnostic and JSON-interop helpers, grounded on
// cborgen/main.go's kong CLI shape.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"
	rt "github.com/synadia-labs/cbor-go/runtime"
)

// CLI defines cborcat's command-line interface.
type CLI struct {
	Input string `arg:"" optional:"" help:"CBOR file to read (defaults to stdin)"`
	JSON  bool   `short:"j" help:"Print as JSON instead of diagnostic notation"`
	FromJSON bool `name:"from-json" help:"Treat input as JSON and print its CBOR encoding as diagnostic notation"`
}

func main() {
	var cli CLI
	kong.Parse(&cli,
		kong.Name("cborcat"),
		kong.Description("Render CBOR as diagnostic notation or JSON."),
	)

	if err := run(&cli); err != nil {
		fmt.Fprintln(os.Stderr, "cborcat:", err)
		os.Exit(1)
	}
}

func run(cli *CLI) error {
	raw, err := readInput(cli.Input)
	if err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	if cli.FromJSON {
		cb, err := rt.FromJSONBytes(raw)
		if err != nil {
			return fmt.Errorf("convert json: %w", err)
		}
		diag, _, err := rt.DiagBytes(cb)
		if err != nil {
			return fmt.Errorf("render diagnostic: %w", err)
		}
		fmt.Println(diag)
		return nil
	}

	if cli.JSON {
		js, _, err := rt.ToJSONBytes(raw)
		if err != nil {
			return fmt.Errorf("convert to json: %w", err)
		}
		fmt.Println(string(js))
		return nil
	}

	diag, rest, err := rt.DiagBytes(raw)
	if err != nil {
		return fmt.Errorf("render diagnostic: %w", err)
	}
	fmt.Println(diag)
	for len(rest) > 0 {
		var next string
		next, rest, err = rt.DiagBytes(rest)
		if err != nil {
			return fmt.Errorf("render diagnostic: %w", err)
		}
		fmt.Println(next)
	}
	return nil
}

func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
