package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/tdewolff/argp"
	"github.com/tdewolff/woff2"
)

const (
	application = "woff2compress"
	version     = "1.0.0"
	usageString = "Usage: woff2compress [--version] [--usage] font.ttf"
)

func main() {
	showVersion := false
	showUsage := false
	var input string

	cmd := argp.New("Compress a TTF or OTF font file to WOFF2")
	cmd.AddOpt(&showVersion, "v", "version", "Print the version and exit.")
	cmd.AddOpt(&showUsage, "", "usage", "Print usage information and exit.")
	cmd.AddArg(&input, "input", "Input font file.")
	cmd.Parse()

	if showVersion {
		fmt.Println(application, version)
		os.Exit(0)
	} else if showUsage {
		fmt.Println(usageString)
		os.Exit(0)
	}
	if input == "" {
		fmt.Fprintln(os.Stderr, usageString)
		os.Exit(1)
	}

	output := input
	if dot := strings.LastIndexByte(output, '.'); dot != -1 {
		output = output[:dot]
	}
	output += ".woff2"
	fmt.Printf("Processing %s => %s\n", input, output)

	b, err := os.ReadFile(input)
	if err != nil {
		fmt.Println("ERROR:", err)
		os.Exit(1)
	}
	out, err := woff2.ConvertTTFToWOFF2(b, woff2.WOFF2Params{})
	if err != nil {
		fmt.Println("ERROR:", err)
		os.Exit(1)
	}
	if err := os.WriteFile(output, out, 0644); err != nil {
		fmt.Println("ERROR:", err)
		os.Exit(1)
	}
}
