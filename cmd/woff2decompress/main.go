package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/tdewolff/argp"
	"github.com/tdewolff/woff2"
)

const (
	application = "woff2decompress"
	version     = "1.0.0"
	usageString = "Usage: woff2decompress [--version] [--usage] font.woff2"
)

func main() {
	showVersion := false
	showUsage := false
	var input string

	cmd := argp.New("Decompress a WOFF2 font file to TTF or OTF")
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
	output += ".ttf"
	fmt.Printf("Processing %s => %s\n", input, output)

	b, err := os.ReadFile(input)
	if err != nil {
		fmt.Println("ERROR:", err)
		os.Exit(1)
	}

	// the header's size claim is untrusted, clamp it before allocating
	maxSize := woff2.ComputeWOFF2FinalSize(b)
	if woff2.MaxMemory < maxSize {
		maxSize = woff2.MaxMemory
	}
	out := woff2.NewWOFF2StringOut(maxSize)
	if err := woff2.ConvertWOFF2ToTTF(b, out); err != nil {
		fmt.Println("ERROR:", err)
		os.Exit(1)
	}
	if err := os.WriteFile(output, out.Bytes(), 0644); err != nil {
		fmt.Println("ERROR:", err)
		os.Exit(1)
	}
}
