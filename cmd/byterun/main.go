// byterun - the Lama bytecode virtual machine
//
// Loads a compiled bytecode image and, depending on the mode flag,
// validates, disassembles, analyzes, verifies or interprets it.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"

	"github.com/DarkHole1/lama-byterun/analysis"
	"github.com/DarkHole1/lama-byterun/config"
	"github.com/DarkHole1/lama-byterun/vm"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	validateOnly := flag.Bool("c", false, "Validate the image header only")
	dump := flag.Bool("d", false, "Disassemble the code section")
	analyze := flag.Bool("a", false, "Print the idiom frequency report")
	verify := flag.Bool("v", false, "Verify before interpreting")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: byterun [options] <file>\n\n")
		fmt.Fprintf(os.Stderr, "Runs a compiled Lama bytecode image.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  byterun prog.bc        # interpret\n")
		fmt.Fprintf(os.Stderr, "  byterun -v prog.bc     # verify, then interpret\n")
		fmt.Fprintf(os.Stderr, "  byterun -d prog.bc     # disassemble\n")
		fmt.Fprintf(os.Stderr, "  byterun -a prog.bc     # idiom frequency report\n")
	}
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Println("No input file")
		os.Exit(1)
	}
	fname := flag.Arg(0)

	cfg, err := config.FindAndLoad(".")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	commonlog.Configure(cfg.Log.Verbosity, nil)
	log := commonlog.GetLogger("byterun")

	data, err := os.ReadFile(fname)
	if err != nil || len(data) == 0 {
		fmt.Println("File not exists or empty")
		os.Exit(1)
	}

	prog, err := vm.Load(data)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	log.Debugf("loaded %s: %d publics, %d globals, %d code bytes",
		fname, prog.PublicsLength, prog.GlobalsLength, len(prog.Code))

	switch {
	case *validateOnly:
		fmt.Println("Parsed file successfully")
		return

	case *dump:
		if err := vm.Disassemble(prog, os.Stdout); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		return

	case *analyze:
		report, err := analysis.Analyze(prog)
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		report.Program = fname
		if err := report.Write(os.Stdout); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		if cfg.Analysis.Store != "" {
			if err := recordReport(cfg.Analysis.Store, fname, report); err != nil {
				fmt.Println(err)
				os.Exit(1)
			}
			log.Infof("recorded idiom counts in %s", cfg.Analysis.Store)
		}
		return
	}

	if *verify {
		if err := vm.Verify(prog); err != nil {
			fmt.Println(err)
			os.Exit(1)
		}
		log.Debugf("verification passed")
	}

	interp, err := vm.NewInterpreter(prog, vm.Options{
		StackWords: cfg.VM.StackWords,
		FrameDepth: cfg.VM.FrameDepth,
		In:         os.Stdin,
		Out:        os.Stdout,
	})
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	status, err := interp.Run()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	os.Exit(status)
}

func recordReport(path, program string, report *analysis.Report) error {
	store, err := analysis.OpenStore(path)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.RecordReport(program, report)
}
