package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap/zapcore"
	kingpin "gopkg.in/alecthomas/kingpin.v2"

	"github.com/zerowindow/rawntfs/device"
	"github.com/zerowindow/rawntfs/dump"
	"github.com/zerowindow/rawntfs/extract"
	"github.com/zerowindow/rawntfs/filelist"
	"github.com/zerowindow/rawntfs/logger"
	"github.com/zerowindow/rawntfs/mbr"
	"github.com/zerowindow/rawntfs/scan"
)

const isWin = runtime.GOOS == "windows"

const (
	exitCodeUserError int = iota + 2
	exitCodeFunctionalError
	exitCodeTechnicalError
)

const helpText = `Commands:
  help         Show this help text
  print files  Print the file catalogue
  exit         Quit
`

var (
	app        = kingpin.New("rawntfs", "A raw NTFS extraction engine: copies and catalogues the MFT of every NTFS partition on a block device.")
	deviceArg  = app.Arg("device", "Block device containing a DOS/MBR partition table.").Required().String()
	outDirFlag = app.Flag("out", "Directory to write local MFT copies to.").Default(".").String()
	sqliteFlag = app.Flag("sqlite", "Write the file catalogue to this SQLite database.").String()
	verbose    = app.Flag("verbose", "Print structure dumps while working.").Short('v').Bool()
	batch      = app.Flag("batch", "Skip the interactive prompt.").Bool()
)

func main() {
	os.Exit(run())
}

func run() int {
	app.UsageWriter(os.Stderr)
	if _, err := app.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%v, try --help\n", err)
		return exitCodeUserError
	}
	if *verbose {
		logger.SetLevel(zapcore.DebugLevel)
	}

	volume := *deviceArg
	if isWin {
		volume = `\\.\` + volume
	}

	fmt.Printf("Launching raw NTFS extraction engine for %s\n", volume)

	sess, err := device.Open(volume)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open block device: %v\n", err)
		return exitCodeTechnicalError
	}
	defer sess.Close()

	sector := make([]byte, mbr.SectorSize)
	if err := sess.ReadFull(sector); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read partition table: %v\n", err)
		return exitCodeTechnicalError
	}
	table, err := mbr.DecodeTable(sector)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to decode partition table: %v\n", err)
		return exitCodeTechnicalError
	}

	parts := table.NTFS()
	if len(parts) == 0 {
		fmt.Fprintf(os.Stderr, "%v, please check user privileges.\n", mbr.ErrNoNTFSPartitions)
		return exitCodeFunctionalError
	}
	fmt.Printf("%d NTFS partitions located.\n", len(parts))

	outFs := afero.NewBasePathFs(afero.NewOsFs(), *outDirFlag)
	files := filelist.New()
	var totals scan.Counters

	for i, part := range parts {
		fmt.Printf("\nExtracting MFT from partition %d\n", i)
		if part.Bootable() {
			fmt.Println("\tThis is the boot partition.")
		}
		if *verbose {
			dump.Fprint(os.Stdout, dump.PartitionEntry(part))
		}

		path := fmt.Sprintf("$MFT%d.data", i)
		report, err := extract.MFT(sess, part, outFs, path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to extract MFT from partition %d: %v\n", i, err)
			return exitCodeTechnicalError
		}
		if *verbose {
			dump.Fprint(os.Stdout, dump.BootSector(report.Boot))
		}
		fmt.Printf("\tSize of MFT extracted from partition %d: %d bytes\n", i, report.Bytes)

		counters, err := scanCopy(outFs, path, files)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to process MFT copy %s: %v\n", path, err)
			return exitCodeTechnicalError
		}
		totals.Add(counters)
	}

	printSummary(os.Stdout, totals)

	if *sqliteFlag != "" {
		if err := files.ExportSQLite(context.Background(), *sqliteFlag); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to export catalogue: %v\n", err)
			return exitCodeTechnicalError
		}
		fmt.Printf("Catalogue written to %s\n", *sqliteFlag)
	}

	if !*batch {
		prompt(os.Stdin, os.Stdout, files)
	}
	return 0
}

func scanCopy(fs afero.Fs, path string, files *filelist.List) (scan.Counters, error) {
	f, err := fs.Open(path)
	if err != nil {
		return scan.Counters{}, err
	}
	defer f.Close()

	list, counters, err := scan.MFT(f)
	if err != nil {
		return counters, err
	}
	for _, e := range list.Entries() {
		files.Append(e.Name, e.FragmentOffset, e.RecordNumber)
	}
	return counters, nil
}

func printSummary(w io.Writer, c scan.Counters) {
	fmt.Fprintf(w, "\n%d MFT fragments\n", c.Fragments)
	fmt.Fprintf(w, "files: %d\tdirectories: %d\n", c.Files, c.Directories)
	fmt.Fprintf(w, "deleted entities: %d\tother entities: %d\n", c.Deleted, c.Other)
	fmt.Fprintf(w, "Bad record attributes: %d\n", c.BadAttributes)
	fmt.Fprintf(w, "File names: %d\n", c.FileNames)
	fmt.Fprintf(w, "%d FILE records processed.\n", c.Records)
}

func prompt(in io.Reader, out io.Writer, files *filelist.List) {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprintln(out, "What do you want to do?")
		if !scanner.Scan() {
			return
		}
		switch strings.TrimSpace(scanner.Text()) {
		case "help":
			fmt.Fprint(out, helpText)
		case "print files":
			files.Print(out)
		case "exit":
			return
		case "":
		default:
			fmt.Fprintln(out, "Command not recognised, try 'help'")
		}
	}
}
