package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/webwebb56/MD-EVOSEP-system-suitability-control/internal/classifier"
)

func runClassify(args []string) int {
	fs := flag.NewFlagSet("qc-agent classify", flag.ContinueOnError)
	instrumentID := fs.String("instrument", "", "instrument id to attach to the classification")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: qc-agent classify [--instrument id] <path>")
		return 2
	}

	c, err := classifier.Classify(fs.Arg(0), *instrumentID)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	well := "-"
	if c.WellPosition != nil {
		well = c.WellPosition.String()
	}

	fmt.Printf("control_type:  %s\n", c.ControlType)
	fmt.Printf("well_position: %s\n", well)
	fmt.Printf("plate_id:      %s\n", c.PlateID)
	fmt.Printf("confidence:    %s\n", c.Confidence)
	fmt.Printf("source:        %s\n", c.Source)
	return 0
}
