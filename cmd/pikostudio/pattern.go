package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pikomusic/studio/internal/pattern"
)

var patternPads int

var patternCmd = &cobra.Command{
	Use:   "pattern",
	Short: "Convert step patterns to and from share codes",
}

// encode takes one row per pad as a string of 16 '0'/'1' or 'x'/'.' cells.
var patternEncodeCmd = &cobra.Command{
	Use:   "encode ROW...",
	Short: "Encode grid rows into a share code",
	Example: `  pikostudio pattern encode x...x...x...x... ....x.......x... ..x.x.x.x.x.x.x.
  pikostudio pattern encode --pads 2 1000100010001000 0000100000001000`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pads := patternPads
		if len(args) > pads {
			return fmt.Errorf("%d rows given for %d pads", len(args), pads)
		}
		p := pattern.New(pads)
		for pad, row := range args {
			if len(row) != pattern.Steps {
				return fmt.Errorf("row %d: want %d cells, got %d", pad, pattern.Steps, len(row))
			}
			for step, c := range row {
				switch c {
				case '1', 'x', 'X':
					if err := p.Set(pad, step, true); err != nil {
						return err
					}
				case '0', '.', '-':
				default:
					return fmt.Errorf("row %d: bad cell %q", pad, c)
				}
			}
		}
		fmt.Fprintln(cmd.OutOrStdout(), pattern.Encode(p))
		fmt.Fprintln(cmd.OutOrStdout(), "?"+pattern.ShareQuery(p))
		return nil
	},
}

var patternDecodeCmd = &cobra.Command{
	Use:   "decode CODE|URL",
	Short: "Print the grid carried by a share code or link",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw := args[0]
		var (
			p   pattern.Pattern
			err error
		)
		if strings.ContainsAny(raw, "?=") {
			var ok bool
			if p, ok = pattern.FromURL(raw, patternPads); !ok {
				err = pattern.ErrInvalid
			}
		} else {
			p, err = pattern.Decode(raw, patternPads)
		}
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for pad, row := range p.Grid() {
			var b strings.Builder
			for _, on := range row {
				if on {
					b.WriteByte('x')
				} else {
					b.WriteByte('.')
				}
			}
			fmt.Fprintf(out, "%s %s\n", padLabel(pad), b.String())
		}
		return nil
	},
}

func padLabel(pad int) string {
	return fmt.Sprintf("%2d", pad+1)
}

func init() {
	patternCmd.PersistentFlags().IntVar(&patternPads, "pads", pattern.DefaultPads, "number of pads in the grid")
	patternCmd.AddCommand(patternEncodeCmd, patternDecodeCmd)
	rootCmd.AddCommand(patternCmd)
}
