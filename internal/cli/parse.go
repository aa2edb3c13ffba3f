package cli

import (
	"fmt"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/maruyamamtk/keiba-prediction/internal/format"
	"github.com/maruyamamtk/keiba-prediction/internal/parser"
)

func parseCmd(a *app) *cobra.Command {
	var showWarnings bool

	c := &cobra.Command{
		Use:   "parse FILE",
		Short: "Decode a local feed file and summarise it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			code, _, ok := format.ParseFileName(filepath.Base(path))
			if !ok {
				return fmt.Errorf("%s is not a feed file name (expected e.g. BAA260104.txt)", path)
			}
			schema, err := format.Default().Lookup(code)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			var records, parseErrors, warnings int
			it := parser.DecodeFile(path, schema)
			defer it.Close()
			for it.Next() {
				r := it.Value()
				if r.Err != nil {
					parseErrors++
					if showWarnings {
						fmt.Fprintf(out, "  error: %v\n", r.Err)
					}
					continue
				}
				records++
				warnings += len(r.Record.Warnings)
				if showWarnings {
					for _, w := range r.Record.Warnings {
						fmt.Fprintf(out, "  line %d: %s\n", r.Line, w)
					}
				}
			}
			if err := it.Err(); err != nil {
				return err
			}

			fmt.Fprintf(out, "file: %s\n", path)
			fmt.Fprintf(out, "data type: %s (%s, %s)\n", schema.Code, schema.TableRef(), schema.Description)
			fmt.Fprintf(out, "records: %d\nparse errors: %d\nwarnings: %d\n", records, parseErrors, warnings)
			a.log.WithFields(logrus.Fields{"file": path, "records": records}).Debug("parse complete")
			return nil
		},
	}
	c.Flags().BoolVar(&showWarnings, "show-warnings", false, "print each warning and parse error")
	return c
}
