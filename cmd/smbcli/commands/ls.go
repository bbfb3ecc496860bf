package commands

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var lsCmd = &cobra.Command{
	Use:   "ls [path]",
	Short: "List the contents of a directory",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLs,
}

func runLs(cmd *cobra.Command, args []string) error {
	path := ""
	if len(args) == 1 {
		path = args[0]
	}

	client, err := connect()
	if err != nil {
		return err
	}
	defer client.Close()

	entries, err := client.List(path)
	if err != nil {
		return fmt.Errorf("%s", readable(err))
	}
	if len(entries) == 0 {
		fmt.Println("Empty directory.")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"NAME", "TYPE", "SIZE", "MODIFIED"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	for _, e := range entries {
		kind := "file"
		size := fmt.Sprintf("%d", e.Size)
		if e.IsDir {
			kind = "dir"
			size = ""
		}
		modified := ""
		if !e.Modified.IsZero() {
			modified = e.Modified.Format("2006-01-02 15:04:05")
		}
		table.Append([]string{e.Name, kind, size, modified})
	}
	table.Render()
	return nil
}
