package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rmCmd = &cobra.Command{
	Use:   "rm <path>",
	Short: "Delete a file or directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runRm,
}

var mvCmd = &cobra.Command{
	Use:   "mv <old> <new>",
	Short: "Rename or move a file or directory",
	Args:  cobra.ExactArgs(2),
	RunE:  runMv,
}

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <path>",
	Short: "Create a directory",
	Args:  cobra.ExactArgs(1),
	RunE:  runMkdir,
}

var rmDir bool

func init() {
	rmCmd.Flags().BoolVar(&rmDir, "dir", false, "delete a directory instead of a file")
}

func runRm(cmd *cobra.Command, args []string) error {
	client, err := connect()
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Delete(args[0], rmDir); err != nil {
		return fmt.Errorf("%s", readable(err))
	}
	fmt.Printf("Deleted %s\n", args[0])
	return nil
}

func runMv(cmd *cobra.Command, args []string) error {
	client, err := connect()
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Rename(args[0], args[1]); err != nil {
		return fmt.Errorf("%s", readable(err))
	}
	fmt.Printf("Renamed %s to %s\n", args[0], args[1])
	return nil
}

func runMkdir(cmd *cobra.Command, args []string) error {
	client, err := connect()
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Mkdir(args[0]); err != nil {
		return fmt.Errorf("%s", readable(err))
	}
	fmt.Printf("Created %s\n", args[0])
	return nil
}
