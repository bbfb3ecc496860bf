package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <remote> [local]",
	Short: "Download a file from the share",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runGet,
}

var putCmd = &cobra.Command{
	Use:   "put <local> [remote]",
	Short: "Upload a file to the share",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runPut,
}

var putOverwrite bool

func init() {
	putCmd.Flags().BoolVar(&putOverwrite, "overwrite", false, "replace the remote file if it exists")
}

func runGet(cmd *cobra.Command, args []string) error {
	remote := args[0]
	local := filepath.Base(remote)
	if len(args) == 2 {
		local = args[1]
	}

	client, err := connect()
	if err != nil {
		return err
	}
	defer client.Close()

	r, err := client.Download(remote)
	if err != nil {
		return fmt.Errorf("%s", readable(err))
	}
	defer r.Close()

	f, err := os.Create(local)
	if err != nil {
		return err
	}
	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(local)
		return fmt.Errorf("%s", readable(err))
	}
	fmt.Printf("Downloaded %s (%d bytes) to %s\n", remote, n, local)
	return nil
}

func runPut(cmd *cobra.Command, args []string) error {
	local := args[0]
	remote := filepath.Base(local)
	if len(args) == 2 {
		remote = args[1]
	}

	f, err := os.Open(local)
	if err != nil {
		return err
	}
	defer f.Close()

	client, err := connect()
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Upload(remote, f, putOverwrite); err != nil {
		return fmt.Errorf("%s", readable(err))
	}
	fmt.Printf("Uploaded %s to %s\n", local, remote)
	return nil
}
