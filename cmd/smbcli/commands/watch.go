package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nordfjell/smbclient/smbfile"
)

var watchCmd = &cobra.Command{
	Use:   "watch <path>",
	Short: "Print change events for a directory until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE:  runWatch,
}

var (
	watchRecursive bool
	watchEvent     string
)

func init() {
	watchCmd.Flags().BoolVar(&watchRecursive, "recursive", false, "watch the whole subtree")
	watchCmd.Flags().StringVar(&watchEvent, "event", string(smbfile.FileUpdated),
		"event kind to watch: fileCreated, fileDeleted, fileUpdated, folderCreated, folderDeleted or folderUpdated")
}

func runWatch(cmd *cobra.Command, args []string) error {
	client, err := connect()
	if err != nil {
		return err
	}
	defer client.Close()

	cancel, err := client.Watch(args[0], watchRecursive, smbfile.EventKind(watchEvent), func(ev smbfile.Event) {
		fmt.Printf("%s  %s\n", ev.Kind, ev.Name)
	})
	if err != nil {
		return fmt.Errorf("%s", readable(err))
	}

	fmt.Printf("Watching %s for %s events, press Ctrl-C to stop.\n", args[0], watchEvent)
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	signal.Stop(sig)
	return cancel()
}
