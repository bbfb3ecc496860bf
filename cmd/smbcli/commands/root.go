// Package commands implements the smbcli command tree.
package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nordfjell/smbclient/smbfile"
)

var v = viper.New()

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "smbcli",
	Short: "A small SMB2 file client",
	Long: `smbcli talks to a single SMB share for everyday file operations:
listing, transfer, rename, delete and change watching.

Connection settings come from flags or environment variables with the
SMBCLI_ prefix, for example SMBCLI_HOST, SMBCLI_USER and SMBCLI_PASSWORD.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("host", "", "server hostname or address")
	pf.Int("port", 445, "server port")
	pf.String("share", "", "share name to mount")
	pf.String("domain", "", "authentication domain")
	pf.String("user", "", "username")
	pf.String("password", "", "password")
	pf.Duration("timeout", 30*time.Second, "connect and request timeout")

	v.SetEnvPrefix("SMBCLI")
	v.AutomaticEnv()
	for _, name := range []string{"host", "port", "share", "domain", "user", "password", "timeout"} {
		v.BindPFlag(name, pf.Lookup(name))
	}

	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(mvCmd)
	rootCmd.AddCommand(mkdirCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// connect builds a credential record from flags and environment and mounts
// the share. Callers own the returned client and must Close it.
func connect() (*smbfile.Client, error) {
	cred := smbfile.Credential{
		Host:           v.GetString("host"),
		Port:           v.GetInt("port"),
		Domain:         v.GetString("domain"),
		Username:       v.GetString("user"),
		Password:       v.GetString("password"),
		Share:          v.GetString("share"),
		ConnectTimeout: v.GetDuration("timeout"),
		RequestTimeout: v.GetDuration("timeout"),
	}
	if cred.Host == "" {
		return nil, fmt.Errorf("no host given (use --host or SMBCLI_HOST)")
	}
	if cred.Share == "" {
		return nil, fmt.Errorf("no share given (use --share or SMBCLI_SHARE)")
	}
	if cred.Username == "" {
		return nil, fmt.Errorf("no username given (use --user or SMBCLI_USER)")
	}
	client, err := smbfile.Connect(cred)
	if err != nil {
		return nil, fmt.Errorf("%s", smbfile.ReadableError(err))
	}
	return client, nil
}
