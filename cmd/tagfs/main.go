package main

import (
	"os"

	"github.com/function61/gokit/dynversion"
	"github.com/function61/gokit/osutil"
	"github.com/function61/tagfs/pkg/tagfsclient"
	"github.com/function61/tagfs/pkg/tagfsserver"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:               os.Args[0],
		Short:             "TagFS: tag-addressable file storage for your LAN",
		Version:           dynversion.Version,
		CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	}

	// client's commands are at the root level since they're used most often
	for _, entrypoint := range tagfsclient.Entrypoints() {
		rootCmd.AddCommand(entrypoint)
	}

	rootCmd.AddCommand(tagfsserver.Entrypoint())

	osutil.ExitIfError(rootCmd.Execute())
}
