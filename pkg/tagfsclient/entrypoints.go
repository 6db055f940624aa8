package tagfsclient

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/function61/gokit/logex"
	"github.com/function61/gokit/osutil"
	"github.com/function61/tagfs/pkg/byteshuman"
	"github.com/function61/tagfs/pkg/tagdiscovery"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// node selection shared by all client commands
type discoveryOpts struct {
	nodes []string      // explicit "host:port"s. skips discovery
	wait  time.Duration // how long to listen for mDNS answers
}

func Entrypoints() []*cobra.Command {
	opts := &discoveryOpts{
		wait: 3 * time.Second,
	}

	cmds := []*cobra.Command{
		nodesEntrypoint(opts),
		lsEntrypoint(opts),
		searchEntrypoint(opts),
		infoEntrypoint(opts),
		getEntrypoint(opts),
		putEntrypoint(opts),
		rmEntrypoint(opts),
		verifyEntrypoint(opts),
	}

	for _, cmd := range cmds {
		cmd.Flags().StringArrayVarP(&opts.nodes, "node", "n", opts.nodes, "Node address (host:port) to use instead of discovery. Repeatable.")
		cmd.Flags().DurationVarP(&opts.wait, "discovery-wait", "", opts.wait, "How long to wait for nodes to announce themselves")
	}

	return cmds
}

func nodesEntrypoint(opts *discoveryOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "nodes",
		Short: "Lists discovered nodes and their free space",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			osutil.ExitIfError(withClient(opts, func(ctx context.Context, client *Client) error {
				tbl := newTable(os.Stdout, "Node", "Address", "Capacity", "Free")

				for _, node := range client.sortedServers() {
					status, err := node.client.Status(ctx)
					if err != nil {
						tbl.Append([]string{node.id, node.client.BaseURL(), "error", err.Error()})
						continue
					}

					tbl.Append([]string{
						node.id,
						node.client.BaseURL(),
						byteshuman.HumanizeSigned(status.Capacity),
						byteshuman.HumanizeSigned(status.FreeSpace),
					})
				}

				tbl.Render()

				return nil
			}))
		},
	}
}

func lsEntrypoint(opts *discoveryOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "ls [tag] [...tag]",
		Short: "Lists files having all the given tags",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			osutil.ExitIfError(withClient(opts, func(ctx context.Context, client *Client) error {
				matches, err := client.ListAll(ctx, args)
				if err != nil {
					return err
				}

				return printMatches(ctx, client, matches)
			}))
		},
	}
}

func searchEntrypoint(opts *discoveryOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "search [query]",
		Short: "Free-text search over names, descriptions and tags",
		Args:  cobra.MinimumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			osutil.ExitIfError(withClient(opts, func(ctx context.Context, client *Client) error {
				matches, err := client.SearchAll(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}

				return printMatches(ctx, client, matches)
			}))
		},
	}
}

func infoEntrypoint(opts *discoveryOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "info [hash]",
		Short: "Shows file metadata",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			osutil.ExitIfError(withClient(opts, func(ctx context.Context, client *Client) error {
				tbl := newTable(os.Stdout, "Node", "Name", "Size", "Type", "Tags", "Description")

				for _, node := range client.sortedServers() {
					record, err := node.client.Info(ctx, args[0])
					if err != nil {
						continue
					}

					tbl.Append([]string{
						node.id,
						record.Name,
						byteshuman.HumanizeSigned(record.Size),
						record.ContentType,
						strings.Join(record.Tags, ", "),
						record.Description,
					})
				}

				tbl.Render()

				return nil
			}))
		},
	}
}

func getEntrypoint(opts *discoveryOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "get [hash] [outputFile]",
		Short: "Downloads a file (to stdout if no output file given)",
		Args:  cobra.RangeArgs(1, 2),
		Run: func(cmd *cobra.Command, args []string) {
			osutil.ExitIfError(withClient(opts, func(ctx context.Context, client *Client) error {
				content, err := client.Get(ctx, args[0])
				if err != nil {
					return err
				}

				if len(args) < 2 {
					_, err := os.Stdout.Write(content)
					return err
				}

				return os.WriteFile(args[1], content, 0644)
			}))
		},
	}
}

func putEntrypoint(opts *discoveryOpts) *cobra.Command {
	tags := []string{}
	description := ""
	name := ""

	cmd := &cobra.Command{
		Use:   "put [file]",
		Short: "Uploads a file to a node",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			osutil.ExitIfError(withClient(opts, func(ctx context.Context, client *Client) error {
				content, err := os.ReadFile(args[0])
				if err != nil {
					return err
				}

				nodeID, err := singleNode(client)
				if err != nil {
					return err
				}

				if name == "" {
					name = filepath.Base(args[0])
				}

				hash, err := client.Put(ctx, nodeID, name, description, tags, content)
				if err != nil {
					return err
				}

				fmt.Println(hash)

				return nil
			}))
		},
	}

	cmd.Flags().StringArrayVarP(&tags, "tag", "t", tags, "Tag (repeatable)")
	cmd.Flags().StringVarP(&description, "description", "d", description, "Description")
	cmd.Flags().StringVarP(&name, "name", "", name, "Name (default: file's basename)")

	return cmd
}

func rmEntrypoint(opts *discoveryOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "rm [hash]",
		Short: "Removes a file from every node that has it",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			osutil.ExitIfError(withClient(opts, func(ctx context.Context, client *Client) error {
				return client.RemoveAll(ctx, args[0])
			}))
		},
	}
}

func verifyEntrypoint(opts *discoveryOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Asks nodes to check that every indexed file has its content",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			osutil.ExitIfError(withClient(opts, func(ctx context.Context, client *Client) error {
				tbl := newTable(os.Stdout, "Node", "Checked", "Dangling")

				for _, node := range client.sortedServers() {
					report, err := node.client.VerifyIntegrity(ctx)
					if err != nil {
						return fmt.Errorf("node %s: %w", node.id, err)
					}

					tbl.Append([]string{
						node.id,
						fmt.Sprintf("%d", report.Checked),
						strings.Join(report.Dangling, " "),
					})
				}

				tbl.Render()

				return nil
			}))
		},
	}
}

func withClient(opts *discoveryOpts, fn func(ctx context.Context, client *Client) error) error {
	logger := logex.StandardLogger()

	ctx := osutil.CancelOnInterruptOrTerminate(logger)

	client, err := discover(ctx, opts, logger)
	if err != nil {
		return err
	}

	return fn(ctx, client)
}

// populates a client from explicit addresses or one discovery round
func discover(ctx context.Context, opts *discoveryOpts, logger *log.Logger) (*Client, error) {
	client := New(logex.Prefix("client", logger))

	if len(opts.nodes) > 0 {
		for _, addr := range opts.nodes {
			client.EndpointAdded(tagdiscovery.InstanceName(addr), addr)
		}

		return client, nil
	}

	session := tagdiscovery.NewSession(client, logex.Prefix("discovery", logger))
	session.RoundDuration = opts.wait
	session.Round(ctx)

	if len(client.Servers()) == 0 {
		return nil, ErrNoServers
	}

	return client, nil
}

// placement is up to the user, so with many nodes they have to pick one with --node
func singleNode(client *Client) (string, error) {
	nodes := client.sortedServers()

	switch len(nodes) {
	case 0:
		return "", ErrNoServers
	case 1:
		return nodes[0].id, nil
	default:
		return "", fmt.Errorf("%d nodes discovered; choose one with --node", len(nodes))
	}
}

func printMatches(ctx context.Context, client *Client, matches []Match) error {
	tbl := newTable(os.Stdout, "Hash", "Name", "Size", "Nodes")

	for _, match := range matches {
		name, size := "", ""

		if server, found := client.Server(match.Nodes[0]); found {
			if record, err := server.Info(ctx, match.Hash); err == nil {
				name = record.Name
				size = byteshuman.HumanizeSigned(record.Size)
			}
		}

		tbl.Append([]string{match.Hash, name, size, fmt.Sprintf("%d", len(match.Nodes))})
	}

	tbl.Render()

	return nil
}

func newTable(output io.Writer, header ...string) *tablewriter.Table {
	tbl := tablewriter.NewWriter(output)
	tbl.SetAutoFormatHeaders(false)
	tbl.SetBorder(false)
	tbl.SetHeader(header)
	return tbl
}
