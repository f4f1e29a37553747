package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"adte.com/adte/creative-agent/internal/api"
	"adte.com/adte/creative-agent/internal/asset"
	"adte.com/adte/creative-agent/internal/format"
	"adte.com/adte/creative-agent/internal/server"
)

var (
	outputFormat string
	agentURL     string

	filterType       string
	filterDimensions string
	filterName       string
	filterResponsive string
	filterFormatIDs  []string
	filterAssetTypes []string
	filterMaxWidth   int
	filterMaxHeight  int
	filterMinWidth   int
	filterMinHeight  int
)

var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "Print the creative format catalog",
	Example: `  creative-agent formats --type display --max-width 728
  creative-agent formats --asset-type vast_tag -o yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := formatsRequest(cmd)
		if err != nil {
			return err
		}
		srv, err := newLocalServer(false)
		if err != nil {
			return err
		}
		resp, err := srv.ListFormats(cmd.Context(), req)
		if err != nil {
			return err
		}
		return writeOutput(cmd.OutOrStdout(), outputFormat, resp)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "json", "Output format: json or yaml")
	rootCmd.PersistentFlags().StringVar(&agentURL, "agent-url", format.DefaultAgentURL, "Agent URL stamped on format ids")

	f := formatsCmd.Flags()
	f.StringVar(&filterType, "type", "", "Format type: audio, video, display, native, dooh or universal")
	f.StringVar(&filterDimensions, "dimensions", "", "Exact render size, e.g. 300x250")
	f.StringVar(&filterName, "name", "", "Case-insensitive substring of the format name")
	f.StringVar(&filterResponsive, "responsive", "", "Only responsive (true) or fixed-size (false) formats")
	f.StringSliceVar(&filterFormatIDs, "format-id", nil, "Only these format ids")
	f.StringSliceVar(&filterAssetTypes, "asset-type", nil, "Formats accepting at least one of these asset types")
	f.IntVar(&filterMaxWidth, "max-width", 0, "Maximum render width")
	f.IntVar(&filterMaxHeight, "max-height", 0, "Maximum render height")
	f.IntVar(&filterMinWidth, "min-width", 0, "Minimum render width")
	f.IntVar(&filterMinHeight, "min-height", 0, "Minimum render height")
}

func formatsRequest(cmd *cobra.Command) (api.ListCreativeFormatsRequest, error) {
	req := api.ListCreativeFormatsRequest{
		Type:       filterType,
		Dimensions: filterDimensions,
		NameSearch: filterName,
	}
	for _, id := range filterFormatIDs {
		req.FormatIDs = append(req.FormatIDs, api.FormatRef{ID: id})
	}
	for _, kind := range filterAssetTypes {
		req.AssetTypes = append(req.AssetTypes, asset.Kind(kind))
	}

	flags := cmd.Flags()
	bounds := []struct {
		name string
		v    int
		dst  **int
	}{
		{"max-width", filterMaxWidth, &req.MaxWidth},
		{"max-height", filterMaxHeight, &req.MaxHeight},
		{"min-width", filterMinWidth, &req.MinWidth},
		{"min-height", filterMinHeight, &req.MinHeight},
	}
	for _, b := range bounds {
		if flags.Changed(b.name) {
			v := b.v
			*b.dst = &v
		}
	}

	if filterResponsive != "" {
		v, err := strconv.ParseBool(filterResponsive)
		if err != nil {
			return req, fmt.Errorf("--responsive must be true or false")
		}
		req.IsResponsive = &v
	}
	return req, nil
}

func newLocalServer(checkRemoteMIME bool) (*server.Server, error) {
	registry, err := format.NewStandardRegistry(agentURL)
	if err != nil {
		return nil, err
	}
	srv := &server.Server{
		Registry: registry,
		Logger:   newLogger("error", io.Discard),
		AgentURL: agentURL,
	}
	if checkRemoteMIME {
		srv.MIMEChecker = asset.NewHTTPMIMEChecker()
	}
	return srv, nil
}

func writeOutput(w io.Writer, output string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	switch output {
	case "json":
		_, err = fmt.Fprintln(w, string(data))
		return err
	case "yaml":
		// Decoding the JSON keeps field names and order.
		var node yaml.Node
		if err := yaml.Unmarshal(data, &node); err != nil {
			return err
		}
		blockStyle(&node)
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(&node); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unknown output format %q", output)
	}
}

func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}
