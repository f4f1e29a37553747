package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"adte.com/adte/creative-agent/internal/api"
	"adte.com/adte/creative-agent/internal/manifest"
	"adte.com/adte/creative-agent/internal/server"
)

var (
	validateFormatID   string
	validateRemoteMIME bool
)

var errInvalidManifest = errors.New("manifest is invalid")

var validateCmd = &cobra.Command{
	Use:   "validate <manifest.json|->",
	Short: "Check a creative manifest against a format",
	Long: `Validate reads a manifest file (or stdin for "-") and reports every problem
found. The format defaults to the manifest's own format_id.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := readInput(cmd, args[0])
		if err != nil {
			return err
		}

		formatID := validateFormatID
		if formatID == "" {
			if m, perr := manifest.Parse(data); perr == nil {
				formatID = m.FormatID
			}
		}

		srv, err := newLocalServer(validateRemoteMIME)
		if err != nil {
			return err
		}
		resp, err := srv.ValidateManifest(cmd.Context(), api.FormatRef{ID: formatID}, data)
		if err != nil {
			serr := server.AsError(err)
			if werr := writeOutput(cmd.OutOrStdout(), outputFormat, api.ErrorResponse{
				Error:   serr.Message,
				Code:    serr.Code,
				Details: serr.Details,
			}); werr != nil {
				return werr
			}
			return err
		}

		if err := writeOutput(cmd.OutOrStdout(), outputFormat, resp); err != nil {
			return err
		}
		if !resp.Valid {
			return errInvalidManifest
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateFormatID, "format-id", "", "Format to validate against")
	validateCmd.Flags().BoolVar(&validateRemoteMIME, "check-remote-mime", false, "Fetch image URLs and check their content type")
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return data, nil
}
