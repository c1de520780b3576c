package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/provision/internal/ir"
)

// VersionInfo identifies the build and the document formats it writes.
type VersionInfo struct {
	Version          string `json:"version"`
	SchemaDocVersion string `json:"schema_doc_version"`
}

func (v VersionInfo) Text() string {
	return fmt.Sprintf("provision %s (schema documents v%s)\n", v.Version, v.SchemaDocVersion)
}

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "version",
		Short:         "Print the tool version",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			return f.Success(VersionInfo{Version: ir.ToolVersion, SchemaDocVersion: ir.SchemaDocVersion})
		},
	}
}
