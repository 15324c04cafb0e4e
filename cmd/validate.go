package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/edgeflow/internal/cluster"
	"github.com/sells-group/edgeflow/internal/config"
	"github.com/sells-group/edgeflow/internal/manifest"
)

var validateCmd = &cobra.Command{
	Use:         "validate <manifest>",
	Short:       "Resolve a manifest's cluster pairs without processing them",
	Args:        cobra.ExactArgs(1),
	Annotations: map[string]string{modeAnnotation: "run"},
	RunE: func(cmd *cobra.Command, args []string) error {
		return validateManifest(os.Stdout, cfg, args[0])
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

// validateManifest resolves the manifest and reports pairs and issues. A
// fatal configuration error is returned.
func validateManifest(out io.Writer, c *config.Config, path string) error {
	m, err := manifest.Load(path)
	if err != nil {
		return err
	}

	arena, in := m.Build()
	pc := pipelineConfig(c)
	res, err := cluster.NewResolver(arena, pc.Capabilities, pc.Options).Resolve(in)
	if err != nil {
		return eris.Wrapf(err, "validate %s", path)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Pairs:\t%d\n", len(res.Pairs))
	for _, p := range res.Pairs {
		edges := make([]string, 0, len(p.Edges))
		for _, h := range p.Edges {
			edges = append(edges, arena.Get(h).Name)
		}
		_, _ = fmt.Fprintf(w, "  cluster %d:\t%s\t%v\n", p.Key, arena.Get(p.Vertex).Name, edges)
	}
	_, _ = fmt.Fprintf(w, "Orphan edge sets:\t%d\n", len(res.Orphans))
	_, _ = fmt.Fprintf(w, "Unpaired vertex sets:\t%d\n", len(res.Unpaired))
	_, _ = fmt.Fprintf(w, "Disabled:\t%d\n", len(res.Disabled))
	_, _ = fmt.Fprintf(w, "Issues:\t%d\n", len(res.Issues))
	for _, is := range documentIssues(arena, res) {
		_, _ = fmt.Fprintf(w, "  %s\t%s\t%s\n", is.Kind, is.Collection, is.Message)
	}
	return w.Flush()
}
