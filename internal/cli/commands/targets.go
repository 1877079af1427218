package commands

import (
	"path"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/multibuild/internal/target"
)

// TargetInfo is the serializable view of a catalogue entry.
type TargetInfo struct {
	ID         string            `json:"id" yaml:"id"`
	Descriptor target.Descriptor `json:"descriptor" yaml:"descriptor"`
	Output     string            `json:"output" yaml:"output"`
	Minified   string            `json:"minified,omitempty" yaml:"minified,omitempty"`
}

// NewTargetsCommand creates the targets command.
func NewTargetsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "targets",
		Short: "List the target catalogue",
		Long: `List every build target with its format, compatibility target and output
paths, after configuration overrides are applied.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTargets(cmd)
		},
	}
}

func runTargets(cmd *cobra.Command) error {
	cc, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}
	cat, err := cc.Cfg.Catalogue()
	if err != nil {
		return err
	}

	infos := make([]TargetInfo, 0, cat.Len())
	for _, e := range cat.Entries() {
		dir := path.Join(cc.Cfg.OutDir, e.ID)
		info := TargetInfo{ID: e.ID, Descriptor: e.Descriptor, Output: path.Join(dir, e.Descriptor.OutputFilename())}
		if e.Descriptor.Minify {
			info.Minified = path.Join(dir, target.MinFilename)
		}
		infos = append(infos, info)
	}

	r := cc.Renderer
	if r.Structured() {
		return r.Structure(infos)
	}

	rows := make([][]string, 0, len(infos))
	for _, info := range infos {
		d := info.Descriptor
		compat := d.Target
		if !d.Compiles() {
			compat = "(untranspiled)"
		} else if compat == "" {
			compat = "(default)"
		}
		rows = append(rows, []string{
			info.ID,
			string(d.Format),
			compat,
			strconv.FormatBool(d.Minify),
			strconv.FormatBool(d.Global),
			d.Name,
			info.Output,
		})
	}
	r.Table([]string{"Target", "Format", "Compat", "Minify", "Global", "Name", "Output"}, rows)
	return nil
}
