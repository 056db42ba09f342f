package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/conneroisu/toolkit/internal/types"
)

// profileFlag is a pflag.Value that only accepts known build profiles.
type profileFlag struct {
	profile types.Profile
}

var _ pflag.Value = (*profileFlag)(nil)

func (f *profileFlag) String() string { return string(f.profile) }

func (f *profileFlag) Set(s string) error {
	p, err := types.ParseProfile(s)
	if err != nil {
		return err
	}
	f.profile = p
	return nil
}

func (f *profileFlag) Type() string { return "profile" }

// addProfileFlag registers --profile with shell completion of profile names.
func addProfileFlag(cmd *cobra.Command, f *profileFlag, usage string) {
	cmd.Flags().VarP(f, "profile", "p", usage)
	_ = cmd.RegisterFlagCompletionFunc("profile", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		names := make([]string, len(types.Profiles))
		for i, p := range types.Profiles {
			names[i] = string(p)
		}
		return names, cobra.ShellCompDirectiveNoFileComp
	})
}
