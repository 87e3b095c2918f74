package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/darkden-lab/relay/internal/featureflag"
)

const scopeHelp = `SCOPE is one of "everyone", "user:<id>", "org:<id>" or "app:<id>".`

func newEnableCmd(open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "enable FLAG SCOPE",
		Short: "Turn a flag on for a scope",
		Long:  scopeHelp,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setFlag(cmd, open, args, true)
		},
	}
}

func newDisableCmd(open openFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "disable FLAG SCOPE",
		Short: "Turn a flag off for a scope",
		Long:  scopeHelp,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return setFlag(cmd, open, args, false)
		},
	}
}

func setFlag(cmd *cobra.Command, open openFunc, args []string, on bool) error {
	flag := featureflag.Flag(args[0])
	scope, err := parseScope(args[1])
	if err != nil {
		return err
	}

	src, closeFn, err := open()
	if err != nil {
		return err
	}
	defer closeFn()

	if on {
		err = src.Enable(cmd.Context(), flag, scope)
	} else {
		err = src.Disable(cmd.Context(), flag, scope)
	}
	if err != nil {
		return err
	}

	state := "off"
	if on {
		state = "on"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s for %s\n", flag, state, scope)
	return nil
}

func newCheckCmd(open openFunc) *cobra.Command {
	var target featureflag.Target

	cmd := &cobra.Command{
		Use:   "check FLAG",
		Short: "Print whether a flag is on for a user, org or application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, closeFn, err := open()
			if err != nil {
				return err
			}
			defer closeFn()

			on, err := src.Enabled(cmd.Context(), featureflag.Flag(args[0]), target)
			if err != nil {
				return err
			}
			if on {
				fmt.Fprintln(cmd.OutOrStdout(), "on")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "off")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&target.UserID, "user", "", "user ID to evaluate for")
	cmd.Flags().StringVar(&target.OrgID, "org", "", "org ID to evaluate for")
	cmd.Flags().StringVar(&target.PlatformApplicationID, "app", "", "platform application ID to evaluate for")
	return cmd
}

// parseScope turns the command line form of a scope into the stored member.
func parseScope(s string) (string, error) {
	if s == "everyone" || s == featureflag.ScopeEveryone {
		return featureflag.ScopeEveryone, nil
	}
	kind, id, ok := strings.Cut(s, ":")
	if !ok || id == "" {
		return "", fmt.Errorf("invalid scope %q: %s", s, scopeHelp)
	}
	switch kind {
	case "user":
		return featureflag.ScopeUser(id), nil
	case "org":
		return featureflag.ScopeOrg(id), nil
	case "app":
		return featureflag.ScopeApplication(id), nil
	}
	return "", fmt.Errorf("invalid scope %q: %s", s, scopeHelp)
}
