package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/adamwoolhether/koatap/config"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage profiles in the koatap config file",
	}

	cmd.AddCommand(newConfigShowCmd(a))
	cmd.AddCommand(newConfigSetCmd(a))
	cmd.AddCommand(newConfigUseCmd(a))
	cmd.AddCommand(newConfigKeysCmd(a))

	return cmd
}

func newConfigShowCmd(a *app) *cobra.Command {
	var resolved bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the config file, or the settings in effect with --resolved",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			var v any = a.settings
			if !resolved {
				f, err := config.LoadOrEmpty(a.configPath)
				if err != nil {
					return err
				}
				v = f
			}

			data, err := yaml.Marshal(v)
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			a.printf("# %s\n%s", a.configPath, data)

			return nil
		},
	}

	cmd.Flags().BoolVar(&resolved, "resolved", false, "Show the merged settings from flags, environment and profile")

	return cmd
}

func newConfigSetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a key in the active profile, or the one named by --profile",
		Long:  "Set a key in the active profile, or the one named by --profile.\n\nKeys: " + strings.Join(config.Keys(), ", "),
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			f, err := config.LoadOrEmpty(a.configPath)
			if err != nil {
				return err
			}

			name := a.profile
			if name == "" {
				name = f.CurrentProfile
			}

			p := f.Profiles[name]
			if err := p.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := p.Validate(); err != nil {
				return fmt.Errorf("invalid value for %s: %w", args[0], err)
			}
			f.Profiles[name] = p

			if err := config.Save(a.configPath, f); err != nil {
				return err
			}
			a.printf("%s.%s = %s\n", name, args[0], args[1])

			return nil
		},
	}
}

func newConfigUseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "use <profile>",
		Short: "Switch the current profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			f, err := config.LoadOrEmpty(a.configPath)
			if err != nil {
				return err
			}

			if _, ok := f.Profiles[args[0]]; !ok {
				a.notef("profile %q has no settings yet\n", args[0])
			}
			f.CurrentProfile = args[0]

			if err := config.Save(a.configPath, f); err != nil {
				return err
			}
			a.printf("current profile: %s\n", args[0])

			return nil
		},
	}
}

func newConfigKeysCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "List the settable keys and their environment variables",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			for _, k := range config.Keys() {
				a.printf("%-14s %s\n", k, config.EnvName(k))
			}
		},
	}
}
