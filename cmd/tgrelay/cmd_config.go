package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tgrelay/pkg/config"
	"tgrelay/pkg/configops"
)

func configProblems(cfg *config.Config) []error {
	return config.Validate(cfg)
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the config file",
	}

	check := &cobra.Command{
		Use:   "check",
		Short: "Validate the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			problems := configProblems(cfg)
			if len(problems) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "✓ Config OK:", getConfigPath())
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Config %s has %d problem(s):\n", getConfigPath(), len(problems))
			printProblems(cmd.OutOrStdout(), problems)
			return fmt.Errorf("config check failed")
		},
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with default values",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := getConfigPath()
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.SaveConfig(path, config.DefaultConfig()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Config written:", path)
			fmt.Fprintln(cmd.OutOrStdout(), "  Next: tgrelay config set telegram.token <token>")
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	get := &cobra.Command{
		Use:   "get <path>",
		Short: "Print one value from the config file, e.g. telegram.control_chat_id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgMap, err := configops.LoadMap(getConfigPath())
			if err != nil {
				return err
			}
			value, ok := configops.Get(cfgMap, configops.NormalizePath(args[0]))
			if !ok {
				return fmt.Errorf("%s: not found", args[0])
			}
			if s, ok := value.(string); ok {
				fmt.Fprintln(cmd.OutOrStdout(), s)
				return nil
			}
			data, err := json.MarshalIndent(value, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	}

	set := &cobra.Command{
		Use:   "set <path> <value>",
		Short: "Set one value in the config file; use a|b|c for lists",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			problems, err := configops.Update(getConfigPath(), args[0], configops.ParseValue(args[1]))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ %s updated (previous version kept as %s.bak)\n", args[0], getConfigPath())
			if len(problems) > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Remaining problems:")
				printProblems(cmd.OutOrStdout(), problems)
			}
			return nil
		},
	}

	cmd.AddCommand(check, initCmd, get, set)
	return cmd
}
