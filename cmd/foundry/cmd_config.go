package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/user/foundry/internal/config"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configListCmd, configGetCmd, configSetCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and edit the daemon configuration",
	Long: `Inspect and edit the daemon configuration file.

Keys use dotted paths into the config document. Secret values such as
llm.api_key are masked on output. The daemon reads the file at startup;
run "foundry restart" after changing it.`,
	Example: `  foundry config list
  foundry config get llm.model
  foundry config set llm.model gemini-2.5-flash
  foundry config set autosave_schedule "@every 10m"
  foundry config set llm.api_key AIza...`,
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print every configuration value",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		values, err := config.ListValues(loadConfig(), true)
		if err != nil {
			return fmt.Errorf("list config: %w", err)
		}

		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			fmt.Fprintf(os.Stdout, "%s = %v\n", k, values[k])
		}
		return nil
	},
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print one configuration value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		val, err := config.GetValue(cfgPath, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, val)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Write one configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if err := config.SetValue(cfgPath, key, value); err != nil {
			return err
		}
		if config.IsSecretKey(key) {
			value = "***"
		}
		fmt.Fprintf(os.Stdout, "Set %s = %s\n", key, value)
		return nil
	},
}
