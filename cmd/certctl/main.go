package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/deathcert/registry/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	registryURL string
	cfgFile     string
	outFormat   string
	timeout     time.Duration
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "certctl",
	Short: "Death certificate registry CLI",
	Long: `certctl talks to a death certificate registry.

Anyone can submit a death record or look up a certificate by IC number.
Operators log in with the operator secret to approve pending certificates
and manage ledger roles.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.certctl")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.SetEnvPrefix("CERTCTL")
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if registryURL == "" {
			registryURL = viper.GetString("registry_url")
		}
		if registryURL == "" {
			registryURL = "http://localhost:8080"
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.certctl/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&registryURL, "registry", "", "registry base URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&outFormat, "format", "text", "Output format: text or json")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Overall timeout for the command")

	rootCmd.AddCommand(submitCmd, lookupCmd, pendingCmd, rolesCmd, walletCmd, auditCmd, loginCmd, hashSecretCmd, versionCmd)
}

// newClient returns an SDK client carrying the saved operator token, if any.
func newClient() *client.Client {
	opts := []client.Option{client.WithTimeout(timeout)}
	if tok := operatorToken(); tok != "" {
		opts = append(opts, client.WithBearerToken(tok))
	}
	return client.New(registryURL, opts...)
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), timeout)
}

// printJSON writes v as indented JSON.
func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the certctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("certctl %s\n", version)
	},
}
