package cmd

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inference-sim/inference-serve/serve"
)

var featuresJSON string

// fingerprintOf decodes a JSON object the same way the HTTP server does
// and returns its fingerprint.
func fingerprintOf(raw string) (serve.Fingerprint, error) {
	var features serve.Features
	if err := serve.DecodeJSON(strings.NewReader(raw), &features); err != nil {
		return serve.Fingerprint{}, fmt.Errorf("parsing --features: %w", err)
	}
	if features == nil {
		return serve.Fingerprint{}, fmt.Errorf("--features must be a JSON object")
	}
	return serve.ComputeFingerprint(features)
}

var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint",
	Short: "Print the cache fingerprint of a feature mapping",
	Run: func(cmd *cobra.Command, args []string) {
		fp, err := fingerprintOf(featuresJSON)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), fp)
	},
}

func init() {
	fingerprintCmd.Flags().StringVar(&featuresJSON, "features", "", `Feature mapping as a JSON object, e.g. '{"age":42}'`)
	_ = fingerprintCmd.MarkFlagRequired("features")
	rootCmd.AddCommand(fingerprintCmd)
}
