package cli

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"testing"
)

// resetRootCmd clears cobra/viper global state between tests so command
// flags and viper bindings from one test don't leak into the next.
func resetRootCmd(t *testing.T) {
	t.Helper()
	viper.Reset()
	cfgFile = ""
	rootCmd.SetArgs(nil)
	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	rootCmd.PersistentFlags().VisitAll(func(f *pflag.Flag) {
		f.Changed = false
	})
}
