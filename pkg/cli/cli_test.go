package cli

import (
	"os"
	"testing"

	"github.com/rogpeppe/go-internal/testscript"
)

func TestMain(m *testing.M) {
	os.Exit(testscript.RunMain(m, map[string]func() int{
		"reflector": Main,
	}))
}

func TestScripts(t *testing.T) {
	testscript.Run(t, testscript.Params{
		Dir: "testdata/script",
		Setup: func(env *testscript.Env) error {
			env.Setenv("REFLECTOR_CONFIG", "")
			env.Setenv("REFLECTOR_TMP", "")
			env.Setenv("REFLECTOR_DEBUG", "")
			return nil
		},
	})
}
