package main

import (
	"flag"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmdtest"
)

var update = flag.Bool("update", false, "update test files with results")

func TestCLI(t *testing.T) {
	ts, err := cmdtest.Read("testdata")
	if err != nil {
		t.Fatal(err)
	}
	ts.KeepRootDirs = true
	ts.Setup = func(dir string) (err error) {
		if err = os.Setenv("PIPPIN_DIR", dir); err != nil {
			return err
		}
		return ioutil.WriteFile(filepath.Join(dir, "input.txt"), []byte("hello world"), 0644)
	}
	ts.Commands["pippin"] = cmdtest.InProcessProgram("pippin", run)
	ts.Run(t, *update)
}
