//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
	"github.com/pkg/errors"
)

var localBin = filepath.Join(os.Getenv("PWD"), "bin")

// Clean removes build output.
func Clean() {
	fmt.Println("Cleaning...")
	os.RemoveAll(localBin)
}

// Bootstrap installs the tools listed in internal/tools/tools.go.
func Bootstrap() error {
	packages, err := sh.Output("go", "list", "-tags", "tools", "-f", "{{range .Imports}}{{.}} {{end}}", "./internal/tools")
	if err != nil {
		return err
	}
	for _, p := range strings.Fields(packages) {
		if err := sh.Run("go", "install", p); err != nil {
			return err
		}
	}
	return nil
}

// Mocks regenerates the gomock mocks.
func Mocks() error {
	mg.Deps(Bootstrap)
	return sh.Run("go", "generate", "./internal/scheduler/mocks/...")
}

// Build compiles the clustersim binary into ./bin.
func Build() error {
	if err := os.MkdirAll(localBin, os.ModePerm); err != nil {
		return errors.WithStack(err)
	}
	return sh.Run("go", "build", "-o", filepath.Join(localBin, "clustersim"), "./cmd/clustersim")
}

// Tests runs every test with the race detector.
func Tests() error {
	return sh.RunV("go", "test", "-race", "-count=1", "./...")
}

// Simulate runs the sample workloads against the sample cluster with the sample scheduling config.
func Simulate() error {
	mg.Deps(Build)
	return sh.RunV(
		filepath.Join(localBin, "clustersim"),
		"--clusters", "config/clustersim/clusters/*.yaml",
		"--workloads", "config/clustersim/workloads/*.yaml",
		"--config", "config/clustersim/config.yaml",
	)
}
