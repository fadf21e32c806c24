package main

import (
	"fmt"
	"os"

	"github.com/armadaproject/clustersim/cmd/clustersim/cmd"
	"github.com/armadaproject/clustersim/internal/common/logging"
)

func main() {
	logging.MustConfigureApplicationLogging()
	if err := cmd.RootCmd().Execute(); err != nil {
		fmt.Println(err.Error())
		os.Exit(1)
	}
}
