package main

import (
	"fmt"
	"os"

	"github.com/khiari-mohamed/approchement-backend/cmd/reconciler/cmd"
	apperrors "github.com/khiari-mohamed/approchement-backend/pkg/errors"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, date)

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if appErr, ok := apperrors.As(err); ok {
			os.Exit(appErr.ExitCode())
		}
		os.Exit(1)
	}
}
