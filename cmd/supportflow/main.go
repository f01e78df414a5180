package main

import (
	"os"

	"github.com/kmufti7/intelliflow-supportflow/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
