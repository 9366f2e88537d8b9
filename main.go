// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 brickd contributors

package main

import (
	"fmt"
	"os"

	"github.com/Christoph-Caina/brickd/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
