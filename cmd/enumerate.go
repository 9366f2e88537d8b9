// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 brickd contributors

package cmd

import (
	"errors"
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/Christoph-Caina/brickd/pkg/brickproto"
	"github.com/Christoph-Caina/brickd/pkg/spistack"
)

var enumerateCmd = &cobra.Command{
	Use:   "enumerate",
	Short: "Run SPI stack enumeration once and print the discovered slaves",
	RunE:  runEnumerate,
}

func init() {
	rootCmd.AddCommand(enumerateCmd)
}

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	absentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	busyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
)

func runEnumerate(cmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	_, engine, err := openSPIStack(log)
	if err != nil && !errors.Is(err, spistack.ErrNoSlaves) {
		return err
	}
	defer func() {
		if engine != nil {
			engine.Close()
		}
	}()

	fmt.Println(headerStyle.Render(fmt.Sprintf("%-5s %-15s %-20s", "ADDR", "STATUS", "UIDS")))
	if engine == nil {
		fmt.Println(absentStyle.Render("no SPI stack"))
		return nil
	}

	table := engine.Table()
	for i := 0; i < brickproto.MaxSlaves; i++ {
		slave := table.Get(i)
		status := slave.Status.String()
		styled := status
		switch slave.Status {
		case spistack.Absent:
			styled = absentStyle.Render(status)
		case spistack.AvailableBusy:
			styled = busyStyle.Render(status)
		}
		fmt.Printf("%-5d %-15s %v\n", i, styled, slave.UIDs)
	}
	return nil
}
