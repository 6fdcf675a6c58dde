package main

import (
	"fmt"
	"io"

	"github.com/pterm/pterm"

	"github.com/chenchongli/kinetic-go/internal/protocol"
)

// renderLog prints every section present in log as a table.
func renderLog(w io.Writer, log *protocol.Log) error {
	var sections []section

	if len(log.Utilizations) > 0 {
		rows := [][]string{{"Name", "Utilization"}}
		for _, u := range log.Utilizations {
			rows = append(rows, []string{u.Name, fmt.Sprintf("%.1f%%", u.Value*100)})
		}
		sections = append(sections, section{"Utilizations", rows})
	}
	if len(log.Temperatures) > 0 {
		rows := [][]string{{"Name", "Current", "Min", "Max", "Target"}}
		for _, t := range log.Temperatures {
			rows = append(rows, []string{
				t.Name,
				fmt.Sprintf("%.0f", t.Current),
				fmt.Sprintf("%.0f", t.Minimum),
				fmt.Sprintf("%.0f", t.Maximum),
				fmt.Sprintf("%.0f", t.Target),
			})
		}
		sections = append(sections, section{"Temperatures (°C)", rows})
	}
	if c := log.Capacity; c != nil {
		sections = append(sections, section{"Capacity", [][]string{
			{"Nominal", "Full"},
			{fmt.Sprintf("%d bytes", c.NominalCapacityInBytes), fmt.Sprintf("%.1f%%", c.PortionFull*100)},
		}})
	}
	if c := log.Configuration; c != nil {
		sections = append(sections, section{"Configuration", [][]string{
			{"Field", "Value"},
			{"Vendor", c.Vendor},
			{"Model", c.Model},
			{"Serial number", c.SerialNumber},
			{"Firmware", c.Version},
			{"Protocol", c.ProtocolVersion},
			{"Ports", fmt.Sprintf("%d / %d (TLS)", c.Port, c.TLSPort)},
		}})
	}
	if len(log.Statistics) > 0 {
		rows := [][]string{{"Message type", "Count", "Bytes"}}
		for _, s := range log.Statistics {
			rows = append(rows, []string{s.MessageType.String(), fmt.Sprint(s.Count), fmt.Sprint(s.Bytes)})
		}
		sections = append(sections, section{"Statistics", rows})
	}
	if l := log.Limits; l != nil {
		sections = append(sections, section{"Limits", [][]string{
			{"Limit", "Value"},
			{"Max key size", fmt.Sprint(l.MaxKeySize)},
			{"Max value size", fmt.Sprint(l.MaxValueSize)},
			{"Max message size", fmt.Sprint(l.MaxMessageSize)},
			{"Max connections", fmt.Sprint(l.MaxConnections)},
			{"Max identities", fmt.Sprint(l.MaxIdentityCount)},
			{"Max PIN size", fmt.Sprint(l.MaxPinSize)},
		}})
	}

	for _, s := range sections {
		if err := s.render(w); err != nil {
			return err
		}
	}
	if len(log.Messages) > 0 {
		fmt.Fprintln(w, pterm.Bold.Sprint("Messages"))
		fmt.Fprintln(w, string(log.Messages))
	}
	return nil
}

type section struct {
	title string
	rows  [][]string
}

func (s section) render(w io.Writer) error {
	table, err := pterm.DefaultTable.
		WithHasHeader(true).
		WithBoxed(false).
		WithData(pterm.TableData(s.rows)).
		Srender()
	if err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	fmt.Fprintln(w, pterm.Bold.Sprint(s.title))
	fmt.Fprintln(w, table)
	return nil
}
