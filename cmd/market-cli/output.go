package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/acarl005/stripansi"
	"github.com/fatih/color"
	"github.com/lagrangedao/go-compute-market/internal/ledger"
	"github.com/lagrangedao/go-compute-market/util"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v2"
)

type printer struct {
	format  string
	noColor bool
	out     io.Writer
}

func newPrinter(cctx *cli.Context) (*printer, error) {
	format := cctx.String(FlagOutput)
	switch format {
	case "table", "json", "yaml":
	default:
		return nil, fmt.Errorf("unknown output format: %s", format)
	}
	return &printer{format: format, noColor: cctx.Bool(FlagNoColor), out: os.Stdout}, nil
}

// print writes v as json or yaml, or hands off to table for the table format.
func (p *printer) print(v interface{}, table func() *util.VisualTable) error {
	switch p.format {
	case "json":
		enc := json.NewEncoder(p.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		data, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = p.out.Write(data)
		return err
	}

	var buf bytes.Buffer
	table().Generate(&buf)
	return p.write(buf.String())
}

func (p *printer) message(format string, args ...interface{}) error {
	if p.format != "table" {
		return nil
	}
	return p.write(color.CyanString(format, args...) + "\n")
}

func (p *printer) write(s string) error {
	if p.noColor {
		s = stripansi.Strip(s)
	}
	_, err := io.WriteString(p.out, s)
	return err
}

func statusColor(status ledger.JobStatus) tablewriter.Colors {
	if status == ledger.JobActive {
		return tablewriter.Colors{tablewriter.Bold, tablewriter.FgYellowColor}
	}
	return tablewriter.Colors{tablewriter.Bold, tablewriter.FgGreenColor}
}

func providerTable(providers ...ledger.Provider) *util.VisualTable {
	var data [][]string
	for _, p := range providers {
		data = append(data, []string{
			p.Address,
			strconv.FormatUint(p.Resources, 10),
			strconv.FormatUint(p.PricePerUnit, 10),
			strconv.FormatUint(p.Earnings, 10),
		})
	}
	return util.NewVisualTable([]string{"ADDRESS", "RESOURCES", "PRICE PER UNIT", "EARNINGS"}, data, nil)
}

func jobTable(jobs ...ledger.Job) *util.VisualTable {
	var data [][]string
	var rowColorList []util.RowColor
	for i, j := range jobs {
		data = append(data, []string{
			strconv.FormatUint(j.ID, 10),
			j.Consumer,
			j.Provider,
			strconv.FormatUint(j.Resources, 10),
			strconv.FormatUint(j.TotalCost, 10),
			string(j.Status),
		})
		rowColorList = append(rowColorList, util.RowColor{
			Row:    i,
			Column: []int{5},
			Color:  []tablewriter.Colors{statusColor(j.Status)},
		})
	}
	return util.NewVisualTable([]string{"JOB ID", "CONSUMER", "PROVIDER", "RESOURCES", "TOTAL COST", "STATUS"}, data, rowColorList)
}
