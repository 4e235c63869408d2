package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// Output управляет форматированием вывода CLI.
type Output struct {
	jsonMode bool
	w        io.Writer // stdout для данных
	errW     io.Writer // stderr для сообщений
}

// NewOutput создаёт Output. Если jsonMode=true, данные выводятся в JSON.
func NewOutput(jsonMode bool) *Output {
	return NewOutputTo(jsonMode, os.Stdout, os.Stderr)
}

// NewOutputTo создаёт Output с заданными потоками.
func NewOutputTo(jsonMode bool, w, errW io.Writer) *Output {
	return &Output{
		jsonMode: jsonMode,
		w:        w,
		errW:     errW,
	}
}

// Table — таблица для вывода.
type Table struct {
	Title   string
	Headers []string
	Rows    [][]string
	Footer  []string

	// RightAlign — колонки с числами.
	RightAlign []string
}

// Print выводит данные: таблицу или JSON в зависимости от режима.
func (o *Output) Print(headers []string, rows [][]string, jsonData any) {
	o.PrintTable(Table{Headers: headers, Rows: rows}, jsonData)
}

// PrintTable выводит таблицу t или jsonData в JSON-режиме.
func (o *Output) PrintTable(t Table, jsonData any) {
	if o.jsonMode {
		o.JSON(jsonData)
		return
	}
	o.Table(t)
}

// Table выводит данные в виде таблицы.
func (o *Output) Table(t Table) {
	tw := table.NewWriter()
	tw.SetOutputMirror(o.w)
	tw.SetStyle(table.StyleLight)
	tw.Style().Format.Footer = text.FormatDefault
	if t.Title != "" {
		tw.SetTitle(t.Title)
	}

	tw.AppendHeader(toRow(t.Headers))
	for _, row := range t.Rows {
		tw.AppendRow(toRow(row))
	}
	if len(t.Footer) > 0 {
		tw.AppendFooter(toRow(t.Footer))
	}

	configs := make([]table.ColumnConfig, 0, len(t.RightAlign))
	for _, name := range t.RightAlign {
		configs = append(configs, table.ColumnConfig{Name: name, Align: text.AlignRight, AlignFooter: text.AlignRight})
	}
	tw.SetColumnConfigs(configs)

	tw.Render()
}

// JSON выводит данные в формате JSON с отступами.
func (o *Output) JSON(v any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

// Success выводит сообщение об успехе в stderr.
func (o *Output) Success(msg string) {
	fmt.Fprintln(o.errW, msg)
}

// Error выводит сообщение об ошибке в stderr.
func (o *Output) Error(msg string) {
	fmt.Fprintln(o.errW, "Error: "+msg)
}

func toRow(cells []string) table.Row {
	row := make(table.Row, len(cells))
	for i, c := range cells {
		row[i] = c
	}
	return row
}
