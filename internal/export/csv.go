package export

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"storeledger/internal/core"
)

const (
	csvFlushEvery = 200
	csvBufferSize = 32 * 1024
)

type csvStreamer struct {
	buf          *bufio.Writer
	csv          *csv.Writer
	flushEvery   int
	pendingLines int
}

func newCSVStreamer(w io.Writer) *csvStreamer {
	buf := bufio.NewWriterSize(w, csvBufferSize)
	writer := csv.NewWriter(buf)
	writer.UseCRLF = true
	return &csvStreamer{buf: buf, csv: writer, flushEvery: csvFlushEvery}
}

func (s *csvStreamer) writeComment(line string) error {
	if s == nil || s.buf == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	if !strings.HasSuffix(line, "\r\n") {
		line = strings.TrimSuffix(line, "\n")
		line += "\r\n"
	}
	if _, err := s.buf.WriteString(line); err != nil {
		return err
	}
	return nil
}

func (s *csvStreamer) writeRow(row []string) error {
	if s == nil || s.csv == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	if err := s.csv.Write(row); err != nil {
		return err
	}
	s.pendingLines++
	if s.flushEvery > 0 && s.pendingLines >= s.flushEvery {
		return s.Flush()
	}
	return nil
}

func (s *csvStreamer) Flush() error {
	if s == nil || s.csv == nil || s.buf == nil {
		return fmt.Errorf("csv streamer not initialised")
	}
	s.csv.Flush()
	if err := s.csv.Error(); err != nil {
		return err
	}
	if err := s.buf.Flush(); err != nil {
		return err
	}
	s.pendingLines = 0
	return nil
}

func (s *csvStreamer) Close() error {
	return s.Flush()
}

func formatDecimal(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// WriteBalanceSheetCSV renders one snapshot's balance sheet as a delimited
// document. Metadata goes first as comment lines, then an Account,Amount
// header, then section and bucket labels with two-column account rows,
// per-bucket subtotals, and the snapshot totals.
func WriteBalanceSheetCSV(w io.Writer, sheet BalanceSheet) error {
	streamer := newCSVStreamer(w)
	if err := streamer.writeComment(fmt.Sprintf("# Balance Sheet - %s", sheet.StoreName)); err != nil {
		return err
	}
	if err := streamer.writeComment(fmt.Sprintf("# Snapshot Date: %s", sheet.SnapshotDate)); err != nil {
		return err
	}
	if err := streamer.writeComment(fmt.Sprintf("# Status: %s", sheet.Status)); err != nil {
		return err
	}
	if err := streamer.writeRow([]string{"Account", "Amount"}); err != nil {
		return err
	}

	label := func(name string) error {
		return streamer.writeRow([]string{name})
	}
	writeBucket := func(name string, rows []Row) error {
		if len(rows) == 0 {
			return nil
		}
		if err := label(name); err != nil {
			return err
		}
		for _, row := range rows {
			if err := streamer.writeRow([]string{row.AccountName, row.Balance.StringFixed(2)}); err != nil {
				return err
			}
		}
		return nil
	}
	subtotal := func(name string, amount Money) error {
		return streamer.writeRow([]string{name, amount.StringFixed(2)})
	}

	if err := label("ASSETS"); err != nil {
		return err
	}
	if err := writeBucket("Bank Accounts", sheet.Assets.BankAccounts); err != nil {
		return err
	}
	if err := writeBucket("Merchant Accounts", sheet.Assets.MerchantAccounts); err != nil {
		return err
	}
	if err := writeBucket("Inventory", sheet.Assets.Inventory); err != nil {
		return err
	}
	if err := subtotal("Total Current Assets", sheet.Assets.CurrentTotal); err != nil {
		return err
	}
	if err := writeBucket("Other Assets", sheet.Assets.OtherAssets); err != nil {
		return err
	}
	if len(sheet.Assets.OtherAssets) > 0 {
		if err := subtotal("Total Other Assets", sheet.Assets.OtherTotal); err != nil {
			return err
		}
	}
	if err := subtotal("TOTAL ASSETS", sheet.TotalAssets); err != nil {
		return err
	}

	if err := label("LIABILITIES"); err != nil {
		return err
	}
	if err := writeBucket("Current Liabilities", sheet.Liabilities.CurrentLiabilities); err != nil {
		return err
	}
	if err := subtotal("Total Current Liabilities", sheet.Liabilities.CurrentTotal); err != nil {
		return err
	}
	if err := writeBucket("Long-term Liabilities", sheet.Liabilities.LongTerm); err != nil {
		return err
	}
	if len(sheet.Liabilities.LongTerm) > 0 {
		if err := subtotal("Total Long-term Liabilities", sheet.Liabilities.LongTermTotal); err != nil {
			return err
		}
	}
	if err := subtotal("TOTAL LIABILITIES", sheet.TotalLiabilities); err != nil {
		return err
	}

	if err := streamer.writeRow([]string{""}); err != nil {
		return err
	}
	totalsRows := [][]string{
		{"Net Position", formatDecimal(sheet.NetPosition.Decimal)},
		{"YTD Sales", formatDecimal(sheet.YTDSales.Decimal)},
		{"YTD Profit", formatDecimal(sheet.YTDProfit.Decimal)},
		{"Profit Margin %", formatDecimal(sheet.ProfitMargin.Decimal)},
	}
	for _, row := range totalsRows {
		if err := streamer.writeRow(row); err != nil {
			return err
		}
	}
	return streamer.Close()
}

// WriteSnapshotTimelineCSV renders a list of snapshots as one row each, for
// the export of a store's history.
func WriteSnapshotTimelineCSV(w io.Writer, storeName string, snaps []core.Snapshot) error {
	streamer := newCSVStreamer(w)
	if err := streamer.writeComment(fmt.Sprintf("# Snapshot History - %s", storeName)); err != nil {
		return err
	}
	if err := streamer.writeRow([]string{"Date", "Status", "Total Assets", "Total Liabilities", "Net Position", "YTD Sales", "YTD Profit", "Profit Margin %"}); err != nil {
		return err
	}
	for _, s := range snaps {
		if err := streamer.writeRow([]string{
			s.Date.String(),
			string(s.Status),
			formatDecimal(s.TotalAssets),
			formatDecimal(s.TotalLiabilities),
			formatDecimal(s.NetPosition),
			formatDecimal(s.YTDSales),
			formatDecimal(s.YTDProfit),
			formatDecimal(s.ProfitMargin),
		}); err != nil {
			return err
		}
	}
	return streamer.Close()
}
