// receiptpdf renders the bill (and category tickets) for one order JSON file
// to PDF files on disk. Useful for checking thermal layout changes without a
// printer or bridge.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"cinepos/internal/model"
	"cinepos/internal/receipt"
)

func main() {
	var (
		in      = flag.String("in", "", "path to raw order JSON")
		outDir  = flag.String("out", ".", "output directory")
		name    = flag.String("theater", "Demo Theater", "theater name")
		fssai   = flag.String("fssai", "", "FSSAI number")
		gst     = flag.String("gst", "", "GSTIN")
		tickets = flag.Bool("tickets", false, "also render category tickets")
	)
	flag.Parse()

	if *in == "" {
		fmt.Fprintln(os.Stderr, "usage: receiptpdf -in order.json [-out dir] [-tickets]")
		os.Exit(2)
	}

	raw, err := os.ReadFile(*in)
	if err != nil {
		fatal(err)
	}
	var order model.Order
	if err := json.Unmarshal(raw, &order); err != nil {
		fatal(fmt.Errorf("parse order: %w", err))
	}
	o := model.Normalize(order)
	info := receipt.TheaterInfo{Name: *name, FSSAI: *fssai, GST: *gst}
	now := time.Now()

	bill, err := receipt.RenderBill(info, o, now)
	if err != nil {
		fatal(err)
	}
	billPath := filepath.Join(*outDir, fmt.Sprintf("bill_%s.pdf", o.Identity.String()))
	if err := os.WriteFile(billPath, bill, 0o644); err != nil {
		fatal(err)
	}
	fmt.Println(billPath)

	if !*tickets {
		return
	}
	for _, group := range receipt.GroupByCategory(o.Items) {
		pdf, err := receipt.RenderCategoryTicket(info, o, group, now)
		if err != nil {
			fatal(err)
		}
		path := filepath.Join(*outDir, fmt.Sprintf("ticket_%s_%s.pdf", o.Identity.String(), group.Name))
		if err := os.WriteFile(path, pdf, 0o644); err != nil {
			fatal(err)
		}
		fmt.Println(path)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "receiptpdf:", err)
	os.Exit(1)
}
