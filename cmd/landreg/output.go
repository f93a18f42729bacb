package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jmerrifield20/LandRegistry/internal/model"
)

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printRecords(recs []model.LandRecord) error {
	if outputFormat == "json" {
		if recs == nil {
			recs = []model.LandRecord{}
		}
		return printJSON(recs)
	}
	if len(recs) == 0 {
		fmt.Println("No records.")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tOWNER\tLOCATION\tAREA\tSTATUS\tAPPROVALS\tREJECTIONS\tMEDIA")
	for _, r := range recs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			r.ID, r.OwnerName, r.LocationAddress, r.AreaSize, r.Status,
			r.Approvals, r.Rejections, r.MediaReference)
	}
	return w.Flush()
}

func printReceipt(r *model.Receipt) {
	fmt.Printf("Sequence:    %d\n", r.Sequence)
	fmt.Printf("Entry hash:  %s\n", r.Hash)
	fmt.Printf("Recorded at: %s\n", r.Timestamp.Format(time.RFC3339))
}
