// Command history prints the latest stored messages of a chat.
package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
	"github.com/omochice/realtime-chat/internal/store"
)

func main() {
	dbPath := flag.String("db", "", "Path to badger DB")
	chatID := flag.String("chat", "", "Chat id")
	limit := flag.Int("limit", 20, "Number of messages")
	flag.Parse()

	if *dbPath == "" || *chatID == "" {
		log.Fatal("Both -db and -chat are required")
	}

	s, err := store.OpenBadgerReadOnly(*dbPath, logs.GetLoggerFromLevel(slog.LevelError))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer s.Close()

	records, err := s.Recent(context.Background(), *chatID, *limit)
	if err != nil {
		log.Fatal(err)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Time", "Sender", "Message ID", "Content"})
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("\t")

	for _, r := range records {
		table.Append([]string{
			r.CreatedAt.Local().Format(time.DateTime),
			string(r.SenderID),
			r.ID,
			r.Content,
		})
	}
	table.Render()
}
