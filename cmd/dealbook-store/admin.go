package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/marcus/dealbook/internal/api"
	"github.com/marcus/dealbook/internal/docstore"
	"github.com/marcus/dealbook/internal/serverdb"
)

func runAdmin(args []string) {
	if len(args) == 0 {
		printAdminUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "docs":
		runAdminDocs(args[1:])
	case "writes":
		runAdminWrites(args[1:])
	case "dump":
		runAdminDump(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown admin command: %s\n", args[0])
		printAdminUsage()
		os.Exit(1)
	}
}

func printAdminUsage() {
	fmt.Fprintln(os.Stderr, `Usage: dealbook-store admin <command> [flags]

Commands:
  docs    List stored documents
  writes  Show recent writes of one document
  dump    Print one document as JSON`)
}

const dbFlagUsage = "path to the document db (default: from DEALBOOK_STORE_DB_PATH or ./data/dealbook.db)"

func openDB(dbPath string) *serverdb.ServerDB {
	if dbPath == "" {
		dbPath = api.LoadConfig().DBPath
	}
	store, err := serverdb.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: open database: %v\n", err)
		os.Exit(1)
	}
	return store
}

func requireKey(fs *flag.FlagSet, key string) {
	if key == "" {
		fmt.Fprintln(os.Stderr, "error: --key is required")
		fs.Usage()
		os.Exit(1)
	}
	if !docstore.ValidKey(key) {
		fmt.Fprintf(os.Stderr, "error: invalid key %q\n", key)
		os.Exit(1)
	}
}

func runAdminDocs(args []string) {
	fs := flag.NewFlagSet("admin docs", flag.ExitOnError)
	dbPath := fs.String("db", "", dbFlagUsage)
	fs.Parse(args)

	store := openDB(*dbPath)
	defer store.Close()

	docs, err := store.ListDocuments(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if len(docs) == 0 {
		fmt.Println("no documents")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tREVISION\tBYTES\tUPDATED")
	for _, d := range docs {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", d.Key, d.Revision, d.Bytes, d.UpdatedAt.Local().Format(time.DateTime))
	}
	w.Flush()
}

func runAdminWrites(args []string) {
	fs := flag.NewFlagSet("admin writes", flag.ExitOnError)
	key := fs.String("key", "", "document key (principal)")
	limit := fs.Int("n", 20, "number of writes to show")
	dbPath := fs.String("db", "", dbFlagUsage)
	fs.Parse(args)
	requireKey(fs, *key)

	store := openDB(*dbPath)
	defer store.Close()

	writes, err := store.RecentWrites(context.Background(), *key, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if len(writes) == 0 {
		fmt.Printf("no writes for %s\n", *key)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REVISION\tWRITER\tBYTES\tAT")
	for _, e := range writes {
		writer := e.Writer
		if writer == "" {
			writer = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", e.Revision, writer, e.Bytes, e.CreatedAt.Local().Format(time.DateTime))
	}
	w.Flush()
}

func runAdminDump(args []string) {
	fs := flag.NewFlagSet("admin dump", flag.ExitOnError)
	key := fs.String("key", "", "document key (principal)")
	dbPath := fs.String("db", "", dbFlagUsage)
	fs.Parse(args)
	requireKey(fs, *key)

	store := openDB(*dbPath)
	defer store.Close()

	rec, err := store.GetDocument(context.Background(), *key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	var v interface{}
	if err := json.Unmarshal(rec.Doc, &v); err != nil {
		fmt.Fprintf(os.Stderr, "error: decode document: %v\n", err)
		os.Exit(1)
	}
	data, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(data))
}
