package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/lvcoi/ytdl-web/internal/client"
	"github.com/lvcoi/ytdl-web/internal/tui"
)

func runWatch(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	server := fs.String("server", "http://localhost:5000", "ytdl-web server URL")
	formatID := fs.String("format", "", "format id to download (default: first listed)")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "usage: %s watch [options] <url>\n", os.Args[0])
		fs.PrintDefaults()
		return exitUsage
	}
	url := fs.Arg(0)

	api := client.New(*server, nil)
	chosen := *formatID
	if chosen == "" {
		list, err := api.ListFormats(ctx, url)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return exitError
		}
		if len(list) == 0 {
			fmt.Fprintln(os.Stderr, "error: no downloadable formats")
			return exitError
		}
		chosen = list[0].FormatID
	}

	id, err := api.Submit(ctx, url, chosen)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitError
	}

	last, err := tui.Watch(ctx, api, id, url, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return exitError
	}
	if last.Status == "error" {
		return exitError
	}
	fmt.Println(id)
	return exitOK
}
