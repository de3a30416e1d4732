package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"pricehub/internal/ingest"
	"pricehub/internal/report"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:7070", "TCP event stream address")
	raw := flag.Bool("raw", false, "print events as received")
	summary := flag.Bool("summary", true, "print the full report when a run finishes")
	flag.Parse()

	for {
		if err := run(*addr, *raw, *summary); err != nil {
			log.Printf("[events-tail] disconnected: %v", err)
		}
		time.Sleep(1 * time.Second) // auto reconnect
	}
}

func run(addr string, raw, summary bool) error {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	defer conn.Close()

	log.Printf("[events-tail] connected to %s", addr)

	sc := bufio.NewScanner(conn)
	// run events embed the full report
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Bytes()

		if raw {
			fmt.Println(string(line))
			continue
		}

		var ev ingest.Event
		if err := json.Unmarshal(line, &ev); err != nil || ev.RunID == "" {
			// welcome or non-JSON; print raw
			fmt.Println(string(line))
			continue
		}

		fmt.Println(report.EventLine(ev))
		if summary && ev.Run != nil {
			_ = report.Write(os.Stdout, ev.Run)
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return os.ErrClosed
}
