package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/pior/minired/client"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:6379", "server address")
	flag.Parse()

	fmt.Println("minired CLI")
	fmt.Println("Commands: get <key>, set <key> <value>, del <key>, stats, quit")
	fmt.Println()

	c, err := client.New(client.Config{Address: *addr})
	if err != nil {
		fmt.Printf("Failed to create client: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		parts := strings.Fields(strings.TrimSpace(scanner.Text()))
		if len(parts) == 0 {
			continue
		}

		ctx := context.Background()
		switch strings.ToLower(parts[0]) {
		case "get":
			if len(parts) != 2 {
				fmt.Println("Usage: get <key>")
				continue
			}
			value, err := c.Get(ctx, parts[1])
			switch {
			case errors.Is(err, client.ErrCacheMiss):
				fmt.Println("(nil)")
			case err != nil:
				fmt.Printf("Error: %v\n", err)
			default:
				fmt.Printf("%q\n", value)
			}

		case "set":
			if len(parts) != 3 {
				fmt.Println("Usage: set <key> <value>")
				continue
			}
			if err := c.Set(ctx, parts[1], []byte(parts[2])); err != nil {
				fmt.Printf("Error: %v\n", err)
				continue
			}
			fmt.Println("OK")

		case "del":
			if len(parts) != 2 {
				fmt.Println("Usage: del <key>")
				continue
			}
			if err := c.Del(ctx, parts[1]); err != nil {
				fmt.Printf("Error: %v\n", err)
				continue
			}
			fmt.Println("OK")

		case "stats":
			s := c.Stats()
			fmt.Printf("gets=%d hits=%d misses=%d hit_rate=%.2f sets=%d dels=%d errors=%d\n",
				s.Gets, s.CacheHits, s.CacheMisses, s.HitRate(), s.Sets, s.Dels, s.Errors)

		case "quit", "exit":
			return

		default:
			fmt.Printf("Unknown command: %s\n", parts[0])
		}
	}
}
