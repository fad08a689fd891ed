package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/pior/minired/client"
)

func main() {
	var (
		addr      = flag.String("addr", "127.0.0.1:6379", "server address")
		clients   = flag.Int("clients", 8, "concurrent clients")
		ops       = flag.Int("ops", 10000, "operations per client")
		valueSize = flag.Int("value-size", 32, "value size in bytes")
		keys      = flag.Int("keys", 1000, "key space size")
	)
	flag.Parse()

	c, err := client.New(client.Config{
		Address:  *addr,
		MaxConns: int32(*clients),
	})
	if err != nil {
		fmt.Printf("Failed to create client: %v\n", err)
		os.Exit(1)
	}
	defer c.Close()

	value := []byte(strings.Repeat("x", *valueSize))

	var hits, misses, failures atomic.Int64
	start := time.Now()

	var g errgroup.Group
	for w := 0; w < *clients; w++ {
		w := w
		g.Go(func() error {
			ctx := context.Background()
			rng := rand.New(rand.NewSource(int64(w)))
			for i := 0; i < *ops; i++ {
				key := fmt.Sprintf("bench-%d", rng.Intn(*keys))
				if rng.Intn(10) < 3 { // 30% writes
					if err := c.Set(ctx, key, value); err != nil {
						failures.Add(1)
					}
					continue
				}
				_, err := c.Get(ctx, key)
				switch {
				case err == nil:
					hits.Add(1)
				case errors.Is(err, client.ErrCacheMiss):
					misses.Add(1)
				default:
					failures.Add(1)
				}
			}
			return nil
		})
	}
	g.Wait()

	elapsed := time.Since(start)
	total := *clients * *ops

	fmt.Printf("clients:    %d\n", *clients)
	fmt.Printf("total ops:  %d\n", total)
	fmt.Printf("elapsed:    %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("throughput: %.0f ops/sec\n", float64(total)/elapsed.Seconds())
	fmt.Printf("hits:       %d\n", hits.Load())
	fmt.Printf("misses:     %d\n", misses.Load())
	fmt.Printf("failures:   %d\n", failures.Load())

	if failures.Load() > 0 {
		os.Exit(1)
	}
}
