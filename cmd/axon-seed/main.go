// Package main provides axon-seed, a load generator that uploads random
// blobs to a running axond, mirroring the teacher's tk-seed worker-pool
// seeding style (a channel of work items drained by NumCPU workers).
package main

import (
	"crypto/rand"
	"flag"
	"fmt"
	"math/big"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/axonhq/axon/internal/rpc"
)

func main() {
	addr := flag.String("addr", "ws://127.0.0.1:4470/", "axond websocket address")
	token := flag.String("token", "", "bearer token to authenticate with")
	count := flag.Int("count", 1000, "number of blobs to upload")
	minSize := flag.Int("min-size", 64, "minimum blob size in bytes")
	maxSize := flag.Int("max-size", 64*1024, "maximum blob size in bytes")
	flag.Parse()

	start := time.Now()

	uploaded, err := seed(*addr, *token, *count, *minSize, *maxSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "axon-seed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("uploaded %d/%d blobs in %s -> %s\n", uploaded, *count, time.Since(start), *addr)
}

func seed(addr, token string, count, minSize, maxSize int) (int64, error) {
	numWorkers := runtime.NumCPU()
	jobs := make(chan int, numWorkers*2)

	var (
		wg       sync.WaitGroup
		uploaded atomic.Int64
		firstErr atomic.Pointer[error]
	)

	for range numWorkers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			client, err := rpc.Dial(addr, token)
			if err != nil {
				storeFirstErr(&firstErr, fmt.Errorf("dial: %w", err))

				return
			}
			defer func() { _ = client.Close() }()

			for i := range jobs {
				if err := uploadOne(client, i, minSize, maxSize); err != nil {
					storeFirstErr(&firstErr, err)

					return
				}

				uploaded.Add(1)
			}
		}()
	}

	for i := range count {
		jobs <- i
	}

	close(jobs)

	wg.Wait()

	if errPtr := firstErr.Load(); errPtr != nil {
		return uploaded.Load(), *errPtr
	}

	return uploaded.Load(), nil
}

func uploadOne(client *rpc.Client, seed, minSize, maxSize int) error {
	size := minSize
	if maxSize > minSize {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(maxSize-minSize+1)))
		if err != nil {
			return fmt.Errorf("pick size: %w", err)
		}

		size += int(n.Int64())
	}

	data := make([]byte, size)
	if _, err := rand.Read(data); err != nil {
		return fmt.Errorf("fill blob %d: %w", seed, err)
	}

	if _, _, err := client.Put(data); err != nil {
		return fmt.Errorf("upload blob %d: %w", seed, err)
	}

	return nil
}

func storeFirstErr(slot *atomic.Pointer[error], err error) {
	slot.CompareAndSwap(nil, &err)
}
